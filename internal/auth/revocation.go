// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rapid Connect Contributors

package auth

import (
	"sync"
	"time"
)

// DefaultRevocationCleanupInterval is how often expired revocations are purged.
const DefaultRevocationCleanupInterval = time.Minute

// RevocationChecker answers whether a token ID has been revoked.
type RevocationChecker interface {
	IsRevoked(tokenID string) bool
}

// RevocationList is a denylist of token IDs. Entries only need to live until
// the token would have expired anyway.
type RevocationList interface {
	RevocationChecker
	Revoke(tokenID string, expiresAt time.Time)
}

// MemoryRevocationList is a process-local RevocationList. A background
// goroutine purges entries past their expiry; call Close to stop it.
type MemoryRevocationList struct {
	mu      sync.RWMutex
	revoked map[string]time.Time
	now     func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMemoryRevocationList creates a MemoryRevocationList purging every
// cleanupInterval. A nil clock means time.Now.
func NewMemoryRevocationList(cleanupInterval time.Duration, clock func() time.Time) *MemoryRevocationList {
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultRevocationCleanupInterval
	}
	if clock == nil {
		clock = time.Now
	}
	l := &MemoryRevocationList{
		revoked:  make(map[string]time.Time),
		now:      clock,
		stopChan: make(chan struct{}),
	}
	l.wg.Add(1)
	go l.cleanupLoop(cleanupInterval)
	return l
}

// Revoke denies tokenID until expiresAt.
func (l *MemoryRevocationList) Revoke(tokenID string, expiresAt time.Time) {
	if tokenID == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.revoked[tokenID]; ok && cur.After(expiresAt) {
		return
	}
	l.revoked[tokenID] = expiresAt
}

// IsRevoked reports whether tokenID is denied and its entry has not expired.
func (l *MemoryRevocationList) IsRevoked(tokenID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	exp, ok := l.revoked[tokenID]
	return ok && l.now().Before(exp)
}

// Len returns the number of stored entries, expired or not.
func (l *MemoryRevocationList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.revoked)
}

// Purge removes entries whose token has expired.
func (l *MemoryRevocationList) Purge() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, exp := range l.revoked {
		if !now.Before(exp) {
			delete(l.revoked, id)
		}
	}
}

func (l *MemoryRevocationList) cleanupLoop(interval time.Duration) {
	defer l.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return
		case <-ticker.C:
			l.Purge()
		}
	}
}

// Close stops the purge goroutine and waits for it to exit. It is safe to
// call more than once.
func (l *MemoryRevocationList) Close() {
	l.stopOnce.Do(func() { close(l.stopChan) })
	l.wg.Wait()
}

var _ RevocationList = (*MemoryRevocationList)(nil)

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rapid Connect Contributors

package auth

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Login rate limiting defaults.
const (
	// DefaultLoginBurst is the number of login attempts an identifier may make
	// back to back.
	DefaultLoginBurst = 5

	// DefaultLoginRate is the sustained number of attempts per second.
	DefaultLoginRate = 0.2

	// MinLoginRate is the slowest accepted refill rate.
	MinLoginRate = 0.001

	DefaultLimiterCleanupInterval = 5 * time.Minute
	DefaultLimiterMaxIdle         = time.Hour
)

// LoginLimiterConfig configures a LoginLimiter. Zero values select defaults.
type LoginLimiterConfig struct {
	Burst           int
	PerSecond       float64
	CleanupInterval time.Duration
	MaxIdle         time.Duration

	// Clock overrides time.Now.
	Clock func() time.Time
}

type loginBucket struct {
	tokens    float64
	lastCheck time.Time
}

// LoginLimiter is a per-identifier token bucket for login attempts. It is
// keyed by the identifier as submitted, whether or not it is registered, so
// throttling behaves the same for known and unknown identifiers.
//
// A background goroutine drops idle buckets; call Close to stop it.
type LoginLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*loginBucket
	burst     int
	perSecond float64
	maxIdle   time.Duration
	now       func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewLoginLimiter creates a LoginLimiter and starts its cleanup goroutine.
// If reg is non-nil a gauge reporting Tracked at scrape time is registered
// with it.
func NewLoginLimiter(cfg LoginLimiterConfig, reg prometheus.Registerer) *LoginLimiter {
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultLoginBurst
	}
	if cfg.PerSecond <= 0 {
		cfg.PerSecond = DefaultLoginRate
	}
	if cfg.PerSecond < MinLoginRate {
		cfg.PerSecond = MinLoginRate
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultLimiterCleanupInterval
	}
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = DefaultLimiterMaxIdle
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	l := &LoginLimiter{
		buckets:   make(map[string]*loginBucket),
		burst:     cfg.Burst,
		perSecond: cfg.PerSecond,
		maxIdle:   cfg.MaxIdle,
		now:       cfg.Clock,
		stopChan:  make(chan struct{}),
	}

	if reg != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "backend_auth_login_limiter_identifiers",
			Help: "Current number of identifiers tracked by the login rate limiter",
		}, func() float64 { return float64(l.Tracked()) }))
	}

	l.wg.Add(1)
	go l.cleanupLoop(cfg.CleanupInterval)

	return l
}

// Allow consumes one attempt for identifier. When the bucket is empty it
// returns false and the wait until the next attempt is available.
func (l *LoginLimiter) Allow(identifier string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[identifier]
	if !ok {
		b = &loginBucket{tokens: float64(l.burst), lastCheck: now}
		l.buckets[identifier] = b
	}

	elapsed := now.Sub(b.lastCheck).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * l.perSecond
		if b.tokens > float64(l.burst) {
			b.tokens = float64(l.burst)
		}
		b.lastCheck = now
	}

	if b.tokens >= 1.0 {
		b.tokens--
		return true, 0
	}

	deficit := 1.0 - b.tokens
	return false, time.Duration(deficit / l.perSecond * float64(time.Second))
}

// Tracked returns the number of identifiers with a live bucket.
func (l *LoginLimiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Cleanup drops buckets idle for longer than maxIdle.
func (l *LoginLimiter) Cleanup(maxIdle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	threshold := l.now().Add(-maxIdle)
	for id, b := range l.buckets {
		if b.lastCheck.Before(threshold) {
			delete(l.buckets, id)
		}
	}
}

func (l *LoginLimiter) cleanupLoop(interval time.Duration) {
	defer l.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return
		case <-ticker.C:
			l.Cleanup(l.maxIdle)
		}
	}
}

// Close stops the cleanup goroutine and waits for it to exit. It is safe to
// call more than once.
func (l *LoginLimiter) Close() {
	l.stopOnce.Do(func() { close(l.stopChan) })
	l.wg.Wait()
}

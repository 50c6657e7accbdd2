// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rapid Connect Contributors

// Package memory provides an in-process auth.CredentialRepository.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/AnShIkA-TrIpAtHi-2022/backend/internal/auth"
)

// CredentialRepository keeps records in a map guarded by a mutex. Records are
// copied on the way in and out so callers cannot alias stored state.
type CredentialRepository struct {
	mu      sync.RWMutex
	records map[string]*auth.CredentialRecord
}

// NewCredentialRepository creates an empty repository.
func NewCredentialRepository() *CredentialRepository {
	return &CredentialRepository{records: make(map[string]*auth.CredentialRecord)}
}

// Get returns a copy of the record for identifier.
func (r *CredentialRepository) Get(_ context.Context, identifier string) (*auth.CredentialRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[identifier]
	if !ok {
		return nil, oops.With("identifier", identifier).Wrap(auth.ErrNotFound)
	}
	return clone(rec), nil
}

// Put inserts record unless the identifier is taken. The check and the
// insert happen under one write lock.
func (r *CredentialRepository) Put(_ context.Context, record *auth.CredentialRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[record.Identifier]; ok {
		return oops.With("identifier", record.Identifier).Wrap(auth.ErrConflict)
	}
	r.records[record.Identifier] = clone(record)
	return nil
}

// UpdateLastAuthenticated sets LastAuthenticatedAt.
func (r *CredentialRepository) UpdateLastAuthenticated(_ context.Context, identifier string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[identifier]
	if !ok {
		return oops.With("identifier", identifier).Wrap(auth.ErrNotFound)
	}
	rec.LastAuthenticatedAt = &at
	return nil
}

// UpdateCredential replaces hash and salt.
func (r *CredentialRepository) UpdateCredential(_ context.Context, identifier, hash string, salt []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[identifier]
	if !ok {
		return oops.With("identifier", identifier).Wrap(auth.ErrNotFound)
	}
	rec.Hash = hash
	rec.Salt = slices.Clone(salt)
	return nil
}

// Ping always succeeds.
func (r *CredentialRepository) Ping(context.Context) error {
	return nil
}

// Len returns the number of stored records.
func (r *CredentialRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

func clone(rec *auth.CredentialRecord) *auth.CredentialRecord {
	c := *rec
	c.Salt = slices.Clone(rec.Salt)
	c.Capabilities = slices.Clone(rec.Capabilities)
	if rec.LastAuthenticatedAt != nil {
		t := *rec.LastAuthenticatedAt
		c.LastAuthenticatedAt = &t
	}
	return &c
}

var _ auth.CredentialRepository = (*CredentialRepository)(nil)

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rapid Connect Contributors

package auth

import (
	"context"
	"regexp"
	"slices"
	"time"

	"github.com/samber/oops"
)

// Identifier validation constraints.
const (
	MinIdentifierLength = 3
	MaxIdentifierLength = 64
)

// identifierRegex matches identifiers that:
// - Start with a letter or digit
// - Contain only letters, digits, '_', '.', '@' and '-'
var identifierRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.@-]*$`)

// UserIdentity is the public view of a registered user. Credential material
// stays on CredentialRecord and never leaves the CredentialStore.
type UserIdentity struct {
	Identifier          string
	Capabilities        []string
	CreatedAt           time.Time
	LastAuthenticatedAt *time.Time
}

// CredentialRecord is the persisted shape of a user.
type CredentialRecord struct {
	Identifier          string
	Hash                string
	Salt                []byte
	Capabilities        []string
	CreatedAt           time.Time
	LastAuthenticatedAt *time.Time
}

// Identity strips credential material from the record.
func (r *CredentialRecord) Identity() *UserIdentity {
	var last *time.Time
	if r.LastAuthenticatedAt != nil {
		t := *r.LastAuthenticatedAt
		last = &t
	}
	return &UserIdentity{
		Identifier:          r.Identifier,
		Capabilities:        slices.Clone(r.Capabilities),
		CreatedAt:           r.CreatedAt,
		LastAuthenticatedAt: last,
	}
}

// ValidateIdentifier validates an identifier against the naming rules.
func ValidateIdentifier(identifier string) error {
	if identifier == "" {
		return invalidInput("identifier cannot be empty")
	}
	if len(identifier) < MinIdentifierLength {
		return oops.Code(CodeInvalidInput).
			With("min", MinIdentifierLength).
			Wrapf(ErrInvalidInput, "identifier must be at least %d characters", MinIdentifierLength)
	}
	if len(identifier) > MaxIdentifierLength {
		return oops.Code(CodeInvalidInput).
			With("max", MaxIdentifierLength).
			Wrapf(ErrInvalidInput, "identifier must be at most %d characters", MaxIdentifierLength)
	}
	if !identifierRegex.MatchString(identifier) {
		return invalidInput("identifier must start with a letter or digit and contain only letters, digits, '_', '.', '@' and '-'")
	}
	return nil
}

// CredentialRepository persists credential records.
//
// Implementations must make Put an atomic insert-if-absent: two concurrent
// Puts for the same identifier must yield exactly one success and one
// ErrConflict.
type CredentialRepository interface {
	// Get retrieves a record. Returns ErrNotFound if absent.
	Get(ctx context.Context, identifier string) (*CredentialRecord, error)

	// Put inserts a new record. Returns ErrConflict if the identifier exists.
	Put(ctx context.Context, record *CredentialRecord) error

	// UpdateLastAuthenticated sets the last successful authentication time.
	UpdateLastAuthenticated(ctx context.Context, identifier string, at time.Time) error

	// UpdateCredential replaces the hash and salt of an existing record.
	UpdateCredential(ctx context.Context, identifier, hash string, salt []byte) error

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}

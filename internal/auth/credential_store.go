// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rapid Connect Contributors

package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// CredentialStore owns user credential records. It is the only component
// that sees hashes and salts.
type CredentialStore struct {
	repo   CredentialRepository
	hasher PasswordHasher
	logger *slog.Logger

	// Verified against when the identifier is absent so both paths do
	// one full hash computation.
	dummySalt   []byte
	dummyDigest string
}

// NewCredentialStore creates a CredentialStore. If logger is nil,
// slog.Default() is used.
func NewCredentialStore(repo CredentialRepository, hasher PasswordHasher, logger *slog.Logger) (*CredentialStore, error) {
	if repo == nil {
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("credential repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("password hasher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	salt, err := hasher.NewSalt()
	if err != nil {
		return nil, oops.Code("AUTH_CONFIG_INVALID").With("operation", "generate dummy salt").Wrap(err)
	}
	// The dummy password is random and discarded; no plaintext can match it.
	dummyPassword := rand.Text()
	digest, err := hasher.Hash(dummyPassword, salt)
	if err != nil {
		return nil, oops.Code("AUTH_CONFIG_INVALID").With("operation", "compute dummy digest").Wrap(err)
	}

	return &CredentialStore{
		repo:        repo,
		hasher:      hasher,
		logger:      logger.With("component", "credential_store"),
		dummySalt:   salt,
		dummyDigest: digest,
	}, nil
}

// CreateUser hashes plaintext under a fresh salt and inserts a new record.
// Either the record exists afterwards with hash and salt, or nothing changed.
func (s *CredentialStore) CreateUser(ctx context.Context, identifier, plaintext string, capabilities []string) (*UserIdentity, error) {
	if err := ValidateIdentifier(identifier); err != nil {
		return nil, err
	}
	caps, err := NormalizeCapabilities(capabilities)
	if err != nil {
		return nil, err
	}
	if err := s.hasher.ValidatePassword(plaintext); err != nil {
		return nil, err
	}

	// Cheap early exit; the authoritative check is the atomic Put below.
	if _, err := s.repo.Get(ctx, identifier); err == nil {
		return nil, duplicateIdentity(identifier)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, unavailable("lookup identifier", err)
	}

	salt, err := s.hasher.NewSalt()
	if err != nil {
		return nil, oops.Code(CodeStoreUnavailable).With("operation", "generate salt").Wrap(errors.Join(ErrUnavailable, err))
	}
	digest, err := s.hasher.Hash(plaintext, salt)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			return nil, err
		}
		return nil, oops.Code(CodeStoreUnavailable).With("operation", "hash password").Wrap(errors.Join(ErrUnavailable, err))
	}

	record := &CredentialRecord{
		Identifier:   identifier,
		Hash:         digest,
		Salt:         salt,
		Capabilities: caps,
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}

	if err := s.repo.Put(ctx, record); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, duplicateIdentity(identifier)
		}
		return nil, unavailable("insert record", err)
	}

	s.logger.InfoContext(ctx, "user created", "identifier", identifier, "capabilities", caps)
	return record.Identity(), nil
}

// FindByIdentifier returns the identity for identifier or an error wrapping
// ErrNotFound.
func (s *CredentialStore) FindByIdentifier(ctx context.Context, identifier string) (*UserIdentity, error) {
	record, err := s.repo.Get(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeNotFound).With("identifier", identifier).Wrap(ErrNotFound)
		}
		return nil, unavailable("lookup identifier", err)
	}
	return record.Identity(), nil
}

// VerifyCredential checks plaintext against the stored credential.
// It never reports success for an absent identifier, and performs one hash
// computation whether or not the identifier exists. The returned error is
// non-nil only when the repository is unavailable or a stored digest is
// corrupt; a mismatch is (nil, false, nil).
func (s *CredentialStore) VerifyCredential(ctx context.Context, identifier, plaintext string) (*UserIdentity, bool, error) {
	record, lookupErr := s.repo.Get(ctx, identifier)

	salt, digest, exists := s.dummySalt, s.dummyDigest, false
	switch {
	case lookupErr == nil:
		salt, digest, exists = record.Salt, record.Hash, true
	case errors.Is(lookupErr, ErrNotFound):
		// keep dummy material
	default:
		return nil, false, unavailable("lookup identifier", lookupErr)
	}

	// Always verify, success or not.
	ok, verifyErr := s.hasher.Verify(plaintext, salt, digest)
	if verifyErr != nil {
		if !exists || errors.Is(verifyErr, ErrInvalidInput) {
			return nil, false, nil
		}
		return nil, false, oops.Code(CodeInvalidHash).
			With("identifier", identifier).
			Wrap(errors.Join(ErrUnavailable, verifyErr))
	}

	if !exists || !ok {
		return nil, false, nil
	}

	if s.hasher.NeedsUpgrade(record.Hash) {
		s.upgradeCredential(ctx, identifier, plaintext)
	}

	return record.Identity(), true, nil
}

// RecordAuthentication stores the time of a successful login.
func (s *CredentialStore) RecordAuthentication(ctx context.Context, identifier string, at time.Time) error {
	if err := s.repo.UpdateLastAuthenticated(ctx, identifier, at.UTC().Truncate(time.Microsecond)); err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeNotFound).With("identifier", identifier).Wrap(ErrNotFound)
		}
		return unavailable("update last authenticated", err)
	}
	return nil
}

// Ping reports whether the repository is reachable.
func (s *CredentialStore) Ping(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// upgradeCredential rehashes with the current work factor. Best effort: the
// login has already succeeded.
func (s *CredentialStore) upgradeCredential(ctx context.Context, identifier, plaintext string) {
	salt, err := s.hasher.NewSalt()
	if err != nil {
		s.logger.WarnContext(ctx, "credential upgrade skipped", "identifier", identifier, "error", err)
		return
	}
	digest, err := s.hasher.Hash(plaintext, salt)
	if err != nil {
		s.logger.WarnContext(ctx, "credential upgrade skipped", "identifier", identifier, "error", err)
		return
	}
	if err := s.repo.UpdateCredential(ctx, identifier, digest, salt); err != nil {
		s.logger.WarnContext(ctx, "credential upgrade failed", "identifier", identifier, "error", err)
		return
	}
	s.logger.InfoContext(ctx, "credential upgraded to current work factor", "identifier", identifier)
}

func duplicateIdentity(identifier string) error {
	return oops.Code(CodeDuplicateIdentity).
		With("identifier", identifier).
		Wrap(ErrDuplicateIdentity)
}

func unavailable(operation string, cause error) error {
	return oops.Code(CodeStoreUnavailable).
		With("operation", operation).
		Wrap(errors.Join(ErrUnavailable, cause))
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rapid Connect Contributors

// Package postgres implements auth.CredentialRepository on PostgreSQL. The
// schema is owned by internal/store migrations.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/AnShIkA-TrIpAtHi-2022/backend/internal/auth"
)

// poolIface is the subset of *pgxpool.Pool used here; pgxmock satisfies it.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// CredentialRepository stores credential records in the users table.
type CredentialRepository struct {
	pool poolIface
}

// NewCredentialRepository creates a CredentialRepository.
func NewCredentialRepository(pool poolIface) *CredentialRepository {
	return &CredentialRepository{pool: pool}
}

// Get retrieves the record for identifier.
func (r *CredentialRepository) Get(ctx context.Context, identifier string) (*auth.CredentialRecord, error) {
	rec := &auth.CredentialRecord{}
	err := r.pool.QueryRow(ctx, `
		SELECT identifier, password_hash, password_salt, capabilities, created_at, last_authenticated_at
		FROM users
		WHERE identifier = $1
	`, identifier).Scan(
		&rec.Identifier,
		&rec.Hash,
		&rec.Salt,
		&rec.Capabilities,
		&rec.CreatedAt,
		&rec.LastAuthenticatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.With("identifier", identifier).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").
			With("operation", "select user").
			With("identifier", identifier).
			Wrap(err)
	}
	if rec.Capabilities == nil {
		rec.Capabilities = []string{}
	}
	return rec, nil
}

// Put inserts record. The primary key makes the insert atomic; a unique
// violation is reported as auth.ErrConflict.
func (r *CredentialRepository) Put(ctx context.Context, record *auth.CredentialRecord) error {
	caps := record.Capabilities
	if caps == nil {
		caps = []string{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (identifier, password_hash, password_salt, capabilities, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		record.Identifier,
		record.Hash,
		record.Salt,
		caps,
		record.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.With("identifier", record.Identifier).
				With("constraint", pgErr.ConstraintName).
				Wrap(auth.ErrConflict)
		}
		return oops.Code("USER_INSERT_FAILED").
			With("operation", "insert user").
			With("identifier", record.Identifier).
			Wrap(err)
	}
	return nil
}

// UpdateLastAuthenticated sets last_authenticated_at.
func (r *CredentialRepository) UpdateLastAuthenticated(ctx context.Context, identifier string, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET last_authenticated_at = $2 WHERE identifier = $1`,
		identifier, at)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update last authenticated").
			With("identifier", identifier).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.With("identifier", identifier).Wrap(auth.ErrNotFound)
	}
	return nil
}

// UpdateCredential replaces the stored hash and salt.
func (r *CredentialRepository) UpdateCredential(ctx context.Context, identifier, hash string, salt []byte) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, password_salt = $3 WHERE identifier = $1`,
		identifier, hash, salt)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update credential").
			With("identifier", identifier).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.With("identifier", identifier).Wrap(auth.ErrNotFound)
	}
	return nil
}

// Ping checks the connection.
func (r *CredentialRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return oops.Code("USER_STORE_PING_FAILED").Wrap(err)
	}
	return nil
}

var _ auth.CredentialRepository = (*CredentialRepository)(nil)

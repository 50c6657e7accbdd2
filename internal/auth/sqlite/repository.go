// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rapid Connect Contributors

// Package sqlite implements auth.CredentialRepository on an embedded SQLite
// database (modernc.org/sqlite, no cgo). The schema is created on open.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/oops"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/AnShIkA-TrIpAtHi-2022/backend/internal/auth"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const schema = `
	CREATE TABLE IF NOT EXISTS users (
		identifier            TEXT PRIMARY KEY,
		password_hash         TEXT NOT NULL,
		password_salt         BLOB NOT NULL,
		capabilities          TEXT NOT NULL DEFAULT '[]',
		created_at            TEXT NOT NULL,
		last_authenticated_at TEXT
	);
`

// CredentialRepository stores credential records in SQLite.
type CredentialRepository struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists. Parent directories are created.
func Open(ctx context.Context, path string) (*CredentialRepository, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, oops.Code("SQLITE_OPEN_FAILED").With("path", path).Wrap(err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, oops.Code("SQLITE_OPEN_FAILED").With("path", path).Wrap(err)
	}
	// One connection: an in-memory database is per connection, and SQLite
	// serializes writers anyway.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		schema,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, oops.Code("SQLITE_SCHEMA_FAILED").With("path", path).Wrap(err)
		}
	}

	return &CredentialRepository{db: db}, nil
}

// Close closes the database.
func (r *CredentialRepository) Close() error {
	return r.db.Close()
}

// Get retrieves the record for identifier.
func (r *CredentialRepository) Get(ctx context.Context, identifier string) (*auth.CredentialRecord, error) {
	var (
		rec      auth.CredentialRecord
		caps     string
		created  string
		lastAuth sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT identifier, password_hash, password_salt, capabilities, created_at, last_authenticated_at
		FROM users WHERE identifier = ?
	`, identifier).Scan(&rec.Identifier, &rec.Hash, &rec.Salt, &caps, &created, &lastAuth)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.With("identifier", identifier).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("identifier", identifier).Wrap(err)
	}

	if err := json.Unmarshal([]byte(caps), &rec.Capabilities); err != nil {
		return nil, oops.Code("USER_ROW_CORRUPT").With("identifier", identifier).With("column", "capabilities").Wrap(err)
	}
	if rec.Capabilities == nil {
		rec.Capabilities = []string{}
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, oops.Code("USER_ROW_CORRUPT").With("identifier", identifier).With("column", "created_at").Wrap(err)
	}
	if lastAuth.Valid {
		t, err := time.Parse(time.RFC3339Nano, lastAuth.String)
		if err != nil {
			return nil, oops.Code("USER_ROW_CORRUPT").With("identifier", identifier).With("column", "last_authenticated_at").Wrap(err)
		}
		rec.LastAuthenticatedAt = &t
	}
	return &rec, nil
}

// Put inserts record; the primary key rejects duplicates with auth.ErrConflict.
func (r *CredentialRepository) Put(ctx context.Context, record *auth.CredentialRecord) error {
	caps := record.Capabilities
	if caps == nil {
		caps = []string{}
	}
	capsJSON, err := json.Marshal(caps)
	if err != nil {
		return oops.Code("USER_INSERT_FAILED").With("identifier", record.Identifier).Wrap(err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (identifier, password_hash, password_salt, capabilities, created_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		record.Identifier,
		record.Hash,
		record.Salt,
		string(capsJSON),
		record.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return oops.With("identifier", record.Identifier).Wrap(auth.ErrConflict)
		}
		return oops.Code("USER_INSERT_FAILED").With("identifier", record.Identifier).Wrap(err)
	}
	return nil
}

// UpdateLastAuthenticated sets last_authenticated_at.
func (r *CredentialRepository) UpdateLastAuthenticated(ctx context.Context, identifier string, at time.Time) error {
	return r.update(ctx, identifier, "update last authenticated",
		`UPDATE users SET last_authenticated_at = ? WHERE identifier = ?`,
		at.UTC().Format(time.RFC3339Nano), identifier)
}

// UpdateCredential replaces the stored hash and salt.
func (r *CredentialRepository) UpdateCredential(ctx context.Context, identifier, hash string, salt []byte) error {
	return r.update(ctx, identifier, "update credential",
		`UPDATE users SET password_hash = ?, password_salt = ? WHERE identifier = ?`,
		hash, salt, identifier)
}

func (r *CredentialRepository) update(ctx context.Context, identifier, operation, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").With("operation", operation).With("identifier", identifier).Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").With("operation", operation).With("identifier", identifier).Wrap(err)
	}
	if n == 0 {
		return oops.With("identifier", identifier).Wrap(auth.ErrNotFound)
	}
	return nil
}

// Ping checks the database handle.
func (r *CredentialRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return oops.Code("USER_STORE_PING_FAILED").Wrap(err)
	}
	return nil
}

func isConstraintViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ auth.CredentialRepository = (*CredentialRepository)(nil)

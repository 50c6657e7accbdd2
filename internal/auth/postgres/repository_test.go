// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rapid Connect Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnShIkA-TrIpAtHi-2022/backend/internal/auth"
	"github.com/AnShIkA-TrIpAtHi-2022/backend/pkg/errutil"
)

var userColumns = []string{
	"identifier", "password_hash", "password_salt", "capabilities", "created_at", "last_authenticated_at",
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

func TestCredentialRepository_Get(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	lastAuth := created.Add(time.Hour)
	salt := []byte("0123456789abcdef")

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		want      *auth.CredentialRecord
		wantIs    error
		wantCode  string
	}{
		{
			name: "found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`FROM users`).
					WithArgs("alice").
					WillReturnRows(pgxmock.NewRows(userColumns).
						AddRow("alice", "digest", salt, []string{"read"}, created, &lastAuth))
			},
			want: &auth.CredentialRecord{
				Identifier:          "alice",
				Hash:                "digest",
				Salt:                salt,
				Capabilities:        []string{"read"},
				CreatedAt:           created,
				LastAuthenticatedAt: &lastAuth,
			},
		},
		{
			name: "not found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`FROM users`).
					WithArgs("nobody").
					WillReturnRows(pgxmock.NewRows(userColumns))
			},
			wantIs: auth.ErrNotFound,
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`FROM users`).
					WithArgs("alice").
					WillReturnError(errors.New("connection refused"))
			},
			wantCode: "USER_QUERY_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			tt.setupMock(mock)

			id := "alice"
			if tt.wantIs == auth.ErrNotFound {
				id = "nobody"
			}
			got, err := NewCredentialRepository(mock).Get(context.Background(), id)

			switch {
			case tt.wantIs != nil:
				assert.ErrorIs(t, err, tt.wantIs)
			case tt.wantCode != "":
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, tt.wantCode)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestCredentialRepository_Put(t *testing.T) {
	rec := &auth.CredentialRecord{
		Identifier:   "alice",
		Hash:         "digest",
		Salt:         []byte("0123456789abcdef"),
		Capabilities: []string{"read"},
		CreatedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	t.Run("inserts", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(rec.Identifier, rec.Hash, rec.Salt, rec.Capabilities, rec.CreatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, NewCredentialRepository(mock).Put(context.Background(), rec))
	})

	t.Run("unique violation is a conflict", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(rec.Identifier, rec.Hash, rec.Salt, rec.Capabilities, rec.CreatedAt).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_pkey"})

		err := NewCredentialRepository(mock).Put(context.Background(), rec)
		assert.ErrorIs(t, err, auth.ErrConflict)
	})

	t.Run("other errors are not conflicts", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(rec.Identifier, rec.Hash, rec.Salt, rec.Capabilities, rec.CreatedAt).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.CheckViolation})

		err := NewCredentialRepository(mock).Put(context.Background(), rec)
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrConflict)
		errutil.AssertErrorCode(t, err, "USER_INSERT_FAILED")
	})
}

func TestCredentialRepository_Updates(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	salt := []byte("fedcba9876543210")

	t.Run("last authenticated", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE users SET last_authenticated_at`).
			WithArgs("alice", at).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		require.NoError(t, NewCredentialRepository(mock).UpdateLastAuthenticated(context.Background(), "alice", at))
	})

	t.Run("last authenticated missing row", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE users SET last_authenticated_at`).
			WithArgs("nobody", at).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		err := NewCredentialRepository(mock).UpdateLastAuthenticated(context.Background(), "nobody", at)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("credential", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE users SET password_hash`).
			WithArgs("alice", "digest2", salt).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		require.NoError(t, NewCredentialRepository(mock).UpdateCredential(context.Background(), "alice", "digest2", salt))
	})

	t.Run("credential error", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE users SET password_hash`).
			WithArgs("alice", "digest2", salt).
			WillReturnError(errors.New("connection reset"))
		err := NewCredentialRepository(mock).UpdateCredential(context.Background(), "alice", "digest2", salt)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "USER_UPDATE_FAILED")
	})
}

func TestCredentialRepository_Ping(t *testing.T) {
	mock := newMock(t)
	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("down"))

	repo := NewCredentialRepository(mock)
	require.NoError(t, repo.Ping(context.Background()))
	err := repo.Ping(context.Background())
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "USER_STORE_PING_FAILED")
}

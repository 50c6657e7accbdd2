// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rapid Connect Contributors

package sqlite_test

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnShIkA-TrIpAtHi-2022/backend/internal/auth"
	"github.com/AnShIkA-TrIpAtHi-2022/backend/internal/auth/sqlite"
)

func openRepo(t *testing.T) *sqlite.CredentialRepository {
	t.Helper()
	repo, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "data", "users.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func record(id string) *auth.CredentialRecord {
	return &auth.CredentialRecord{
		Identifier:   id,
		Hash:         "$argon2id$v=19$m=64,t=1,p=1$a2V5",
		Salt:         []byte("0123456789abcdef"),
		Capabilities: []string{"read", "users.*"},
		CreatedAt:    time.Date(2026, 2, 3, 4, 5, 6, 789000, time.UTC),
	}
}

func TestCredentialRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)

	rec := record("alice")
	require.NoError(t, repo.Put(ctx, rec))

	got, err := repo.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, rec.Identifier, got.Identifier)
	assert.Equal(t, rec.Hash, got.Hash)
	assert.Equal(t, rec.Salt, got.Salt)
	assert.Equal(t, rec.Capabilities, got.Capabilities)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
	assert.Nil(t, got.LastAuthenticatedAt)

	_, err = repo.Get(ctx, "nobody")
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestCredentialRepository_DuplicateIsConflict(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)

	require.NoError(t, repo.Put(ctx, record("alice")))
	assert.ErrorIs(t, repo.Put(ctx, record("alice")), auth.ErrConflict)
}

func TestCredentialRepository_ConcurrentPut(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)

	var wg sync.WaitGroup
	var ok, conflict atomic.Int32
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.Put(ctx, record("racer")); err == nil {
				ok.Add(1)
			} else if assert.ErrorIs(t, err, auth.ErrConflict) {
				conflict.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(19), conflict.Load())
}

func TestCredentialRepository_Updates(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	require.NoError(t, repo.Put(ctx, record("bob")))

	at := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	require.NoError(t, repo.UpdateLastAuthenticated(ctx, "bob", at))
	require.NoError(t, repo.UpdateCredential(ctx, "bob", "digest2", []byte("fedcba9876543210")))

	got, err := repo.Get(ctx, "bob")
	require.NoError(t, err)
	require.NotNil(t, got.LastAuthenticatedAt)
	assert.True(t, at.Equal(*got.LastAuthenticatedAt))
	assert.Equal(t, "digest2", got.Hash)
	assert.Equal(t, []byte("fedcba9876543210"), got.Salt)

	assert.ErrorIs(t, repo.UpdateLastAuthenticated(ctx, "nobody", at), auth.ErrNotFound)
	assert.ErrorIs(t, repo.UpdateCredential(ctx, "nobody", "x", nil), auth.ErrNotFound)
	assert.NoError(t, repo.Ping(ctx))
}

func TestOpen_Memory(t *testing.T) {
	repo, err := sqlite.Open(context.Background(), sqlite.MemoryPath)
	require.NoError(t, err)
	defer repo.Close()

	require.NoError(t, repo.Put(context.Background(), record("carol")))
	_, err = repo.Get(context.Background(), "carol")
	assert.NoError(t, err)
}

func TestOpen_LeavesLoggingToCaller(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))

	repo, err := sqlite.Open(context.Background(), sqlite.MemoryPath)
	require.NoError(t, err)
	defer repo.Close()

	assert.Empty(t, buf.String())
}

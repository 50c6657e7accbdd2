// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rapid Connect Contributors

package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/AnShIkA-TrIpAtHi-2022/backend/internal/auth"
)

func TestMemoryRevocationList(t *testing.T) {
	defer goleak.VerifyNone(t)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := newTestClock(now)
	l := auth.NewMemoryRevocationList(time.Hour, clock.Now)
	defer l.Close()

	assert.False(t, l.IsRevoked("jti-1"))

	l.Revoke("jti-1", now.Add(time.Minute))
	l.Revoke("", now.Add(time.Minute))
	assert.True(t, l.IsRevoked("jti-1"))
	assert.Equal(t, 1, l.Len(), "empty ids are ignored")

	t.Run("keeps the later expiry", func(t *testing.T) {
		l.Revoke("jti-1", now.Add(time.Second))
		clock.Add(30 * time.Second)
		assert.True(t, l.IsRevoked("jti-1"))
		clock.Set(now)
	})

	t.Run("entry lapses at expiry", func(t *testing.T) {
		clock.Set(now.Add(time.Minute))
		assert.False(t, l.IsRevoked("jti-1"))
		assert.Equal(t, 1, l.Len())

		l.Purge()
		assert.Zero(t, l.Len())
	})
}

func TestMemoryRevocationList_BackgroundPurge(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := auth.NewMemoryRevocationList(5*time.Millisecond, nil)
	l.Revoke("jti-1", time.Now().Add(-time.Second))
	l.Revoke("jti-2", time.Now().Add(time.Hour))

	assert.Eventually(t, func() bool { return l.Len() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, l.IsRevoked("jti-2"))

	l.Close()
	l.Close()
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rapid Connect Contributors

package auth_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnShIkA-TrIpAtHi-2022/backend/internal/auth"
)

func TestNormalizeCapabilities(t *testing.T) {
	t.Run("sorts and de-duplicates", func(t *testing.T) {
		got, err := auth.NormalizeCapabilities([]string{"write", " read", "read", "admin"})
		require.NoError(t, err)
		assert.Equal(t, []string{"admin", "read", "write"}, got)
	})

	t.Run("nil yields empty non-nil", func(t *testing.T) {
		got, err := auth.NormalizeCapabilities(nil)
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	for _, bad := range []string{"", "  ", "two words", "a,b", "tab\there"} {
		t.Run(fmt.Sprintf("rejects %q", bad), func(t *testing.T) {
			_, err := auth.NormalizeCapabilities([]string{"read", bad})
			assert.ErrorIs(t, err, auth.ErrInvalidInput)
		})
	}

	t.Run("rejects too many", func(t *testing.T) {
		caps := make([]string, auth.MaxCapabilities+1)
		for i := range caps {
			caps[i] = fmt.Sprintf("cap.%d", i)
		}
		_, err := auth.NormalizeCapabilities(caps)
		assert.ErrorIs(t, err, auth.ErrInvalidInput)
	})
}

func TestCapabilitySet_Allows(t *testing.T) {
	tests := []struct {
		name     string
		grants   []string
		required string
		want     bool
	}{
		{"exact match", []string{"read"}, "read", true},
		{"no match", []string{"read"}, "admin", false},
		{"empty grants", nil, "read", false},
		{"empty requirement", []string{"**"}, "", false},
		{"single star child", []string{"users.*"}, "users.read", true},
		{"single star stops at separator", []string{"users.*"}, "users.profile.read", false},
		{"single star needs segment", []string{"users.*"}, "users", false},
		{"double star descendant", []string{"users.**"}, "users.profile.read", true},
		{"double star everything", []string{"**"}, "admin", true},
		{"literal is not a prefix", []string{"users"}, "users.read", false},
		{"alternatives", []string{"users.{read,write}"}, "users.write", true},
		{"broken pattern is literal", []string{"users.[read"}, "users.[read", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.NewCapabilitySet(tt.grants).Allows(tt.required))
		})
	}
}

func TestCapabilitySet_AllowsAll(t *testing.T) {
	set := auth.NewCapabilitySet([]string{"read", "users.*"})

	assert.True(t, set.AllowsAll(nil), "empty requirement is always met")
	assert.True(t, set.AllowsAll([]string{"read"}))
	assert.True(t, set.AllowsAll([]string{"read", "users.write"}))
	assert.False(t, set.AllowsAll([]string{"read", "admin"}))

	assert.Equal(t, []string{"admin"}, set.Missing([]string{"read", "admin"}))
	assert.Empty(t, set.Missing([]string{"users.delete"}))
}

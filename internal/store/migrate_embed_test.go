// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rapid Connect Contributors

package store

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsFS_EmbeddedFiles(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)

	pattern := regexp.MustCompile(`^\d{6}_\w+\.(up|down)\.sql$`)
	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		assert.True(t, pattern.MatchString(name), "file %s should match NNNNNN_name.(up|down).sql", name)
		if base, ok := strings.CutSuffix(name, ".up.sql"); ok {
			ups[base] = true
		}
		if base, ok := strings.CutSuffix(name, ".down.sql"); ok {
			downs[base] = true
		}
	}

	assert.True(t, ups["000001_users"], "users table migration should be embedded")
	assert.Equal(t, ups, downs, "every up migration needs a down migration")
}

func TestUsersMigration_Schema(t *testing.T) {
	body, err := migrationsFS.ReadFile("migrations/000001_users.up.sql")
	require.NoError(t, err)
	sql := string(body)

	assert.Contains(t, sql, "identifier             TEXT PRIMARY KEY")
	assert.Contains(t, sql, "password_salt")
	assert.Contains(t, sql, "capabilities")
}

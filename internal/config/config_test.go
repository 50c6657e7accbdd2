// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rapid Connect Contributors

package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/AnShIkA-TrIpAtHi-2022/backend/internal/auth"
	"github.com/AnShIkA-TrIpAtHi-2022/backend/internal/config"
	"github.com/AnShIkA-TrIpAtHi-2022/backend/pkg/errutil"
)

const secret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backend.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func validConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("BACKEND_AUTH_SIGNING_SECRET", secret)
	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Empty(t, cfg.Server.GRPCAddr)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadHeaderTimeout)
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Addr)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, auth.DefaultTokenTTL, cfg.Auth.DefaultTTL)
	assert.Equal(t, auth.DefaultMaxTTL, cfg.Auth.MaxTTL)
	assert.Equal(t, []string{"read"}, cfg.Auth.DefaultCapabilities)
	assert.Equal(t, auth.DefaultArgon2Params(), cfg.Auth.Password.Argon2Params())
	assert.Equal(t, auth.DefaultLoginBurst, cfg.Auth.LoginRate.Burst)
	assert.InDelta(t, auth.DefaultLoginRate, cfg.Auth.LoginRate.PerSecond, 1e-9)
	assert.Equal(t, config.DriverMemory, cfg.Store.Driver)
	assert.Equal(t, 5, cfg.Store.ConnectAttempts)

	err = cfg.Validate()
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	errutil.AssertErrorContext(t, err, "field", "auth.signing_secret")
}

func TestLoad_Layering(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: ":9090"
log:
  format: text
  level: debug
auth:
  signing_secret: "`+secret+`"
  default_ttl: 30m
  default_capabilities: [read, users.read]
  password:
    memory_kib: 32768
store:
  driver: sqlite
  dsn: /var/lib/backend/users.db
`)
	t.Setenv("BACKEND_LOG_LEVEL", "warn")
	t.Setenv("BACKEND_AUTH_LOGIN_RATE_BURST", "9")
	t.Setenv("BACKEND_UNRELATED", "ignored")

	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	config.BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--http-addr", ":7070", "--grpc-addr=:7071"}))

	cfg, err := config.Load(path, fs)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":7070", cfg.Server.HTTPAddr, "flag beats file")
	assert.Equal(t, ":7071", cfg.Server.GRPCAddr)
	assert.Equal(t, "text", cfg.Log.Format, "file beats default")
	assert.Equal(t, "warn", cfg.Log.Level, "env beats file")
	assert.Equal(t, 30*time.Minute, cfg.Auth.DefaultTTL)
	assert.Equal(t, []string{"read", "users.read"}, cfg.Auth.DefaultCapabilities)
	assert.Equal(t, uint32(32768), cfg.Auth.Password.MemoryKiB)
	assert.Equal(t, auth.DefaultArgon2Params().Time, cfg.Auth.Password.Time, "unset nested keys keep defaults")
	assert.Equal(t, 9, cfg.Auth.LoginRate.Burst)
	assert.Equal(t, config.DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Addr, "unchanged flags do not override")
}

func TestLoad_EnvCapabilitiesList(t *testing.T) {
	t.Setenv("BACKEND_AUTH_DEFAULT_CAPABILITIES", "read,write")
	t.Setenv("BACKEND_AUTH_SIGNING_SECRET", secret)
	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"read", "write"}, cfg.Auth.DefaultCapabilities)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvCapabilitiesListTrimsItems(t *testing.T) {
	t.Setenv("BACKEND_AUTH_DEFAULT_CAPABILITIES", " read , users.read ,")
	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"read", "users.read"}, cfg.Auth.DefaultCapabilities)
}

func TestLoad_EnvCapabilitiesEmpty(t *testing.T) {
	t.Setenv("BACKEND_AUTH_DEFAULT_CAPABILITIES", "")
	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.Auth.DefaultCapabilities)
}

func TestLoad_Errors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	errutil.AssertErrorCode(t, err, "CONFIG_LOAD_FAILED")

	_, err = config.Load(writeConfig(t, "server: [not, a, map"), nil)
	errutil.AssertErrorCode(t, err, "CONFIG_LOAD_FAILED")

	_, err = config.Load(writeConfig(t, "auth:\n  default_ttl: forever\n"), nil)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		field  string
	}{
		{"empty http addr", func(c *config.Config) { c.Server.HTTPAddr = "" }, "server.http_addr"},
		{"zero header timeout", func(c *config.Config) { c.Server.ReadHeaderTimeout = 0 }, "server.read_header_timeout"},
		{"zero shutdown timeout", func(c *config.Config) { c.Server.ShutdownTimeout = 0 }, "server.shutdown_timeout"},
		{"bad log format", func(c *config.Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad log level", func(c *config.Config) { c.Log.Level = "loud" }, "log.level"},
		{"short secret", func(c *config.Config) { c.Auth.SigningSecret = "short" }, "auth.signing_secret"},
		{"sub-second ttl", func(c *config.Config) { c.Auth.DefaultTTL = 500 * time.Millisecond }, "auth.default_ttl"},
		{"max below default", func(c *config.Config) { c.Auth.MaxTTL = time.Minute }, "auth.max_ttl"},
		{"bad capability", func(c *config.Config) { c.Auth.DefaultCapabilities = []string{"a b"} }, "auth.default_capabilities"},
		{"zero argon time", func(c *config.Config) { c.Auth.Password.Time = 0 }, "auth.password"},
		{"argon memory too small", func(c *config.Config) { c.Auth.Password.MemoryKiB = 8 }, "auth.password.memory_kib"},
		{"zero burst", func(c *config.Config) { c.Auth.LoginRate.Burst = 0 }, "auth.login_rate.burst"},
		{"tiny rate", func(c *config.Config) { c.Auth.LoginRate.PerSecond = 0.00001 }, "auth.login_rate.per_second"},
		{"unknown driver", func(c *config.Config) { c.Store.Driver = "mysql" }, "store.driver"},
		{"postgres without dsn", func(c *config.Config) { c.Store.Driver = config.DriverPostgres }, "store.dsn"},
		{"sqlite without dsn", func(c *config.Config) { c.Store.Driver = config.DriverSQLite }, "store.dsn"},
		{"zero connect attempts", func(c *config.Config) { c.Store.ConnectAttempts = 0 }, "store.connect_attempts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			errutil.AssertErrorContext(t, err, "field", tt.field)
		})
	}
}

func TestConfig_YAMLRedactsSecrets(t *testing.T) {
	cfg := validConfig(t)
	cfg.Store.Driver = config.DriverPostgres
	cfg.Store.DSN = "postgres://backend:hunter2@db:5432/backend?sslmode=disable"

	out, err := cfg.YAML()
	require.NoError(t, err)

	text := string(out)
	assert.NotContains(t, text, secret)
	assert.NotContains(t, text, "hunter2")
	assert.Contains(t, text, "[REDACTED]")
	assert.Contains(t, text, "default_ttl: 1h0m0s")

	var decoded map[string]map[string]any
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	assert.True(t, strings.HasPrefix(decoded["store"]["dsn"].(string), "postgres://backend:xxxxx@db:5432/"))

	assert.Equal(t, secret, cfg.Auth.SigningSecret, "original is untouched")
}

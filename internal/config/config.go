// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rapid Connect Contributors

// Package config loads the service configuration.
//
// Sources are layered, later ones winning:
//  1. built-in defaults
//  2. the YAML file passed with --config
//  3. BACKEND_* environment variables (auth.signing_secret is
//     BACKEND_AUTH_SIGNING_SECRET; list keys take comma-separated values)
//  4. command-line flags that were explicitly set
package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/AnShIkA-TrIpAtHi-2022/backend/internal/auth"
	"github.com/AnShIkA-TrIpAtHi-2022/backend/internal/logging"
)

// EnvPrefix prefixes environment variables read by Load.
const EnvPrefix = "BACKEND_"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const redacted = "[REDACTED]"

// Config is the effective service configuration. It is loaded once at
// startup and not modified afterwards.
type Config struct {
	Server  ServerConfig  `koanf:"server" yaml:"server"`
	Metrics MetricsConfig `koanf:"metrics" yaml:"metrics"`
	Log     LogConfig     `koanf:"log" yaml:"log"`
	Auth    AuthConfig    `koanf:"auth" yaml:"auth"`
	Store   StoreConfig   `koanf:"store" yaml:"store"`
}

// ServerConfig configures the API listeners.
type ServerConfig struct {
	HTTPAddr          string        `koanf:"http_addr" yaml:"http_addr"`
	GRPCAddr          string        `koanf:"grpc_addr" yaml:"grpc_addr"` // empty disables gRPC
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// MetricsConfig configures the observability server. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" yaml:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format" yaml:"format"`
	Level  string `koanf:"level" yaml:"level"`
}

// AuthConfig configures token issuance and credential hashing.
type AuthConfig struct {
	SigningSecret       string          `koanf:"signing_secret" yaml:"signing_secret"`
	DefaultTTL          time.Duration   `koanf:"default_ttl" yaml:"default_ttl"`
	MaxTTL              time.Duration   `koanf:"max_ttl" yaml:"max_ttl"`
	DefaultCapabilities []string        `koanf:"default_capabilities" yaml:"default_capabilities"`
	CookieName          string          `koanf:"cookie_name" yaml:"cookie_name"`
	Password            PasswordConfig  `koanf:"password" yaml:"password"`
	LoginRate           LoginRateConfig `koanf:"login_rate" yaml:"login_rate"`
}

// PasswordConfig holds the argon2id work factor.
type PasswordConfig struct {
	Time      uint32 `koanf:"time" yaml:"time"`
	MemoryKiB uint32 `koanf:"memory_kib" yaml:"memory_kib"`
	Threads   uint8  `koanf:"threads" yaml:"threads"`
	MaxBytes  int    `koanf:"max_bytes" yaml:"max_bytes"`
}

// LoginRateConfig configures per-identifier login throttling.
type LoginRateConfig struct {
	Burst     int     `koanf:"burst" yaml:"burst"`
	PerSecond float64 `koanf:"per_second" yaml:"per_second"`
}

// StoreConfig selects the credential repository.
type StoreConfig struct {
	Driver          string `koanf:"driver" yaml:"driver"`
	DSN             string `koanf:"dsn" yaml:"dsn"`
	ConnectAttempts int    `koanf:"connect_attempts" yaml:"connect_attempts"`
	AutoMigrate     bool   `koanf:"auto_migrate" yaml:"auto_migrate"`
}

// Argon2Params converts the password settings for auth.NewArgon2idHasher.
func (p PasswordConfig) Argon2Params() auth.Argon2Params {
	return auth.Argon2Params{
		Time:           p.Time,
		MemoryKiB:      p.MemoryKiB,
		Threads:        p.Threads,
		MaxPasswordLen: p.MaxBytes,
	}
}

// defaults returns the built-in configuration as flat koanf keys.
func defaults() map[string]any {
	argon := auth.DefaultArgon2Params()
	return map[string]any{
		"server.http_addr":           ":8080",
		"server.grpc_addr":           "",
		"server.read_header_timeout": "10s",
		"server.shutdown_timeout":    "10s",
		"metrics.addr":               "127.0.0.1:9100",
		"log.format":                 "json",
		"log.level":                  "info",
		"auth.signing_secret":        "",
		"auth.default_ttl":           auth.DefaultTokenTTL.String(),
		"auth.max_ttl":               auth.DefaultMaxTTL.String(),
		"auth.default_capabilities":  append([]string(nil), auth.DefaultCapabilities...),
		"auth.cookie_name":           "",
		"auth.password.time":         argon.Time,
		"auth.password.memory_kib":   argon.MemoryKiB,
		"auth.password.threads":      argon.Threads,
		"auth.password.max_bytes":    argon.MaxPasswordLen,
		"auth.login_rate.burst":      auth.DefaultLoginBurst,
		"auth.login_rate.per_second": auth.DefaultLoginRate,
		"store.driver":               DriverMemory,
		"store.dsn":                  "",
		"store.connect_attempts":     5,
		"store.auto_migrate":         false,
	}
}

// listKeys are the keys whose environment value is a comma-separated list.
var listKeys = map[string]struct{}{
	"auth.default_capabilities": {},
}

// splitList splits a comma-separated value, dropping surrounding spaces and
// empty items.
func splitList(value string) []string {
	out := []string{}
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"http-addr":    "server.http_addr",
	"grpc-addr":    "server.grpc_addr",
	"metrics-addr": "metrics.addr",
	"log-format":   "log.format",
	"log-level":    "log.level",
	"store-driver": "store.driver",
	"store-dsn":    "store.dsn",
	"auto-migrate": "store.auto_migrate",
}

// BindFlags registers the flags that override configuration keys.
func BindFlags(fs *pflag.FlagSet) {
	d := defaults()
	fs.String("http-addr", d["server.http_addr"].(string), "HTTP API listen address")
	fs.String("grpc-addr", d["server.grpc_addr"].(string), "gRPC listen address (empty = disabled)")
	fs.String("metrics-addr", d["metrics.addr"].(string), "metrics/health HTTP address (empty = disabled)")
	fs.String("log-format", d["log.format"].(string), "log format (json or text)")
	fs.String("log-level", d["log.level"].(string), "log level (debug, info, warn, error)")
	fs.Bool("auto-migrate", d["store.auto_migrate"].(bool), "apply pending postgres migrations on start")
	BindStoreFlags(fs)
}

// BindStoreFlags registers only the credential store flags.
func BindStoreFlags(fs *pflag.FlagSet) {
	d := defaults()
	fs.String("store-driver", d["store.driver"].(string), "credential store driver (memory, postgres or sqlite)")
	fs.String("store-dsn", d["store.dsn"].(string), "postgres connection string or sqlite file path")
}

// Load builds the configuration from defaults, the optional YAML file at
// path, the environment and the explicitly set flags in fs. fs may be nil.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "defaults").Wrap(err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "file").With("path", path).Wrap(err)
		}
	}

	envKeys := make(map[string]string)
	for _, key := range k.Keys() {
		envKeys[EnvPrefix+strings.ToUpper(strings.ReplaceAll(key, ".", "_"))] = key
	}
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(name, value string) (string, any) {
		key, ok := envKeys[name]
		if !ok {
			return "", nil
		}
		if _, isList := listKeys[key]; isList {
			return key, splitList(value)
		}
		return key, value
	}), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	invalid := func(field, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").With("field", field).Errorf(format, args...)
	}

	if c.Server.HTTPAddr == "" {
		return invalid("server.http_addr", "http address is required")
	}
	if c.Server.ReadHeaderTimeout <= 0 {
		return invalid("server.read_header_timeout", "read header timeout must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return invalid("server.shutdown_timeout", "shutdown timeout must be positive")
	}
	if !logging.ValidFormat(c.Log.Format) {
		return invalid("log.format", "log format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "unknown log level %q", c.Log.Level)
	}

	if len(c.Auth.SigningSecret) < auth.MinSigningSecretLen {
		return invalid("auth.signing_secret", "signing secret must be at least %d bytes", auth.MinSigningSecretLen)
	}
	if c.Auth.DefaultTTL < time.Second {
		return invalid("auth.default_ttl", "default token ttl must be at least 1s")
	}
	if c.Auth.MaxTTL < c.Auth.DefaultTTL {
		return invalid("auth.max_ttl", "max token ttl %s is below default ttl %s", c.Auth.MaxTTL, c.Auth.DefaultTTL)
	}
	if _, err := auth.NormalizeCapabilities(c.Auth.DefaultCapabilities); err != nil {
		return oops.Code("CONFIG_INVALID").With("field", "auth.default_capabilities").Wrap(err)
	}

	p := c.Auth.Password
	if p.Time < 1 || p.Threads < 1 || p.MaxBytes < 1 {
		return invalid("auth.password", "time, threads and max_bytes must be at least 1")
	}
	if p.MemoryKiB < 8*uint32(p.Threads) {
		return invalid("auth.password.memory_kib", "memory must be at least 8 KiB per thread")
	}

	if c.Auth.LoginRate.Burst < 1 {
		return invalid("auth.login_rate.burst", "burst must be at least 1")
	}
	if c.Auth.LoginRate.PerSecond < auth.MinLoginRate {
		return invalid("auth.login_rate.per_second", "rate must be at least %g per second", auth.MinLoginRate)
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres, DriverSQLite:
		if c.Store.DSN == "" {
			return invalid("store.dsn", "dsn is required for the %s driver", c.Store.Driver)
		}
	default:
		return invalid("store.driver", "unknown store driver %q", c.Store.Driver)
	}
	if c.Store.ConnectAttempts < 1 {
		return invalid("store.connect_attempts", "connect attempts must be at least 1")
	}

	return nil
}

// Redacted returns a copy safe to print: the signing secret and any DSN
// password are masked.
func (c *Config) Redacted() Config {
	out := *c
	out.Auth.DefaultCapabilities = append([]string(nil), c.Auth.DefaultCapabilities...)
	if out.Auth.SigningSecret != "" {
		out.Auth.SigningSecret = redacted
	}
	out.Store.DSN = redactDSN(out.Store.DSN)
	return out
}

// YAML renders the redacted configuration.
func (c *Config) YAML() ([]byte, error) {
	r := c.Redacted()
	b, err := yamlv3.Marshal(&r)
	if err != nil {
		return nil, oops.Code("CONFIG_ENCODE_FAILED").Wrap(err)
	}
	return b, nil
}

func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	return u.Redacted()
}

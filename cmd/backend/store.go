// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rapid Connect Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/samber/oops"

	"github.com/AnShIkA-TrIpAtHi-2022/backend/internal/auth"
	"github.com/AnShIkA-TrIpAtHi-2022/backend/internal/auth/memory"
	"github.com/AnShIkA-TrIpAtHi-2022/backend/internal/auth/postgres"
	"github.com/AnShIkA-TrIpAtHi-2022/backend/internal/auth/sqlite"
	"github.com/AnShIkA-TrIpAtHi-2022/backend/internal/config"
	"github.com/AnShIkA-TrIpAtHi-2022/backend/internal/store"
)

// openRepository opens the configured credential repository. The returned
// close function is never nil.
func openRepository(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (auth.CredentialRepository, func(), error) {
	switch cfg.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory credential store; users are lost on restart")
		return memory.NewCredentialRepository(), func() {}, nil

	case config.DriverSQLite:
		repo, err := sqlite.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, func() {}, err
		}
		logger.Info("opened sqlite credential store", "path", cfg.DSN)
		return repo, func() {
			if err := repo.Close(); err != nil {
				logger.Warn("error closing sqlite store", "error", err)
			}
		}, nil

	case config.DriverPostgres:
		if cfg.AutoMigrate {
			if err := migrateUp(cfg.DSN, logger); err != nil {
				return nil, func() {}, err
			}
		}
		pool, err := store.Connect(ctx, cfg.DSN, store.ConnectOptions{
			Attempts: uint64(cfg.ConnectAttempts), //nolint:gosec // validated >= 1
			Logger:   logger,
		})
		if err != nil {
			return nil, func() {}, err
		}
		logger.Info("connected to postgres credential store")
		return postgres.NewCredentialRepository(pool), pool.Close, nil

	default:
		return nil, func() {}, oops.Code("CONFIG_INVALID").
			With("field", "store.driver").
			Errorf("unknown store driver %q", cfg.Driver)
	}
}

func migrateUp(dsn string, logger *slog.Logger) error {
	migrator, err := store.NewMigrator(dsn)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("error closing migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	version, _, err := migrator.Version()
	if err == nil {
		logger.Info("database schema up to date", "version", version)
	}
	return nil
}

// newCredentialStore wires the repository to a hasher with the configured
// work factor.
func newCredentialStore(repo auth.CredentialRepository, cfg *config.Config, logger *slog.Logger) (*auth.CredentialStore, error) {
	hasher := auth.NewArgon2idHasher(cfg.Auth.Password.Argon2Params())
	return auth.NewCredentialStore(repo, hasher, logger)
}

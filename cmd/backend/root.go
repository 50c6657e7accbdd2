// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rapid Connect Contributors

package main

import (
	"log/slog"
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/AnShIkA-TrIpAtHi-2022/backend/internal/config"
	"github.com/AnShIkA-TrIpAtHi-2022/backend/internal/logging"
	"github.com/AnShIkA-TrIpAtHi-2022/backend/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the backend CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backend",
		Short: "Users and authentication backend",
		Long: `backend registers users, verifies their credentials and issues
signed, capability-scoped access tokens.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewUserCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// loadConfig loads the configuration for cmd. Without --config the XDG
// config file is used if it exists, and a sqlite store with no DSN gets the
// XDG data path. When validate is true an invalid configuration is an error.
func loadConfig(cmd *cobra.Command, validate bool) (*config.Config, error) {
	path := configFile
	if path == "" {
		if def, err := xdg.ConfigFile(); err == nil {
			if _, statErr := os.Stat(def); statErr == nil {
				path = def
			}
		}
	}

	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if cfg.Store.Driver == config.DriverSQLite && cfg.Store.DSN == "" {
		dsn, err := xdg.SQLitePath()
		if err != nil {
			return nil, err
		}
		cfg.Store.DSN = dsn
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// setupLogging configures the default slog logger from cfg.
func setupLogging(cfg *config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("field", "log.level").Wrap(err)
	}
	return logging.SetDefault("backend", version, logging.Options{
		Format: cfg.Log.Format,
		Level:  level,
	}, os.Stderr), nil
}

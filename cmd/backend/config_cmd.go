// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rapid Connect Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/AnShIkA-TrIpAtHi-2022/backend/internal/config"
)

// NewConfigCmd creates the config subcommand, which prints the effective
// configuration with secrets redacted and then validates it.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print and validate the effective configuration",
		Long: `Resolve defaults, the config file, BACKEND_* environment variables
and flags the same way serve does, print the result as YAML with secrets
redacted, then report whether it is valid.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, false)
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			cmd.Print(string(out))

			if err := cfg.Validate(); err != nil {
				return oops.Wrapf(err, "configuration is invalid")
			}
			cmd.Println("# configuration is valid")
			return nil
		},
	}
	config.BindFlags(cmd.Flags())
	return cmd
}

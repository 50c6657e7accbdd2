// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rapid Connect Contributors

package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/AnShIkA-TrIpAtHi-2022/backend/internal/auth"
	"github.com/AnShIkA-TrIpAtHi-2022/backend/internal/config"
	"github.com/AnShIkA-TrIpAtHi-2022/backend/internal/logging"
)

// NewUserCmd creates the user subcommand for provisioning accounts that
// self-registration cannot, such as administrators.
func NewUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users in the credential store",
	}
	config.BindStoreFlags(cmd.PersistentFlags())

	cmd.AddCommand(newUserCreateCmd())
	cmd.AddCommand(newUserShowCmd())
	return cmd
}

func newUserCreateCmd() *cobra.Command {
	var (
		identifier   string
		capabilities []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user with explicit capabilities",
		Long: `Create a user. The password is read from the first line of standard
input so it never appears in the process list or shell history.`,
		Example: `  printf '%s\n' "$PASSWORD" | backend user create --identifier admin --capability '*'`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return withCredentialStore(cmd, func(ctx context.Context, creds *auth.CredentialStore) error {
				identity, err := creds.CreateUser(ctx, identifier, password, capabilities)
				if err != nil {
					return err
				}
				cmd.Printf("Created user %s with capabilities [%s]\n",
					identity.Identifier, strings.Join(identity.Capabilities, ", "))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&identifier, "identifier", "", "user identifier")
	cmd.Flags().StringArrayVar(&capabilities, "capability", nil, "capability to grant (repeatable)")
	_ = cmd.MarkFlagRequired("identifier")
	return cmd
}

func newUserShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show IDENTIFIER",
		Short: "Show a user's capabilities and activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCredentialStore(cmd, func(ctx context.Context, creds *auth.CredentialStore) error {
				identity, err := creds.FindByIdentifier(ctx, args[0])
				if err != nil {
					return err
				}
				cmd.Printf("Identifier:   %s\n", identity.Identifier)
				cmd.Printf("Capabilities: [%s]\n", strings.Join(identity.Capabilities, ", "))
				cmd.Printf("Created:      %s\n", identity.CreatedAt.Format(time.RFC3339))
				if identity.LastAuthenticatedAt != nil {
					cmd.Printf("Last login:   %s\n", identity.LastAuthenticatedAt.Format(time.RFC3339))
				} else {
					cmd.Println("Last login:   never")
				}
				return nil
			})
		},
	}
}

// readPassword returns the first line of r without its line terminator.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	if line == "" {
		return "", oops.Code("PASSWORD_REQUIRED").Errorf("password must be provided on standard input")
	}
	return line, nil
}

// withCredentialStore opens the configured durable store for a one-off
// command.
func withCredentialStore(cmd *cobra.Command, fn func(context.Context, *auth.CredentialStore) error) error {
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}
	if cfg.Store.Driver == config.DriverMemory {
		return oops.Code("CONFIG_INVALID").
			With("field", "store.driver").
			Errorf("user commands need a durable store; set --store-driver to postgres or sqlite")
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	logger := logging.Setup("backend", version, logging.Options{Format: "text", Level: level}, cmd.ErrOrStderr())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	repo, closeRepo, err := openRepository(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	creds, err := newCredentialStore(repo, cfg, logger)
	if err != nil {
		return err
	}
	return fn(ctx, creds)
}

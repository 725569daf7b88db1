// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareDesk Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/caredesk/caredesk/internal/identity"
	identitypg "github.com/caredesk/caredesk/internal/identity/postgres"
	"github.com/caredesk/caredesk/internal/store"
)

// Default timeout for the seed-admin command.
const defaultSeedTimeout = 30 * time.Second

const defaultAdminUsername = "admin"

// seedConfig holds configuration for the seed-admin command.
type seedConfig struct {
	timeout  time.Duration
	password string
}

// newSeedAdminCmd creates the seed-admin subcommand.
func newSeedAdminCmd() *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create the default admin account",
		Long: `Creates the default admin account with a freshly generated password
hash. This command is idempotent - if the admin already exists it is left
untouched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeedAdmin(cmd, args, cfg)
		},
	}

	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for database operations (e.g., 30s, 1m)")
	cmd.Flags().StringVar(&cfg.password, "password", "", "admin password (defaults to the ADMIN_PASSWORD environment variable)")

	return cmd
}

func runSeedAdmin(cmd *cobra.Command, _ []string, cfg *seedConfig) error {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("DATABASE_URL environment variable is required")
	}

	password := cfg.password
	if password == "" {
		password = os.Getenv("ADMIN_PASSWORD")
	}
	if password == "" {
		return oops.Code("CONFIG_INVALID").Errorf("admin password is required (--password or ADMIN_PASSWORD)")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.timeout)
	defer cancel()

	cmd.Println("Connecting to database...")
	st, err := store.New(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer st.Close()

	hash, err := identity.NewBcryptHasher().Hash(password)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	admin := &identity.User{
		ID:           ulid.Make(),
		Username:     defaultAdminUsername,
		PasswordHash: hash,
		IsAdmin:      true,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	repo := identitypg.NewUserRepository(st.Pool())
	if err := repo.Create(ctx, admin); err != nil {
		// A second replica or a rerun may have created the admin first.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			cmd.Println("Admin account already exists, skipping seed")
			slog.Info("admin already seeded", "username", defaultAdminUsername)
			return nil
		}
		return oops.Code("SEED_FAILED").With("operation", "create admin user").Wrap(err)
	}

	cmd.Println("Created admin account")
	slog.Info("admin seeded", "username", defaultAdminUsername, "user_id", admin.ID.String())
	return nil
}

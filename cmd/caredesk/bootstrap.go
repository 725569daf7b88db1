// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareDesk Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/caredesk/caredesk/internal/bootstrap"
	"github.com/caredesk/caredesk/internal/observability"
	"github.com/caredesk/caredesk/internal/store"
)

// provisioner is the subset of bootstrap.Provisioner the command needs.
type provisioner interface {
	EnsureAll(ctx context.Context, targets []bootstrap.Target) error
}

// bootstrapDeps contains injectable dependencies for the bootstrap command.
// All nil fields use their default implementations.
type bootstrapDeps struct {
	// LoadConfig reads the bootstrap environment contract.
	// Default: bootstrap.LoadConfig
	LoadConfig func() (bootstrap.Config, error)

	// OpenProvisioner connects to the given DSN and returns a provisioner
	// reporting operations to rec, plus a close function.
	// Default: store.New + bootstrap.NewProvisioner.
	OpenProvisioner func(ctx context.Context, dsn string, rec bootstrap.OpRecorder) (provisioner, func(), error)

	// InstallPackages installs OS packages.
	// Default: bootstrap.NewPackageInstaller().EnsureAll
	InstallPackages func(ctx context.Context, packages []string) error

	// Metrics receives per-operation provisioning outcomes.
	// Default: observability metrics on a private registry.
	Metrics bootstrap.OpRecorder
}

func (d *bootstrapDeps) applyDefaults() {
	if d.LoadConfig == nil {
		d.LoadConfig = bootstrap.LoadConfig
	}
	if d.OpenProvisioner == nil {
		d.OpenProvisioner = openProvisioner
	}
	if d.InstallPackages == nil {
		installer := bootstrap.NewPackageInstaller()
		d.InstallPackages = installer.EnsureAll
	}
	if d.Metrics == nil {
		d.Metrics = observability.NewMetrics(prometheus.NewRegistry())
	}
}

func openProvisioner(ctx context.Context, dsn string, rec bootstrap.OpRecorder) (provisioner, func(), error) {
	st, err := store.New(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	prov, err := bootstrap.NewProvisioner(st.Pool())
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	if rec != nil {
		prov.OnOp = rec.RecordProvisioningOp
	}
	return prov, st.Close, nil
}

// bootstrapConfig holds flag values for the bootstrap command.
type bootstrapConfig struct {
	allDatabases bool
}

// newBootstrapCmd creates the bootstrap subcommand.
func newBootstrapCmd() *cobra.Command {
	return newBootstrapCmdWithDeps(&bootstrapDeps{})
}

func newBootstrapCmdWithDeps(deps *bootstrapDeps) *cobra.Command {
	cfg := &bootstrapConfig{}

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Provision databases, extensions, and packages",
		Long: `Ensure the configured databases, extensions, and OS packages exist.
Targets come from the TARGET_DATABASES, TARGET_EXTENSIONS, and
TARGET_PACKAGES environment variables (comma-separated). The command is
idempotent and safe to run on every deploy.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBootstrap(cmd, cfg, deps)
		},
	}

	cmd.Flags().BoolVar(&cfg.allDatabases, "all-databases", false,
		"ensure extensions in every target database, not just the connected one")

	return cmd
}

func runBootstrap(cmd *cobra.Command, cfg *bootstrapConfig, deps *bootstrapDeps) error {
	deps.applyDefaults()
	ctx := cmd.Context()

	env, err := deps.LoadConfig()
	if err != nil {
		return err
	}

	if len(env.Packages) > 0 {
		cmd.Printf("Installing %d package(s)...\n", len(env.Packages))
		if err := deps.InstallPackages(ctx, env.Packages); err != nil {
			return err
		}
	}

	prov, closeProv, err := deps.OpenProvisioner(ctx, env.DatabaseURL, deps.Metrics)
	if err != nil {
		return err
	}
	defer closeProv()

	// Extensions live inside a database, so they apply to whichever
	// database the provisioner is connected to. Fan-out to the target
	// databases is explicit, never automatic.
	if cfg.allDatabases && len(env.Databases) > 0 && len(env.Extensions) > 0 {
		databases := make([]bootstrap.Target, 0, len(env.Databases))
		for _, name := range env.Databases {
			databases = append(databases, bootstrap.Target{Name: name, Kind: bootstrap.KindDatabase})
		}
		cmd.Printf("Ensuring %d database(s)...\n", len(databases))
		if err := prov.EnsureAll(ctx, databases); err != nil {
			return err
		}

		extensions := make([]bootstrap.Target, 0, len(env.Extensions))
		for _, name := range env.Extensions {
			extensions = append(extensions, bootstrap.Target{Name: name, Kind: bootstrap.KindExtension})
		}
		for _, name := range env.Databases {
			dsn, err := bootstrap.DSNForDatabase(env.DatabaseURL, name)
			if err != nil {
				return err
			}
			dbProv, closeDB, err := deps.OpenProvisioner(ctx, dsn, deps.Metrics)
			if err != nil {
				return err
			}
			cmd.Printf("Ensuring %d extension(s) in %s...\n", len(extensions), name)
			err = dbProv.EnsureAll(ctx, extensions)
			closeDB()
			if err != nil {
				return err
			}
		}
	} else if targets := env.Targets(); len(targets) > 0 {
		cmd.Printf("Ensuring %d target(s)...\n", len(targets))
		if err := prov.EnsureAll(ctx, targets); err != nil {
			return err
		}
	}

	slog.Info("bootstrap complete",
		"databases", len(env.Databases),
		"extensions", len(env.Extensions),
		"packages", len(env.Packages))
	cmd.Println("Bootstrap complete")
	return nil
}

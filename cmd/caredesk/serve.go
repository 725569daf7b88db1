// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareDesk Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/caredesk/caredesk/internal/config"
	"github.com/caredesk/caredesk/internal/gate"
	"github.com/caredesk/caredesk/internal/httpapi"
	"github.com/caredesk/caredesk/internal/identity"
	identitypg "github.com/caredesk/caredesk/internal/identity/postgres"
	"github.com/caredesk/caredesk/internal/logging"
	"github.com/caredesk/caredesk/internal/observability"
	"github.com/caredesk/caredesk/internal/store"
	"github.com/caredesk/caredesk/pkg/errutil"
)

const serverShutdownTimeout = 10 * time.Second

// newServeCmd creates the serve subcommand.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [-- handoff-command args...]",
		Short: "Start the CareDesk server",
		Long: `Start the CareDesk server. Startup is gated: the command waits for
storage to become reachable, applies pending schema migrations, and only
then begins serving requests.

When a handoff command is given after "--", the gate runs it as a child
process instead of serving in-process and mirrors its exit code.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, args)
		},
	}

	cmd.Flags().String("listen-addr", ":8080", "API listen address")
	cmd.Flags().String("metrics-addr", "127.0.0.1:9100", "observability listen address")
	cmd.Flags().Int("workers", 4, "request handling concurrency limit")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().String("log-format", "json", "log format (json, text)")

	return cmd
}

func runServe(cmd *cobra.Command, handoffArgs []string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	logging.SetDefault("caredesk", version, cfg.LogFormat, cfg.LogLevel)
	logger := slog.Default()

	if cfg.UsingDevSecret() {
		logger.Warn("using development token secret, set SECRET_KEY in production")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	migrator, err := store.NewMigrator(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = migrator.Close() }()

	st, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()

	g, err := gate.NewWithLogger(st, migrator, gate.RetryPolicy{Interval: gate.DefaultPollInterval}, logger)
	if err != nil {
		return err
	}

	obs := observability.NewServer(cfg.MetricsAddr, g.Ready)
	metrics := obs.Metrics()
	g.OnTransition = func(state gate.State) {
		metrics.RecordReadinessState(int(state))
		logger.Info("readiness state changed", "state", state.String())
	}

	obsErrCh, err := obs.Start()
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		_ = obs.Stop(shutdownCtx)
	}()

	if err := g.Run(ctx); err != nil {
		if isMigrationFailure(err) {
			metrics.RecordMigrationFailure()
		}
		return err
	}

	if len(handoffArgs) > 0 {
		return superviseHandoff(ctx, handoffArgs, logger)
	}
	return serveAPI(ctx, cfg, st, metrics, logger, obsErrCh)
}

// isMigrationFailure reports whether a gate failure came from applying
// migrations. Storage stalls and shutdown during the wait are not
// migration failures and must not inflate the failure counter.
func isMigrationFailure(err error) bool {
	return errutil.Code(err) == "MIGRATION_FAILED"
}

// superviseHandoff runs the configured child process and mirrors its
// exit code.
func superviseHandoff(ctx context.Context, argv []string, logger *slog.Logger) error {
	code, err := gate.Supervise(ctx, argv, logger)
	if err != nil {
		return err
	}
	if code != 0 {
		// Mirror the child's exit code rather than collapsing it to 1.
		os.Exit(code)
	}
	return nil
}

// serveAPI runs the identity HTTP API in-process until the context is
// cancelled.
func serveAPI(ctx context.Context, cfg *config.Config, st *store.Store, metrics *observability.Metrics, logger *slog.Logger, obsErrCh <-chan error) error {
	issuer, err := identity.NewTokenIssuer(cfg.SecretKey)
	if err != nil {
		return err
	}
	svc, err := identity.NewServiceWithLogger(
		identitypg.NewUserRepository(st.Pool()),
		identity.NewBcryptHasher(),
		issuer,
		logger,
	)
	if err != nil {
		return err
	}

	api, err := httpapi.NewServer(httpapi.Deps{
		Identity: svc,
		Metrics:  metrics,
		Logger:   logger,
		Workers:  cfg.Workers,
	})
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.ListenAddr, "workers", cfg.Workers)
		if serveErr := httpSrv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			serveErrCh <- serveErr
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case serveErr := <-serveErrCh:
		return serveErr
	case obsErr := <-obsErrCh:
		return obsErr
	}
}

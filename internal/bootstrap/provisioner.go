// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareDesk Contributors

package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"regexp"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"
)

// identifierPattern restricts resource names to plain SQL identifiers.
// CREATE DATABASE and CREATE EXTENSION cannot take bind parameters, so
// names are validated before being quoted into the statement.
var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// querier is the subset of pgx pool operations the provisioner needs.
// pgxmock satisfies it in unit tests.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Outcomes reported through Provisioner.OnOp.
const (
	OutcomeCreated = "created"
	OutcomeExists  = "exists"
	OutcomeFailed  = "failed"
)

// OpRecorder observes the outcome of each provisioning operation.
type OpRecorder interface {
	RecordProvisioningOp(kind, outcome string)
}

// Provisioner ensures databases and extensions exist in the catalog.
type Provisioner struct {
	db     querier
	logger *slog.Logger

	// OnOp, when set, observes every ensure as a kind ("database" or
	// "extension") and an outcome (OutcomeCreated, OutcomeExists,
	// OutcomeFailed).
	OnOp func(kind, outcome string)
}

// NewProvisioner creates a Provisioner with a no-op logger.
func NewProvisioner(db querier) (*Provisioner, error) {
	if db == nil {
		return nil, oops.Errorf("database connection is required")
	}
	return &Provisioner{db: db, logger: slog.New(slog.DiscardHandler)}, nil
}

// NewProvisionerWithLogger creates a Provisioner with the provided logger.
func NewProvisionerWithLogger(db querier, logger *slog.Logger) (*Provisioner, error) {
	if db == nil {
		return nil, oops.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return &Provisioner{db: db, logger: logger}, nil
}

// Ensure makes sure a single target exists, creating it when absent.
// Repeated invocation for the same target is a no-op. A duplicate-creation
// error from a racing replica is treated as success; any other creation
// failure propagates and aborts the bootstrap.
func (p *Provisioner) Ensure(ctx context.Context, target Target) error {
	if !identifierPattern.MatchString(target.Name) {
		return oops.Code("PROVISION_INVALID_NAME").
			With("name", target.Name).
			With("kind", string(target.Kind)).
			Errorf("resource name must be a plain SQL identifier")
	}

	switch target.Kind {
	case KindDatabase:
		return p.ensureDatabase(ctx, target.Name)
	case KindExtension:
		return p.ensureExtension(ctx, target.Name)
	default:
		return oops.Code("PROVISION_INVALID_KIND").
			With("kind", string(target.Kind)).
			Errorf("unknown target kind")
	}
}

// EnsureAll ensures every target in order, stopping at the first failure.
func (p *Provisioner) EnsureAll(ctx context.Context, targets []Target) error {
	for _, target := range targets {
		if err := p.Ensure(ctx, target); err != nil {
			return err
		}
	}
	return nil
}

// record reports one operation outcome to OnOp when an observer is set.
func (p *Provisioner) record(kind TargetKind, outcome string) {
	if p.OnOp != nil {
		p.OnOp(string(kind), outcome)
	}
}

func (p *Provisioner) ensureDatabase(ctx context.Context, name string) error {
	var one int
	err := p.db.QueryRow(ctx, `SELECT 1 FROM pg_database WHERE datname = $1`, name).Scan(&one)
	if err == nil {
		p.record(KindDatabase, OutcomeExists)
		p.logger.Info("database already exists, skipping", "database", name)
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		p.record(KindDatabase, OutcomeFailed)
		return oops.Code("PROVISION_CHECK_FAILED").
			With("operation", "check database exists").
			With("database", name).
			Wrap(err)
	}

	if _, err := p.db.Exec(ctx, `CREATE DATABASE `+pgx.Identifier{name}.Sanitize()); err != nil {
		if isDuplicate(err) {
			// Another replica won the check-then-create race.
			p.record(KindDatabase, OutcomeExists)
			p.logger.Info("database created concurrently, skipping", "database", name)
			return nil
		}
		p.record(KindDatabase, OutcomeFailed)
		return oops.Code("PROVISION_FAILED").
			With("operation", "create database").
			With("database", name).
			Wrap(err)
	}

	p.record(KindDatabase, OutcomeCreated)
	p.logger.Info("created database", "database", name)
	return nil
}

// ensureExtension operates against whichever database the provisioner is
// connected to. Callers wanting the extension in several databases must
// fan out one provisioner per database; this is never expanded implicitly.
func (p *Provisioner) ensureExtension(ctx context.Context, name string) error {
	var one int
	err := p.db.QueryRow(ctx, `SELECT 1 FROM pg_extension WHERE extname = $1`, name).Scan(&one)
	if err == nil {
		p.record(KindExtension, OutcomeExists)
		p.logger.Info("extension already exists, skipping", "extension", name)
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		p.record(KindExtension, OutcomeFailed)
		return oops.Code("PROVISION_CHECK_FAILED").
			With("operation", "check extension exists").
			With("extension", name).
			Wrap(err)
	}

	if _, err := p.db.Exec(ctx, `CREATE EXTENSION `+pgx.Identifier{name}.Sanitize()); err != nil {
		if isDuplicate(err) {
			p.record(KindExtension, OutcomeExists)
			p.logger.Info("extension created concurrently, skipping", "extension", name)
			return nil
		}
		p.record(KindExtension, OutcomeFailed)
		return oops.Code("PROVISION_FAILED").
			With("operation", "create extension").
			With("extension", name).
			Wrap(err)
	}

	p.record(KindExtension, OutcomeCreated)
	p.logger.Info("created extension", "extension", name)
	return nil
}

// isDuplicate reports whether err is a benign duplicate-creation error from
// two replicas racing the same check-then-create step.
func isDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgerrcode.DuplicateDatabase, pgerrcode.DuplicateObject, pgerrcode.UniqueViolation:
		return true
	}
	return false
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareDesk Contributors

// Package gate blocks startup until storage is reachable and the schema is
// current. No request may be served before both checks pass.
package gate

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// State is the readiness gate's position in the startup sequence.
// Transitions are strictly forward for the lifetime of one process.
type State int32

// Readiness states, in order.
const (
	StateWaitingForStorage State = iota
	StateMigrating
	StateServing
)

// String returns the state name for logs and metrics.
func (s State) String() string {
	switch s {
	case StateWaitingForStorage:
		return "waiting_for_storage"
	case StateMigrating:
		return "migrating"
	case StateServing:
		return "serving"
	default:
		return "unknown"
	}
}

// DefaultPollInterval is the fixed delay between storage health checks.
const DefaultPollInterval = 2 * time.Second

// RetryPolicy bounds the storage polling loop. The zero value polls every
// DefaultPollInterval with no attempt limit, which matches the reference
// deployment: an unreachable dependency stalls startup indefinitely rather
// than failing fast. Operators who want bounded startup set MaxAttempts or
// pass a context with a deadline.
type RetryPolicy struct {
	Interval    time.Duration
	MaxAttempts uint64
}

// Pinger performs a trivial round trip against the storage dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Migrator applies all pending schema migrations.
type Migrator interface {
	Up() error
}

// Gate sequences startup: wait for storage, migrate, then hand control to
// the request-serving process.
type Gate struct {
	pinger   Pinger
	migrator Migrator
	policy   RetryPolicy
	logger   *slog.Logger
	state    atomic.Int32

	// OnTransition, when set, observes every state change. Wired to the
	// readiness metrics gauge by the serve command.
	OnTransition func(State)
}

// New creates a Gate with a no-op logger.
func New(pinger Pinger, migrator Migrator, policy RetryPolicy) (*Gate, error) {
	return NewWithLogger(pinger, migrator, policy, slog.New(slog.DiscardHandler))
}

// NewWithLogger creates a Gate with the provided logger.
func NewWithLogger(pinger Pinger, migrator Migrator, policy RetryPolicy, logger *slog.Logger) (*Gate, error) {
	if pinger == nil {
		return nil, oops.Errorf("pinger is required")
	}
	if migrator == nil {
		return nil, oops.Errorf("migrator is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	if policy.Interval <= 0 {
		policy.Interval = DefaultPollInterval
	}
	return &Gate{
		pinger:   pinger,
		migrator: migrator,
		policy:   policy,
		logger:   logger,
	}, nil
}

// State returns the gate's current state.
func (g *Gate) State() State {
	return State(g.state.Load())
}

// Ready reports whether the gate has reached Serving. Wired into /readyz.
func (g *Gate) Ready() bool {
	return g.State() == StateServing
}

// Run drives the gate through its states and returns once the process may
// serve traffic. It blocks the whole startup path on purpose: storage
// polling retries on a fixed interval per the policy, and migration runs
// exactly once with no retry. Any migration failure is fatal and the gate
// never reaches Serving.
func (g *Gate) Run(ctx context.Context) error {
	if g.State() != StateWaitingForStorage {
		return oops.Code("GATE_ALREADY_RUN").
			With("state", g.State().String()).
			Errorf("readiness gate cannot be re-entered")
	}

	if err := g.waitForStorage(ctx); err != nil {
		return err
	}

	g.transition(StateMigrating)
	g.logger.Info("storage reachable, applying migrations")

	if err := g.migrator.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "apply pending migrations").Wrap(err)
	}

	g.transition(StateServing)
	g.logger.Info("migrations applied, ready to serve")
	return nil
}

// waitForStorage polls the storage dependency until it responds.
func (g *Gate) waitForStorage(ctx context.Context) error {
	backoff := retry.Backoff(retry.NewConstant(g.policy.Interval))
	if g.policy.MaxAttempts > 0 {
		// WithMaxRetries counts retries after the first attempt.
		backoff = retry.WithMaxRetries(g.policy.MaxAttempts-1, backoff)
	}

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if pingErr := g.pinger.Ping(ctx); pingErr != nil {
			g.logger.Warn("storage not reachable, retrying",
				"attempt", attempt,
				"interval", g.policy.Interval.String(),
				"error", pingErr.Error(),
			)
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		return oops.Code("STORAGE_UNAVAILABLE").
			With("operation", "wait for storage").
			With("attempts", attempt).
			Wrap(err)
	}
	return nil
}

// transition advances the state. States only ever move forward; a smaller
// or equal target is ignored.
func (g *Gate) transition(next State) {
	for {
		current := g.state.Load()
		if int32(next) <= current {
			return
		}
		if g.state.CompareAndSwap(current, int32(next)) {
			if g.OnTransition != nil {
				g.OnTransition(next)
			}
			return
		}
	}
}

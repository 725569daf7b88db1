// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareDesk Contributors

// Package store provides PostgreSQL connectivity and schema management.
package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
)

// Store wraps a pgx connection pool for the CareDesk database.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store connected to the given DSN.
// The connection is lazy; use Ping to verify reachability.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create connection pool").Wrap(err)
	}
	return &Store{pool: pool}, nil
}

// Ping performs a trivial round trip against the database.
// The readiness gate uses this as its storage health check.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return oops.Code("DB_UNREACHABLE").With("operation", "ping database").Wrap(err)
	}
	return nil
}

// Pool exposes the underlying pool for repositories.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

//go:build integration

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareDesk Contributors

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/caredesk/caredesk/internal/store"
)

func TestMigrator_FullCycle(t *testing.T) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("caredesk"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	require.NoError(t, err)
	defer pgContainer.Terminate(ctx)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	migrator, err := store.NewMigrator(connStr)
	require.NoError(t, err)
	defer migrator.Close()

	version, dirty, err := migrator.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)

	pending, err := migrator.PendingMigrations()
	require.NoError(t, err)
	assert.NotEmpty(t, pending)

	err = migrator.Up()
	require.NoError(t, err)

	version, dirty, err = migrator.Version()
	require.NoError(t, err)
	assert.Greater(t, version, uint(0), "Up() should apply at least one migration")
	assert.False(t, dirty)

	pending, err = migrator.PendingMigrations()
	require.NoError(t, err)
	assert.Empty(t, pending, "no pending migrations after Up()")

	// Second Up() is a no-op
	err = migrator.Up()
	require.NoError(t, err)

	// Connect and verify ping plus users table existence
	s, err := store.New(ctx, connStr)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Ping(ctx))

	var count int
	err = s.Pool().QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

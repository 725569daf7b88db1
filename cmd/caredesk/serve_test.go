// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareDesk Contributors

package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caredesk/caredesk/pkg/errutil"
)

func TestServe_Properties(t *testing.T) {
	cmd := newServeCmd()

	assert.Contains(t, cmd.Use, "serve")
	assert.Contains(t, cmd.Long, "migrations")
	assert.Contains(t, cmd.Long, "handoff")
}

func TestServe_FlagDefaults(t *testing.T) {
	cmd := newServeCmd()

	listenAddr, err := cmd.Flags().GetString("listen-addr")
	require.NoError(t, err)
	assert.Equal(t, ":8080", listenAddr)

	workers, err := cmd.Flags().GetInt("workers")
	require.NoError(t, err)
	assert.Equal(t, 4, workers)

	metricsAddr, err := cmd.Flags().GetString("metrics-addr")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9100", metricsAddr)
}

func TestServe_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	cmd := newServeCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))

	err := cmd.Execute()
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

// Only genuine migration failures count toward the migration failure
// metric; storage stalls and operator shutdown during the wait do not.
func TestServe_IsMigrationFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "migration failure",
			err:  oops.Code("MIGRATION_FAILED").Wrap(errors.New("syntax error")),
			want: true,
		},
		{
			name: "storage unavailable",
			err:  oops.Code("STORAGE_UNAVAILABLE").Wrap(errors.New("connection refused")),
			want: false,
		},
		{
			name: "uncoded error",
			err:  errors.New("context canceled"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isMigrationFailure(tt.err))
		})
	}
}

func TestServe_RejectsInvalidWorkers(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/caredesk")

	cmd := newServeCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"--workers", "0"})

	err := cmd.Execute()
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

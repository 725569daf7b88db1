// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareDesk Contributors

package gate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caredesk/caredesk/internal/gate"
	"github.com/caredesk/caredesk/pkg/errutil"
)

func TestSupervise_EmptyCommand(t *testing.T) {
	_, err := gate.Supervise(context.Background(), nil, nil)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "HANDOFF_INVALID")
}

func TestSupervise_MissingBinary(t *testing.T) {
	_, err := gate.Supervise(context.Background(), []string{"/nonexistent/caredesk-server"}, nil)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "HANDOFF_START_FAILED")
}

func TestSupervise_PropagatesExitCode(t *testing.T) {
	code, err := gate.Supervise(context.Background(), []string{"sh", "-c", "exit 3"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, code)
}

func TestSupervise_CleanExit(t *testing.T) {
	code, err := gate.Supervise(context.Background(), []string{"true"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareDesk Contributors

package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_ServiceAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("caredesk", "1.2.3", "json", &buf)

	logger.Info("hello", "key", "value")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "caredesk", entry["service"])
	assert.Equal(t, "1.2.3", entry["version"])
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "value", entry["key"])
}

func TestSetup_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("caredesk", "dev", "text", &buf)

	logger.Info("text output")

	out := buf.String()
	assert.Contains(t, out, "msg=")
	assert.Contains(t, out, "service=caredesk")
}

func TestSetup_DefaultsToJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("caredesk", "dev", "", &buf)

	logger.Info("json by default")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "json by default", entry["msg"])
}

func TestHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("caredesk", "dev", "json", &buf)

	logger.With("request_id", "abc").WithGroup("auth").Info("login", "user", "alice")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "abc", entry["request_id"])

	group, ok := entry["auth"].(map[string]any)
	require.True(t, ok, "expected auth group, got %T", entry["auth"])
	assert.Equal(t, "alice", group["user"])
}

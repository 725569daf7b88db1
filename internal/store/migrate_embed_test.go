// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareDesk Contributors

package store

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Every embedded migration must follow NNNNNN_name.(up|down).sql and each
// up migration must have a matching down migration.
func TestMigrationsFS_EmbeddedFiles(t *testing.T) {
	pattern := regexp.MustCompile(`^\d{6}_[a-z0-9_]+\.(up|down)\.sql$`)

	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries, "migrations directory must not be empty")

	ups := make(map[string]bool)
	downs := make(map[string]bool)
	for _, entry := range entries {
		name := entry.Name()
		assert.True(t, pattern.MatchString(name), "unexpected migration filename %q", name)

		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}

	for base := range ups {
		assert.True(t, downs[base], "migration %s has no down migration", base)
	}
	for base := range downs {
		assert.True(t, ups[base], "migration %s has no up migration", base)
	}
}

func TestAllMigrationVersions_SortedAndUnique(t *testing.T) {
	versions, err := allMigrationVersions()
	require.NoError(t, err)
	require.NotEmpty(t, versions)

	seen := make(map[uint]bool)
	for i, v := range versions {
		assert.False(t, seen[v], "duplicate version %d", v)
		seen[v] = true
		if i > 0 {
			assert.Greater(t, v, versions[i-1], "versions must be ascending")
		}
	}
}

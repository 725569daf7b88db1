// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareDesk Contributors

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/caredesk/caredesk/internal/store"
)

// probeTimeout bounds each health probe request.
const probeTimeout = 5 * time.Second

// ProbeStatus holds the result of one status probe.
type ProbeStatus struct {
	Probe  string `json:"probe"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	metricsAddr string
	jsonOutput  bool
}

// statusDeps contains injectable dependencies for the status command.
type statusDeps struct {
	// QueryMigrations reports the schema migration state of the database
	// at the given URL. Default: queryMigrations.
	QueryMigrations func(databaseURL string) ProbeStatus
}

func (d *statusDeps) applyDefaults() {
	if d.QueryMigrations == nil {
		d.QueryMigrations = queryMigrations
	}
}

// newStatusCmd creates the status subcommand with all flags configured.
func newStatusCmd() *cobra.Command {
	return newStatusCmdWithDeps(&statusDeps{})
}

func newStatusCmdWithDeps(deps *statusDeps) *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the health of a running CareDesk server",
		Long: `Query the liveness and readiness probes of a running CareDesk server.
When DATABASE_URL is set, also report storage reachability and the
current schema migration version.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg, deps)
		},
	}

	cmd.Flags().StringVar(&cfg.metricsAddr, "metrics-addr", "127.0.0.1:9100", "observability address of the running server")
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

// runStatus executes the status command.
func runStatus(cmd *cobra.Command, cfg *statusConfig, deps *statusDeps) error {
	deps.applyDefaults()

	statuses := map[string]ProbeStatus{
		"liveness":  queryProbe(cfg.metricsAddr, "liveness"),
		"readiness": queryProbe(cfg.metricsAddr, "readiness"),
	}
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		statuses["migrations"] = deps.QueryMigrations(databaseURL)
	}

	var output string
	if cfg.jsonOutput {
		formatted, err := formatStatusJSON(statuses)
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
		output = formatted
	} else {
		output = formatStatusTable(statuses)
	}

	cmd.Println(output)
	return nil
}

// queryProbe performs one health probe against the observability server.
func queryProbe(addr, probe string) ProbeStatus {
	status := ProbeStatus{Probe: probe}

	client := &http.Client{Timeout: probeTimeout}
	resp, err := client.Get("http://" + addr + "/healthz/" + probe)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		status.Error = fmt.Sprintf("status %d", resp.StatusCode)
		return status
	}

	status.OK = true
	return status
}

// queryMigrations connects to the database and reports the current schema
// migration version. A connection failure doubles as a storage
// reachability signal.
func queryMigrations(databaseURL string) ProbeStatus {
	status := ProbeStatus{Probe: "migrations"}

	migrator, err := store.NewMigrator(databaseURL)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	defer func() { _ = migrator.Close() }()

	version, dirty, err := migrator.Version()
	if err != nil {
		status.Error = err.Error()
		return status
	}
	if dirty {
		status.Detail = fmt.Sprintf("version %d (dirty)", version)
		status.Error = "migration failed partway, manual intervention required"
		return status
	}

	status.OK = true
	if version == 0 {
		status.Detail = "no migrations applied"
	} else {
		status.Detail = fmt.Sprintf("version %d", version)
	}
	return status
}

// formatStatusJSON renders the probe results as indented JSON.
func formatStatusJSON(statuses map[string]ProbeStatus) (string, error) {
	data, err := json.MarshalIndent(statuses, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// formatStatusTable renders the probe results as an aligned table.
func formatStatusTable(statuses map[string]ProbeStatus) string {
	names := make([]string, 0, len(statuses))
	for name := range statuses {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROBE\tSTATUS\tDETAIL")
	for _, name := range names {
		s := statuses[name]
		state := "ok"
		if !s.OK {
			state = "failing"
		}
		detail := s.Detail
		if s.Error != "" {
			detail = s.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.Probe, state, detail)
	}
	_ = w.Flush()
	return strings.TrimRight(sb.String(), "\n")
}

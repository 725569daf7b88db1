// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareDesk Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the CareDesk CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "caredesk",
		Short: "CareDesk - identity and session backend",
		Long: `CareDesk is an identity and session backend. It provisions its own
database resources at deploy time, gates startup on storage readiness and
schema migrations, and serves the authentication API.`,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newBootstrapCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newSeedAdminCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

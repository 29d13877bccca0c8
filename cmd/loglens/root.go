// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LogLens Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/loglens/loglens/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// resolveConfigFile prefers the --config flag, falling back to the XDG
// config location when a file exists there.
func resolveConfigFile() string {
	if configFile != "" {
		return configFile
	}
	return xdg.ConfigFile()
}

// NewRootCmd creates the root command for the LogLens CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loglens",
		Short: "LogLens - a pluggable log viewing host",
		Long: `LogLens opens diagnostic logs, decodes records through plugins,
and streams them to viewer plugins. Plugins can also expose commands
and talk to remote logging daemons over a control channel.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewPluginsCmd())
	cmd.AddCommand(NewExecCmd())
	cmd.AddCommand(NewSchemaCmd())

	return cmd
}

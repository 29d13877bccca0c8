// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LogLens Contributors

package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/loglens/loglens/internal/config"
)

// NewExecCmd creates the exec subcommand.
func NewExecCmd() *cobra.Command {
	var (
		timeout  time.Duration
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "exec <plugin> <command> [params...]",
		Short: "Run a plugin command and wait for its result",
		Long: `Dispatch a command to a commander plugin and poll its progress
until completion. The wait is bounded by --timeout; on expiry the
command is cancelled.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigFile(), cmd.Flags())
			if err != nil {
				return err
			}

			dispatcher, luaHost, err := buildDispatcher(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer luaHost.Close(context.Background()) //nolint:errcheck

			pluginName, command, params := args[0], args[1], args[2:]
			if err := dispatcher.ExecCommand(pluginName, command, params); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			result, err := dispatcher.WaitCommand(ctx, pluginName, interval)
			if err != nil {
				return err
			}
			cmd.Println(result)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "maximum time to wait for completion")
	cmd.Flags().DurationVar(&interval, "interval", 50*time.Millisecond, "progress polling interval")
	cmd.Flags().String("plugins.dir", "", "directory scanned for Lua decoder plugins")
	cmd.Flags().String("plugins.rules", "", "rule file or directory for the nonverbose decoder")

	return cmd
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LogLens Contributors

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loglens/loglens/internal/config"
)

// NewPluginsCmd creates the plugins subcommand.
func NewPluginsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "List registered plugins and their configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(resolveConfigFile(), cmd.Flags())
			if err != nil {
				return err
			}
			return listPlugins(cmd.Context(), cfg, cmd)
		},
	}

	cmd.Flags().String("plugins.dir", "", "directory scanned for Lua decoder plugins")
	cmd.Flags().String("plugins.rules", "", "rule file or directory for the nonverbose decoder")

	return cmd
}

func listPlugins(ctx context.Context, cfg config.Config, cmd *cobra.Command) error {
	dispatcher, luaHost, err := buildDispatcher(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer luaHost.Close(context.Background()) //nolint:errcheck

	for _, info := range dispatcher.Plugins() {
		cmd.Printf("%s %s (interface %s)\n", info.Name, info.Version, info.InterfaceVersion)
		cmd.Printf("  %s\n", info.Description)
		cmd.Printf("  capabilities: %s\n", strings.Join(info.Capabilities, ", "))
		if info.LastError != "" {
			cmd.Printf("  last error: %s\n", info.LastError)
		}

		if lines, err := dispatcher.InfoConfig(info.Name); err == nil {
			for _, line := range lines {
				cmd.Printf("  %s\n", line)
			}
		}

		if cmds := dispatcher.Commands()[info.Name]; len(cmds) > 0 {
			cmd.Printf("  commands: %s\n", strings.Join(cmds, ", "))
		}
		cmd.Println()
	}

	if len(dispatcher.Plugins()) == 0 {
		return fmt.Errorf("no plugins registered")
	}
	return nil
}

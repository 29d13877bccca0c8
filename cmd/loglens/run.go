// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LogLens Contributors

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loglens/loglens/internal/config"
	"github.com/loglens/loglens/internal/logging"
	"github.com/loglens/loglens/internal/observability"
	"github.com/loglens/loglens/internal/plugin"
	"github.com/loglens/loglens/internal/source"
	"github.com/loglens/loglens/pkg/errutil"
)

// NewRunCmd creates the run subcommand.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Open a log and stream it through the plugin pipeline",
		Long: `Open the configured log file, run the initial bulk delivery
through all registered plugins, and optionally keep following the file,
streaming appended records as update rounds.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(resolveConfigFile(), cmd.Flags())
			if err != nil {
				return err
			}
			return runHost(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	// Flag names mirror the config file keys so overrides bind directly.
	cmd.Flags().String("source.path", "", "log file to open")
	cmd.Flags().Bool("source.follow", false, "keep following the file for appended records")
	cmd.Flags().Duration("source.poll_interval", 250*time.Millisecond, "debounce window for update rounds")
	cmd.Flags().String("metrics.addr", "", "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("plugins.dir", "", "directory scanned for Lua decoder plugins")
	cmd.Flags().String("plugins.rules", "", "rule file or directory for the nonverbose decoder")
	cmd.Flags().String("log.format", "json", "log format (json or text)")
	cmd.Flags().String("log.level", "info", "log level")

	return cmd
}

func runHost(ctx context.Context, cfg config.Config, out io.Writer) error {
	logging.SetDefault("loglens", version, cfg.Log.Format, cfg.Log.Level)

	if cfg.Source.Path == "" {
		return fmt.Errorf("source.path is required")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obs := observability.NewServer(cfg.Metrics.Addr, func() bool { return true })
		errCh, err := obs.Start()
		if err != nil {
			return err
		}
		go func() {
			if serveErr := <-errCh; serveErr != nil {
				slog.Error("observability server failed", "error", serveErr)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := obs.Stop(shutdownCtx); err != nil {
				slog.Warn("observability shutdown failed", "error", err)
			}
		}()
		metrics = obs.Metrics()
	}

	dispatcher, luaHost, err := buildDispatcher(ctx, cfg, metrics)
	if err != nil {
		return err
	}
	defer func() {
		if err := luaHost.Close(context.Background()); err != nil {
			slog.Warn("lua host shutdown failed", "error", err)
		}
	}()

	if err := dispatcher.BindControl(plugin.LogControl{}); err != nil {
		return err
	}

	src, err := source.Open(cfg.Source.Path)
	if err != nil {
		return err
	}
	slog.Info("log opened", "path", cfg.Source.Path, "messages", src.Len())

	if err := dispatcher.LoadSource(src); err != nil {
		return err
	}

	if !cfg.Source.Follow {
		renderViews(dispatcher, out)
		return nil
	}

	follower, err := source.NewFollower(src, cfg.Source.Path, cfg.Source.PollInterval, func(from int) {
		if err := dispatcher.ApplyUpdate(src, from); err != nil {
			errutil.LogError(slog.Default(), "update round failed", err)
		}
	})
	if err != nil {
		return err
	}
	if err := follower.Start(ctx); err != nil {
		return err
	}
	defer follower.Stop()

	<-ctx.Done()
	slog.Info("shutting down")
	renderViews(dispatcher, out)
	return nil
}

// renderViews writes every live plugin view to out.
func renderViews(d *plugin.Dispatcher, out io.Writer) {
	for _, info := range d.Plugins() {
		view, ok := d.View(info.Name)
		if !ok {
			continue
		}
		fmt.Fprintf(out, "--- %s ---\n", view.Title())
		if err := view.Render(out); err != nil {
			slog.Warn("view render failed", "plugin", info.Name, "error", err)
		}
	}
}

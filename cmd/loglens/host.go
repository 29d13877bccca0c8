// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LogLens Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/samber/oops"

	"github.com/loglens/loglens/internal/config"
	"github.com/loglens/loglens/internal/observability"
	"github.com/loglens/loglens/internal/plugin"
	"github.com/loglens/loglens/internal/plugin/lua"
	"github.com/loglens/loglens/plugins/daemonmon"
	"github.com/loglens/loglens/plugins/echo"
	"github.com/loglens/loglens/plugins/nonverbose"
	"github.com/loglens/loglens/plugins/timeline"
)

// buildDispatcher registers the bundled plugins plus any Lua decoder
// plugins found under cfg.Plugins.Dir. The returned Lua host owns the
// script states; callers close it on shutdown.
func buildDispatcher(ctx context.Context, cfg config.Config, m *observability.Metrics) (*plugin.Dispatcher, *lua.Host, error) {
	var opts []plugin.Option
	if m != nil {
		opts = append(opts, plugin.WithMetrics(m))
	}
	d := plugin.NewDispatcher(opts...)

	nv := nonverbose.New()

	if err := d.Register(echo.New()); err != nil {
		return nil, nil, err
	}
	if err := d.Register(nv); err != nil {
		return nil, nil, err
	}
	if err := d.Register(timeline.New()); err != nil {
		return nil, nil, err
	}
	if err := d.Register(daemonmon.New()); err != nil {
		return nil, nil, err
	}

	if cfg.Plugins.Rules != "" {
		if err := d.LoadConfig(nv.Name(), cfg.Plugins.Rules); err != nil {
			return nil, nil, err
		}
	}

	host := lua.NewHost()
	if cfg.Plugins.Dir != "" {
		if err := loadLuaPlugins(ctx, d, host, cfg.Plugins.Dir); err != nil {
			_ = host.Close(ctx)
			return nil, nil, err
		}
	}

	return d, host, nil
}

// loadLuaPlugins scans dir for plugin subdirectories carrying a
// plugin.yaml manifest and registers each one. A broken plugin is
// skipped with a warning; the rest of the directory still loads.
func loadLuaPlugins(ctx context.Context, d *plugin.Dispatcher, host *lua.Host, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return oops.In("host").With("dir", dir).Hint("plugin directory not readable").Wrap(err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pluginDir := filepath.Join(dir, entry.Name())
		manifestPath := filepath.Join(pluginDir, "plugin.yaml")

		data, err := os.ReadFile(filepath.Clean(manifestPath))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			slog.Warn("skipping plugin, manifest unreadable", "dir", pluginDir, "error", err)
			continue
		}

		if err := plugin.ValidateSchema(data); err != nil {
			slog.Warn("skipping plugin, manifest rejected by schema", "dir", pluginDir, "error", err)
			continue
		}
		manifest, err := plugin.ParseManifest(data)
		if err != nil {
			slog.Warn("skipping plugin, manifest invalid", "dir", pluginDir, "error", err)
			continue
		}
		if manifest.LuaDecoder == nil {
			slog.Warn("skipping plugin, no lua-decoder section", "dir", pluginDir, "plugin", manifest.Name)
			continue
		}

		p, err := host.Load(ctx, manifest, pluginDir)
		if err != nil {
			slog.Warn("skipping plugin, load failed", "plugin", manifest.Name, "error", err)
			continue
		}
		if err := d.Register(p, plugin.WithManifest(manifest)); err != nil {
			slog.Warn("skipping plugin, registration failed", "plugin", manifest.Name, "error", err)
			_ = host.Unload(ctx, manifest.Name)
			continue
		}

		if manifest.Config != "" {
			cfgPath := filepath.Join(pluginDir, manifest.Config)
			if err := d.LoadConfig(manifest.Name, cfgPath); err != nil {
				slog.Warn("plugin config load failed", "plugin", manifest.Name, "path", cfgPath, "error", err)
			}
		}
	}
	return nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LogLens Contributors

// Package config loads the host configuration from a YAML file with
// command-line flag overrides.
package config

import (
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Config is the top-level host configuration.
type Config struct {
	Log     LogConfig     `koanf:"log"`
	Metrics MetricsConfig `koanf:"metrics"`
	Plugins PluginsConfig `koanf:"plugins"`
	Source  SourceConfig  `koanf:"source"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Format string `koanf:"format"` // "json" or "text"
	Level  string `koanf:"level"`  // "debug", "info", "warn", "error"
}

// MetricsConfig controls the observability HTTP server. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// PluginsConfig controls plugin activation.
type PluginsConfig struct {
	// Dir is scanned for Lua decoder plugins (one subdirectory per
	// plugin, each with a plugin.yaml manifest). Empty disables scanning.
	Dir string `koanf:"dir"`

	// Rules is the rule file or directory loaded into the bundled
	// nonverbose decoder. Empty leaves it unconfigured.
	Rules string `koanf:"rules"`
}

// SourceConfig describes the log to open.
type SourceConfig struct {
	Path string `koanf:"path"`

	// Follow keeps the source open and streams appended records as
	// update rounds.
	Follow bool `koanf:"follow"`

	// PollInterval is the debounce window for coalescing appended
	// records into one update round while following.
	PollInterval time.Duration `koanf:"poll_interval"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log: LogConfig{
			Format: "json",
			Level:  "info",
		},
		Source: SourceConfig{
			PollInterval: 250 * time.Millisecond,
		},
	}
}

// Load reads configuration from path (optional) and applies flag
// overrides (optional). Values resolve flags > file > defaults.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	cfg := Default()
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return cfg, oops.In("config").With("path", path).Hint("config file not readable").Wrap(err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return cfg, oops.In("config").With("path", path).Hint("invalid YAML").Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return cfg, oops.In("config").Hint("flag binding failed").Wrap(err)
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, oops.In("config").Wrap(err)
	}

	return cfg, nil
}

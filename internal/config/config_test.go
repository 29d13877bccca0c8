// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LogLens Contributors

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "loglens.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 250*time.Millisecond, cfg.Source.PollInterval)
	assert.Empty(t, cfg.Metrics.Addr)
	assert.False(t, cfg.Source.Follow)
}

func TestLoad_NoFileNoFlags(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
log:
  format: text
  level: debug
metrics:
  addr: "127.0.0.1:9200"
plugins:
  dir: /opt/loglens/plugins
  rules: /etc/loglens/rules.yaml
source:
  path: /var/log/daemon.dlt
  follow: true
  poll_interval: 1s
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "127.0.0.1:9200", cfg.Metrics.Addr)
	assert.Equal(t, "/opt/loglens/plugins", cfg.Plugins.Dir)
	assert.Equal(t, "/etc/loglens/rules.yaml", cfg.Plugins.Rules)
	assert.Equal(t, "/var/log/daemon.dlt", cfg.Source.Path)
	assert.True(t, cfg.Source.Follow)
	assert.Equal(t, time.Second, cfg.Source.PollInterval)
}

func TestLoad_FlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
source:
  path: /var/log/from-file.dlt
`)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log.level", "info", "")
	flags.String("source.path", "", "")
	require.NoError(t, flags.Parse([]string{"--source.path", "/var/log/from-flag.dlt"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	// Explicitly set flag wins over the file.
	assert.Equal(t, "/var/log/from-flag.dlt", cfg.Source.Path)
	// Unset flag falls back to the file value.
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "log: [unclosed")

	_, err := Load(path, nil)
	assert.Error(t, err)
}

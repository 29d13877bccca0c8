// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LogLens Contributors

package lua_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	plugins "github.com/loglens/loglens/internal/plugin"
	"github.com/loglens/loglens/internal/plugin/lua"
	sdk "github.com/loglens/loglens/pkg/plugin"
)

const decoderScript = `
function is_msg(payload, triggered)
  return string.sub(payload, 1, 4) == "HEX:"
end

function decode_msg(payload, triggered)
  local body = string.sub(payload, 5)
  if #body == 0 then
    return nil, "empty hex body"
  end
  return "hex(" .. body .. ")"
end
`

const configurableScript = decoderScript + `
rules = {}

function load_config(contents)
  if #contents == 0 then
    return nil, "empty config"
  end
  rules = {}
  for line in string.gmatch(contents, "[^\n]+") do
    table.insert(rules, line)
  end
  return true
end

function save_config()
  return table.concat(rules, "\n")
end

function info_config()
  local lines = {}
  for _, r in ipairs(rules) do
    table.insert(lines, "rule: " .. r)
  end
  return lines
end
`

func loadScript(t *testing.T, script string) (sdk.Plugin, *lua.Host) {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "decoder.lua"), []byte(script), 0o600))

	manifest := &plugins.Manifest{
		Name:        "hexview",
		Version:     "0.3.0",
		Description: "decodes HEX: framed records",
		LuaDecoder:  &plugins.LuaDecoderConfig{Entry: "decoder.lua"},
	}
	require.NoError(t, manifest.Validate())

	host := lua.NewHost()
	t.Cleanup(func() {
		_ = host.Close(context.Background())
	})

	p, err := host.Load(context.Background(), manifest, dir)
	require.NoError(t, err)
	return p, host
}

func TestLoadRejectsScriptWithoutDecodeFunctions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "decoder.lua"), []byte(`x = 1`), 0o600))

	manifest := &plugins.Manifest{
		Name:       "broken",
		Version:    "0.1.0",
		LuaDecoder: &plugins.LuaDecoderConfig{Entry: "decoder.lua"},
	}
	require.NoError(t, manifest.Validate())

	host := lua.NewHost()
	defer host.Close(context.Background()) //nolint:errcheck

	_, err := host.Load(context.Background(), manifest, dir)
	assert.ErrorContains(t, err, "is_msg")
}

func TestDecoderIdentityFromManifest(t *testing.T) {
	p, _ := loadScript(t, decoderScript)

	assert.Equal(t, "hexview", p.Name())
	assert.Equal(t, "decodes HEX: framed records", p.Description())
	assert.Equal(t, "0.3.0", p.PluginVersion())
	assert.Equal(t, sdk.InterfaceVersion, p.PluginInterfaceVersion())
}

func TestDecoderClaimsAndDecodes(t *testing.T) {
	p, _ := loadScript(t, decoderScript)
	dec, ok := p.(sdk.Decoder)
	require.True(t, ok)

	claimed := sdk.NewMessage(0, time.Now(), []byte("HEX:cafe"))
	other := sdk.NewMessage(1, time.Now(), []byte("plain text"))

	assert.True(t, dec.IsMsg(claimed, false))
	assert.False(t, dec.IsMsg(other, false))

	require.NoError(t, dec.DecodeMsg(claimed, false))
	assert.True(t, claimed.IsDecoded())
	assert.Equal(t, "hex(cafe)", claimed.Decoded())
	assert.Empty(t, p.LastError())
}

func TestDecodeFailureKeepsRawAndSetsLastError(t *testing.T) {
	p, _ := loadScript(t, decoderScript)
	dec := p.(sdk.Decoder)

	msg := sdk.NewMessage(0, time.Now(), []byte("HEX:"))
	err := dec.DecodeMsg(msg, false)
	require.Error(t, err)

	assert.False(t, msg.IsDecoded())
	assert.Contains(t, p.LastError(), "empty hex body")
}

func TestPlainDecoderIsNotConfigurable(t *testing.T) {
	p, _ := loadScript(t, decoderScript)
	_, ok := p.(sdk.Configurable)
	assert.False(t, ok)
}

func TestConfigurableRoundTrip(t *testing.T) {
	p, _ := loadScript(t, configurableScript)
	cfg, ok := p.(sdk.Configurable)
	require.True(t, ok)

	dir := t.TempDir()
	in := filepath.Join(dir, "rules.conf")
	require.NoError(t, os.WriteFile(in, []byte("alpha\nbeta"), 0o600))

	require.NoError(t, cfg.LoadConfig(in))
	assert.Equal(t, []string{"rule: alpha", "rule: beta"}, cfg.InfoConfig())

	out := filepath.Join(dir, "saved.conf")
	require.NoError(t, cfg.SaveConfig(out))

	saved, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "alpha\nbeta", string(saved))
}

func TestLoadConfigMissingFile(t *testing.T) {
	p, _ := loadScript(t, configurableScript)
	cfg := p.(sdk.Configurable)

	err := cfg.LoadConfig(filepath.Join(t.TempDir(), "nope.conf"))
	require.Error(t, err)
	assert.NotEmpty(t, p.LastError())
}

func TestUnloadedPluginIsRemoved(t *testing.T) {
	p, host := loadScript(t, decoderScript)
	require.Contains(t, host.Plugins(), p.Name())

	require.NoError(t, host.Unload(context.Background(), p.Name()))
	assert.NotContains(t, host.Plugins(), p.Name())
	assert.Error(t, host.Unload(context.Background(), p.Name()))
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LogLens Contributors

package plugin_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loglens/loglens/internal/plugin"
)

func TestGenerateSchema(t *testing.T) {
	data, err := plugin.GenerateSchema()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))

	assert.Equal(t, plugin.SchemaID, schema["$id"])
	assert.Equal(t, "LogLens Plugin Manifest", schema["title"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"name", "version", "capabilities", "lua-decoder"} {
		assert.Contains(t, props, key)
	}
}

func TestValidateSchema_ValidManifest(t *testing.T) {
	plugin.ResetSchemaCache()

	yaml := `
name: nonverbose
version: 1.0.0
capabilities:
  - decode.msg
lua-decoder:
  entry: decoder.lua
`
	assert.NoError(t, plugin.ValidateSchema([]byte(yaml)))
}

func TestValidateSchema_MissingVersion(t *testing.T) {
	err := plugin.ValidateSchema([]byte("name: echo\n"))
	assert.Error(t, err)
}

func TestValidateSchema_WrongTypes(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"capabilities as string", "name: echo\nversion: 1.0.0\ncapabilities: decode.msg"},
		{"lua-decoder as string", "name: echo\nversion: 1.0.0\nlua-decoder: decoder.lua"},
		{"name as number", "name: 42\nversion: 1.0.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, plugin.ValidateSchema([]byte(tt.yaml)))
		})
	}
}

func TestValidateSchema_EmptyData(t *testing.T) {
	assert.ErrorContains(t, plugin.ValidateSchema(nil), "empty")
}

func TestValidateSchema_InvalidYAML(t *testing.T) {
	assert.ErrorContains(t, plugin.ValidateSchema([]byte("name: [unclosed")), "invalid YAML")
}

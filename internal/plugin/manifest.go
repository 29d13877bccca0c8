// Package plugin implements the reference in-process dispatcher for the
// LogLens plugin contract: registration, capability routing, the viewer
// lifecycle state machine, the command execution protocol, and the
// control-channel fanout.
package plugin

import (
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"

	sdk "github.com/loglens/loglens/pkg/plugin"
)

// Manifest represents a plugin.yaml file describing one plugin: its
// identity, the contract version it was built against, the capability
// grants it requests, and optional runtime configuration.
type Manifest struct {
	Name             string            `yaml:"name"              json:"name"`
	Version          string            `yaml:"version"           json:"version"`
	Description      string            `yaml:"description,omitempty"       json:"description,omitempty"`
	InterfaceVersion string            `yaml:"interface-version,omitempty" json:"interface-version,omitempty"`
	Capabilities     []string          `yaml:"capabilities,omitempty"      json:"capabilities,omitempty"`
	Config           string            `yaml:"config,omitempty"            json:"config,omitempty"`
	LuaDecoder       *LuaDecoderConfig `yaml:"lua-decoder,omitempty"       json:"lua-decoder,omitempty"`
}

// LuaDecoderConfig configures a Lua-scripted decoder plugin.
type LuaDecoderConfig struct {
	Entry string `yaml:"entry" json:"entry"`
}

// maxNameLength is the maximum allowed length for plugin names.
const maxNameLength = 64

// namePattern validates plugin names: must start with a lowercase letter,
// followed by lowercase letters, digits, or hyphens. Cannot end with a
// hyphen. Single character names are allowed.
var namePattern = regexp.MustCompile(`^[a-z]([a-z0-9-]*[a-z0-9])?$`)

// ParseManifest parses and validates a plugin.yaml file.
func ParseManifest(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("manifest data is empty")
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest constraints.
func (m *Manifest) Validate() error {
	if m.Name == "" || !namePattern.MatchString(m.Name) {
		return fmt.Errorf("name %q must start with a-z, contain only a-z, 0-9, hyphens, and not end with a hyphen", m.Name)
	}
	if len(m.Name) > maxNameLength {
		return fmt.Errorf("name must be %d characters or less, got %d", maxNameLength, len(m.Name))
	}

	if m.Version == "" {
		return fmt.Errorf("version is required")
	}

	if m.InterfaceVersion == "" {
		m.InterfaceVersion = sdk.InterfaceVersion
	}

	if m.LuaDecoder != nil && m.LuaDecoder.Entry == "" {
		return fmt.Errorf("lua-decoder.entry is required when lua-decoder is present")
	}

	for i, c := range m.Capabilities {
		if c == "" {
			return fmt.Errorf("capability %d: empty grant pattern", i)
		}
	}

	return nil
}

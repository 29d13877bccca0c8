// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LogLens Contributors

// Package nonverbose decodes compact frame-ID records into human-readable
// text using rule files. A rule pairs a match pattern with a message
// template; rules are loaded from a YAML file or from every YAML file in
// a directory.
package nonverbose

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gobwas/glob"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	goyaml "gopkg.in/yaml.v3"

	sdk "github.com/loglens/loglens/pkg/plugin"
)

const version = "1.1.0"

// Rule maps frames matching a pattern to a message template. A "%s" in
// the template is replaced with the raw frame text.
type Rule struct {
	Name     string `koanf:"name"     yaml:"name"`
	Match    string `koanf:"match"    yaml:"match"`
	Template string `koanf:"template" yaml:"template"`
}

// rulesFile is the serialized layout of one rule file.
type rulesFile struct {
	Rules []Rule `koanf:"rules" yaml:"rules"`
}

type compiledRule struct {
	Rule
	matcher glob.Glob
}

// Plugin implements the decoder and configuration capabilities.
type Plugin struct {
	sdk.Diag

	mu     sync.RWMutex
	rules  []compiledRule
	origin string
}

var (
	_ sdk.Decoder      = (*Plugin)(nil)
	_ sdk.Configurable = (*Plugin)(nil)
)

// New creates the plugin with no rules loaded. Until rules are loaded it
// claims no messages.
func New() *Plugin {
	return &Plugin{}
}

func (p *Plugin) Name() string                   { return "nonverbose" }
func (p *Plugin) Description() string            { return "decodes frame-ID records using rule files" }
func (p *Plugin) PluginVersion() string          { return version }
func (p *Plugin) PluginInterfaceVersion() string { return sdk.InterfaceVersion }

// LoadConfig implements sdk.Configurable. path may be a single YAML rule
// file or a directory of them; a directory is loaded in lexical order.
// The previous rule set is replaced only when loading succeeds.
func (p *Plugin) LoadConfig(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return p.Record(fmt.Errorf("nonverbose: stat config: %w", err))
	}

	paths := []string{path}
	if fi.IsDir() {
		entries, err := filepath.Glob(filepath.Join(path, "*.yaml"))
		if err != nil {
			return p.Record(fmt.Errorf("nonverbose: list config dir: %w", err))
		}
		if len(entries) == 0 {
			return p.Recordf("nonverbose: no rule files in %s", path)
		}
		sort.Strings(entries)
		paths = entries
	}

	var compiled []compiledRule
	for _, rp := range paths {
		rules, err := loadRuleFile(rp)
		if err != nil {
			return p.Record(err)
		}
		compiled = append(compiled, rules...)
	}

	p.mu.Lock()
	p.rules = compiled
	p.origin = path
	p.mu.Unlock()

	p.Clear()
	return nil
}

// loadRuleFile reads and compiles one YAML rule file.
func loadRuleFile(path string) ([]compiledRule, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("nonverbose: load %s: %w", path, err)
	}

	var rf rulesFile
	if err := k.Unmarshal("", &rf); err != nil {
		return nil, fmt.Errorf("nonverbose: parse %s: %w", path, err)
	}
	if len(rf.Rules) == 0 {
		return nil, fmt.Errorf("nonverbose: %s contains no rules", path)
	}

	compiled := make([]compiledRule, 0, len(rf.Rules))
	for i, r := range rf.Rules {
		if r.Match == "" {
			return nil, fmt.Errorf("nonverbose: %s rule %d: match pattern is empty", path, i)
		}
		m, err := glob.Compile(r.Match)
		if err != nil {
			return nil, fmt.Errorf("nonverbose: %s rule %q: %w", path, r.Name, err)
		}
		compiled = append(compiled, compiledRule{Rule: r, matcher: m})
	}
	return compiled, nil
}

// SaveConfig implements sdk.Configurable. The effective rule set is
// written as a single file regardless of how it was loaded.
func (p *Plugin) SaveConfig(path string) error {
	p.mu.RLock()
	rf := rulesFile{Rules: make([]Rule, len(p.rules))}
	for i, r := range p.rules {
		rf.Rules[i] = r.Rule
	}
	p.mu.RUnlock()

	data, err := goyaml.Marshal(&rf)
	if err != nil {
		return p.Record(fmt.Errorf("nonverbose: marshal rules: %w", err))
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return p.Record(fmt.Errorf("nonverbose: write %s: %w", path, err))
	}

	p.Clear()
	return nil
}

// InfoConfig implements sdk.Configurable.
func (p *Plugin) InfoConfig() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.rules) == 0 {
		return nil
	}
	lines := make([]string, 0, len(p.rules)+1)
	lines = append(lines, fmt.Sprintf("%d rules from %s", len(p.rules), p.origin))
	for _, r := range p.rules {
		lines = append(lines, fmt.Sprintf("rule %q: %s -> %s", r.Name, r.Match, r.Template))
	}
	return lines
}

// IsMsg implements sdk.Decoder.
func (p *Plugin) IsMsg(msg *sdk.Message, _ bool) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	text := string(msg.Payload())
	for _, r := range p.rules {
		if r.matcher.Match(text) {
			return true
		}
	}
	return false
}

// DecodeMsg implements sdk.Decoder. The first matching rule renders the
// message.
func (p *Plugin) DecodeMsg(msg *sdk.Message, _ bool) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	text := string(msg.Payload())
	for _, r := range p.rules {
		if !r.matcher.Match(text) {
			continue
		}
		// Only the literal %s placeholder substitutes; anything else in
		// the template is user text, not a format verb.
		msg.SetDecoded(strings.Replace(r.Template, "%s", text, 1))
		p.Clear()
		return nil
	}
	return p.Recordf("nonverbose: no rule matches message %d", msg.Index())
}

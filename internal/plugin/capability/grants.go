// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LogLens Contributors

// Package capability provides runtime routing grants for plugins.
//
// The dispatcher consults grants before routing traffic to a plugin:
// decoder traffic is gated on "decode.msg", viewer traffic on "view.*"
// actions, control traffic on "control.*" actions, and each command on
// "command.<name>". A plugin registered without an explicit grant list
// receives AllowAll.
//
// Pattern matching uses gobwas/glob with '.' as the segment separator:
//   - '*' matches a single segment (does not cross '.')
//   - '**' matches zero or more segments (crosses '.')
//
// Examples:
//   - "control.*" matches "control.msg" but NOT "control.msg.verbose"
//   - "command.**" matches every command action
//   - "**" matches any action
package capability

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gobwas/glob"
)

// AllowAll is the grant set given to plugins that request nothing
// explicit.
var AllowAll = []string{"**"}

// compiledGrant holds a pattern and its compiled glob for matching.
type compiledGrant struct {
	pattern string
	glob    glob.Glob
}

// Grants maps plugin names to the routing actions they may receive.
//
// Grants is safe for concurrent use. Unknown plugins are denied by
// default; the dispatcher registers every plugin explicitly.
type Grants struct {
	byPlugin map[string][]compiledGrant
	mu       sync.RWMutex
}

// NewGrants creates an empty grant table.
func NewGrants() *Grants {
	return &Grants{
		byPlugin: make(map[string][]compiledGrant),
	}
}

// Set configures the grant patterns for a plugin, replacing any previous
// set. All patterns are compiled before the table is touched, so a
// validation failure leaves prior state intact.
func (g *Grants) Set(plugin string, patterns []string) error {
	if plugin == "" {
		return errors.New("plugin name cannot be empty")
	}

	compiled := make([]compiledGrant, len(patterns))
	for i, pattern := range patterns {
		if pattern == "" {
			return fmt.Errorf("grant %d: empty pattern", i)
		}
		// Compile with '.' as separator so '*' doesn't cross segments.
		cg, err := glob.Compile(pattern, '.')
		if err != nil {
			return fmt.Errorf("grant %d (%q): %w", i, pattern, err)
		}
		compiled[i] = compiledGrant{pattern: pattern, glob: cg}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.byPlugin[plugin] = compiled
	return nil
}

// Remove drops all grants for a plugin. Safe for unknown plugins.
func (g *Grants) Remove(plugin string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.byPlugin, plugin)
}

// Patterns returns a copy of the patterns granted to a plugin, or nil if
// the plugin is unknown.
func (g *Grants) Patterns(plugin string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	grants, ok := g.byPlugin[plugin]
	if !ok {
		return nil
	}
	patterns := make([]string, len(grants))
	for i, cg := range grants {
		patterns[i] = cg.pattern
	}
	return patterns
}

// Allows reports whether the plugin may receive the given action.
// Unknown plugins and empty actions are denied.
func (g *Grants) Allows(plugin, action string) bool {
	if action == "" {
		return false
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, cg := range g.byPlugin[plugin] {
		if cg.glob.Match(action) {
			return true
		}
	}
	return false
}

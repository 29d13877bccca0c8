// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LogLens Contributors

// Package plugin defines the LogLens plugin contract: the identity surface
// every plugin exposes, the capability interfaces a plugin may implement,
// and the opaque handles the host passes across the plugin boundary.
//
// A plugin implements Plugin plus any non-empty subset of Configurable,
// Decoder, Viewer, Controller, and Commander. The host routes calls only
// to the capabilities a plugin actually implements.
package plugin

import (
	"fmt"
	"sync"
)

// InterfaceVersion is the published version of this contract. The host
// compares a plugin's PluginInterfaceVersion against it before activation
// and rejects plugins built against an incompatible major version.
const InterfaceVersion = "1.0.0"

// Plugin is the identity and diagnostics surface shared by all plugins.
type Plugin interface {
	// Name identifies the plugin. Names must be unique within one host.
	Name() string

	// Description is a human-readable summary shown in plugin listings.
	Description() string

	// PluginVersion is the plugin's own version in X.Y.Z form.
	PluginVersion() string

	// PluginInterfaceVersion is the contract version the plugin was built
	// against. Return InterfaceVersion unless shipping against an older
	// published contract.
	PluginInterfaceVersion() string

	// LastError returns a human-readable message for the most recently
	// failed operation, or "" if it succeeded. It is a pull-based
	// convenience for UIs that display a message after the fact; errors
	// propagate across the boundary through return values, never panics.
	LastError() string
}

// Configurable is implemented by plugins that persist configuration.
// The path may denote a single file or a directory; the layout underneath
// is plugin-defined and opaque to the host.
type Configurable interface {
	Plugin

	// LoadConfig loads configuration from path. A plugin that does not
	// support loading returns an error rather than silently succeeding.
	LoadConfig(path string) error

	// SaveConfig stores the effective configuration at path.
	SaveConfig(path string) error

	// InfoConfig returns one descriptive line per loaded configuration
	// element, for diagnostic display. It never fails; an empty slice
	// means nothing is loaded.
	InfoConfig() []string
}

// Decoder is implemented by plugins that transform raw log records into
// human-readable form.
type Decoder interface {
	Plugin

	// IsMsg reports whether this plugin claims ownership of decoding msg.
	// It must be a pure, fast predicate of the message content and the
	// triggeredByUser flag: the host may call it on every message of a
	// large log. triggeredByUser distinguishes a bulk background pass
	// (false) from an explicit user action such as an export (true).
	IsMsg(msg *Message, triggeredByUser bool) bool

	// DecodeMsg decodes msg in place, setting its decoded content. On
	// failure the raw content stays intact and the decoded content stays
	// unset; a failure is local to the message and never aborts the
	// surrounding stream.
	DecodeMsg(msg *Message, triggeredByUser bool) error
}

// Diag is an embeddable last-error recorder satisfying the LastError
// accessor of the Plugin interface. The zero value is ready to use.
//
// Diag is safe for concurrent use so asynchronous command workers can
// record failures while the host polls.
type Diag struct {
	mu   sync.Mutex
	last string
}

// Record stores err as the last error and returns it unchanged, so call
// sites can write `return d.Record(err)`. Recording nil clears the slot,
// matching the contract that LastError reflects only the most recently
// completed operation.
func (d *Diag) Record(err error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		d.last = ""
		return nil
	}
	d.last = err.Error()
	return err
}

// Recordf formats, stores, and returns a new error.
func (d *Diag) Recordf(format string, args ...any) error {
	return d.Record(fmt.Errorf(format, args...))
}

// Clear resets the last-error slot after a successful operation.
func (d *Diag) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = ""
}

// LastError returns the stored message, or "" if the last recorded
// operation succeeded.
func (d *Diag) LastError() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

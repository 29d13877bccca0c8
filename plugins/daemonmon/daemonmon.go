// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LogLens Contributors

// Package daemonmon is a controller plugin that tracks the health of
// daemon connections: it mirrors the host's connection list, follows
// state transitions, counts spurious repeats, and requests a status
// report whenever a connection comes up.
package daemonmon

import (
	"fmt"
	"sync"

	sdk "github.com/loglens/loglens/pkg/plugin"
)

const version = "1.0.0"

// statusRequest is the control payload sent when a connection reaches
// the connected state.
var statusRequest = []byte("get-status")

// Connection is the tracked state of one daemon link.
type Connection struct {
	Name      string
	State     sdk.ConnectionState
	Responses int
	// Spurious counts StateChanged repeats that carried no transition.
	Spurious int
}

// Plugin implements the controller capability.
type Plugin struct {
	sdk.Diag

	mu    sync.Mutex
	ctrl  sdk.Control
	conns []Connection
}

var _ sdk.Controller = (*Plugin)(nil)

// New creates the daemonmon plugin.
func New() *Plugin {
	return &Plugin{}
}

func (p *Plugin) Name() string                   { return "daemonmon" }
func (p *Plugin) Description() string            { return "tracks daemon connection health" }
func (p *Plugin) PluginVersion() string          { return version }
func (p *Plugin) PluginInterfaceVersion() string { return sdk.InterfaceVersion }

// InitControl implements sdk.Controller.
func (p *Plugin) InitControl(ctrl sdk.Control) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ctrl == nil {
		return p.Recordf("daemonmon: control channel is nil")
	}
	p.ctrl = ctrl
	p.Clear()
	return nil
}

// InitConnections implements sdk.Controller. names is the full current
// list; state tracked for a name that survives the change is kept, every
// other slot starts disconnected.
func (p *Plugin) InitConnections(names []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	prior := make(map[string]Connection, len(p.conns))
	for _, c := range p.conns {
		prior[c.Name] = c
	}

	p.conns = make([]Connection, len(names))
	for i, name := range names {
		if c, ok := prior[name]; ok {
			p.conns[i] = c
		} else {
			p.conns[i] = Connection{Name: name, State: sdk.StateDisconnected}
		}
	}
	return nil
}

// ControlMsg implements sdk.Controller.
func (p *Plugin) ControlMsg(connIndex int, _ *sdk.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if connIndex < 0 || connIndex >= len(p.conns) {
		return p.Recordf("daemonmon: response for unknown connection %d", connIndex)
	}
	p.conns[connIndex].Responses++
	return nil
}

// StateChanged implements sdk.Controller. Spurious repeats of the current
// state are tolerated and counted instead of treated as transitions.
func (p *Plugin) StateChanged(connIndex int, state sdk.ConnectionState) error {
	p.mu.Lock()

	if connIndex < 0 || connIndex >= len(p.conns) {
		p.mu.Unlock()
		return p.Recordf("daemonmon: state change for unknown connection %d", connIndex)
	}

	c := &p.conns[connIndex]
	if c.State == state {
		c.Spurious++
		p.mu.Unlock()
		return nil
	}
	c.State = state
	ctrl := p.ctrl
	p.mu.Unlock()

	// A fresh connection gets an immediate status request.
	if state == sdk.StateConnected && ctrl != nil {
		if err := ctrl.SendRequest(connIndex, statusRequest); err != nil {
			return p.Record(fmt.Errorf("daemonmon: status request: %w", err))
		}
	}
	return nil
}

// Connections snapshots the tracked connection table.
func (p *Plugin) Connections() []Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Connection(nil), p.conns...)
}

// StatusLines renders one line per tracked connection for display.
func (p *Plugin) StatusLines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	lines := make([]string, len(p.conns))
	for i, c := range p.conns {
		lines[i] = fmt.Sprintf("%s: %s (%d responses, %d spurious)",
			c.Name, c.State, c.Responses, c.Spurious)
	}
	return lines
}

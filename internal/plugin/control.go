// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LogLens Contributors

package plugin

import (
	"log/slog"

	"github.com/samber/oops"

	sdk "github.com/loglens/loglens/pkg/plugin"
)

// BindControl binds the control channel and calls InitControl once on
// every controller plugin. A controller whose InitControl fails is inert
// for the rest of the session; the host never retries it.
//
// The channel can be bound at most once per dispatcher.
func (d *Dispatcher) BindControl(ctrl sdk.Control) error {
	if ctrl == nil {
		return oops.In("dispatcher").New("control channel is nil")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.control != nil {
		return oops.In("dispatcher").New("control channel already bound")
	}
	d.control = ctrl

	for _, name := range d.order {
		e := d.entries[name]
		if e.controller == nil {
			continue
		}
		d.bindController(name, e)
	}
	return nil
}

// bindController runs InitControl for one controller. Callers hold d.mu.
func (d *Dispatcher) bindController(name string, e *entry) {
	if err := e.controller.InitControl(d.control); err != nil {
		e.controllerInert = true
		e.lastFailure = err.Error()
		slog.Warn("controller initialization failed, capability disabled",
			"plugin", name,
			"error", err)
	}
}

// SetConnections replaces the host-maintained connection list and fans the
// full list out to every live controller. The list is never delivered as
// a delta; a plugin reconstructs correct state from any single call.
func (d *Dispatcher) SetConnections(names []string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.connections = make([]string, len(names))
	copy(d.connections, names)

	for _, name := range d.order {
		e := d.entries[name]
		if e.controller == nil || e.controllerInert {
			continue
		}
		d.deliverConnections(name, e)
	}
}

// deliverConnections sends the current full list to one controller.
// Callers hold d.mu. Each controller receives its own copy so a
// misbehaving plugin cannot corrupt the host list.
func (d *Dispatcher) deliverConnections(name string, e *entry) {
	if !d.grants.Allows(name, actionControlConn) {
		return
	}
	cp := make([]string, len(d.connections))
	copy(cp, d.connections)

	if err := e.controller.InitConnections(cp); err != nil {
		e.lastFailure = err.Error()
		slog.Debug("initConnections failed", "plugin", name, "error", err)
	}
}

// ControlMsg delivers one control-protocol response to every live
// controller. Errors returned by plugins only affect diagnostics;
// delivery continues.
func (d *Dispatcher) ControlMsg(connIndex int, msg *sdk.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if connIndex < 0 || connIndex >= len(d.connections) {
		return oops.In("dispatcher").With("conn_index", connIndex).With("connections", len(d.connections)).New("connection index out of range")
	}

	for _, name := range d.order {
		e := d.entries[name]
		if e.controller == nil || e.controllerInert || !d.grants.Allows(name, actionControlMsg) {
			continue
		}
		if err := e.controller.ControlMsg(connIndex, msg); err != nil {
			e.lastFailure = err.Error()
			slog.Debug("controlMsg failed", "plugin", name, "conn_index", connIndex, "error", err)
		}
	}

	if d.metrics != nil {
		d.metrics.ControlDeliveriesTotal.WithLabelValues("msg").Inc()
	}
	return nil
}

// StateChanged reports a connection-state transition to every live
// controller. Spurious repeats of the same state are the plugin's problem
// to tolerate; the dispatcher forwards what the host observed.
func (d *Dispatcher) StateChanged(connIndex int, state sdk.ConnectionState) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if connIndex < 0 || connIndex >= len(d.connections) {
		return oops.In("dispatcher").With("conn_index", connIndex).With("connections", len(d.connections)).New("connection index out of range")
	}

	for _, name := range d.order {
		e := d.entries[name]
		if e.controller == nil || e.controllerInert || !d.grants.Allows(name, actionControlStat) {
			continue
		}
		if err := e.controller.StateChanged(connIndex, state); err != nil {
			e.lastFailure = err.Error()
			slog.Debug("stateChanged failed",
				"plugin", name,
				"conn_index", connIndex,
				"state", state.String(),
				"error", err)
		}
	}

	if d.metrics != nil {
		d.metrics.ControlDeliveriesTotal.WithLabelValues("state").Inc()
	}
	return nil
}

// LogControl is a control channel that records requests to the log
// instead of a transport. The reference host uses it when no daemon
// connection is configured.
type LogControl struct{}

// SendRequest implements sdk.Control.
func (LogControl) SendRequest(connIndex int, payload []byte) error {
	slog.Info("control request", "conn_index", connIndex, "bytes", len(payload))
	return nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LogLens Contributors

package plugin

// ConnectionState describes one logical link to a remote logging daemon.
// Connections are identified by their index into the host-maintained
// connection list.
type ConnectionState int

// Connection states, enumerated by the host.
const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateError
)

// String returns the lowercase state name.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Control is the opaque control-channel handle the host hands to a
// controller. It is send-only: responses arrive through ControlMsg.
type Control interface {
	// SendRequest sends one control-protocol request on the connection at
	// the given index. Transport timeouts and retries are the channel's
	// responsibility, not the plugin's.
	SendRequest(connIndex int, payload []byte) error
}

// Controller is implemented by plugins that exchange control protocol
// messages with a remote logging daemon per connection.
type Controller interface {
	Plugin

	// InitControl binds the plugin to the control channel. It is called
	// once; a failure disables all further control calls to this plugin
	// for the rest of the session.
	InitControl(ctrl Control) error

	// InitConnections is called whenever the set of known connections
	// changes. names is always the full current list, never a delta, so
	// an implementation reconstructs correct state from any single call.
	InitConnections(names []string) error

	// ControlMsg delivers one control-protocol response received on the
	// connection at connIndex. A returned error only affects diagnostics;
	// delivery to other plugins continues.
	ControlMsg(connIndex int, msg *Message) error

	// StateChanged reports a connection-state transition. Plugins must
	// tolerate spurious repeats of the same state.
	StateChanged(connIndex int, state ConnectionState) error
}

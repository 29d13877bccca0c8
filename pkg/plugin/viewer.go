// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LogLens Contributors

package plugin

import "io"

// Source is the host's opaque handle to the currently open log. A viewer
// receives it for the duration of one file epoch, from InitFileStart to
// the end of that epoch, and must not retain it beyond.
type Source interface {
	// Epoch identifies the current file epoch. A new open (or a reopen of
	// the same path) yields a new epoch.
	Epoch() string

	// Len is the number of messages currently in the log.
	Len() int

	// Message returns the message at index, or nil if out of range.
	Message(index int) *Message
}

// View is the opaque view handle a viewer returns from InitViewer. The
// host embeds it in its own surface; the reference host renders it as
// text.
type View interface {
	// Title is the view's display name.
	Title() string

	// Render writes the view's current content to w. It is called on the
	// host's schedule and must not block for long.
	Render(w io.Writer) error
}

// Viewer is implemented by plugins that render a custom view synchronized
// to a live or static log stream.
//
// The host serializes all Viewer calls per plugin instance and issues them
// in a fixed order per file epoch:
//
//	InitFileStart
//	InitMsg / InitMsgDecoded   (every pre-existing message, indices
//	                            non-decreasing per pass)
//	InitFileFinish
//	zero or more update rounds:
//	  UpdateFileStart
//	  UpdateMsg / UpdateMsgDecoded   (newly appended messages only)
//	  UpdateFileFinish
//
// Implementations may therefore keep unsynchronized per-epoch state. The
// raw and decoded passes for one index are not guaranteed back-to-back; a
// viewer needing both tracks state keyed by index between the passes.
type Viewer interface {
	Plugin

	// InitViewer is called once at plugin activation and returns the view
	// handle the host embeds. A failure makes the host treat the plugin
	// as inert for the viewer capability for the rest of the session.
	InitViewer() (View, error)

	// InitFileStart begins a file epoch. A second InitFileStart before
	// InitFileFinish means the source was replaced mid-load; the plugin
	// discards prior per-epoch state.
	InitFileStart(src Source)

	// InitMsg delivers one pre-existing raw message.
	InitMsg(index int, msg *Message)

	// InitMsgDecoded delivers one pre-existing decoded message.
	InitMsgDecoded(index int, msg *Message)

	// InitFileFinish marks the bulk of the log as delivered.
	InitFileFinish()

	// UpdateFileStart opens one batch of newly appended messages.
	UpdateFileStart()

	// UpdateMsg delivers one appended raw message.
	UpdateMsg(index int, msg *Message)

	// UpdateMsgDecoded delivers one appended decoded message.
	UpdateMsgDecoded(index int, msg *Message)

	// UpdateFileFinish closes the current update batch.
	UpdateFileFinish()

	// SelectedIdxMsg reports a user selection of a raw message. It fires
	// outside the streaming cadence, at most once per selection change,
	// is informational only, and must not block the host for long.
	SelectedIdxMsg(index int, msg *Message)

	// SelectedIdxMsgDecoded reports a user selection of a decoded message.
	SelectedIdxMsgDecoded(index int, msg *Message)
}

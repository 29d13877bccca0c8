// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LogLens Contributors

package plugin

import "time"

// Message is a mutable handle to one log record. The same message passes
// through the pipeline twice, once raw and once decoded; a decoder attaches
// derived content via SetDecoded while the raw payload stays immutable.
type Message struct {
	index     int
	timestamp time.Time
	payload   []byte
	decoded   string
	isDecoded bool
}

// NewMessage creates a message at the given position in the current log.
// Indices are assigned by the host and are stable within one file epoch.
func NewMessage(index int, timestamp time.Time, payload []byte) *Message {
	return &Message{
		index:     index,
		timestamp: timestamp,
		payload:   payload,
	}
}

// Index is the message's position in the current log.
func (m *Message) Index() int { return m.index }

// Timestamp is the record time as reported by the source.
func (m *Message) Timestamp() time.Time { return m.timestamp }

// Payload returns the raw record bytes. Callers must not modify the
// returned slice.
func (m *Message) Payload() []byte { return m.payload }

// IsDecoded reports whether a decoder has attached decoded content.
func (m *Message) IsDecoded() bool { return m.isDecoded }

// Decoded returns the decoded form, or "" when the message is raw.
func (m *Message) Decoded() string { return m.decoded }

// SetDecoded attaches decoded content to the message.
func (m *Message) SetDecoded(text string) {
	m.decoded = text
	m.isDecoded = true
}

// ClearDecoded reverts the message to its raw form.
func (m *Message) ClearDecoded() {
	m.decoded = ""
	m.isDecoded = false
}

// Text returns the decoded form when present, otherwise the raw payload.
func (m *Message) Text() string {
	if m.isDecoded {
		return m.decoded
	}
	return string(m.payload)
}

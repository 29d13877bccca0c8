// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LogLens Contributors

package plugin

import (
	"log/slog"

	sdk "github.com/loglens/loglens/pkg/plugin"
)

// Decode routes one message through the decoder pipeline. The first
// decoder claiming the message via IsMsg owns it; on a decode failure the
// message stays raw and no other decoder is tried. Failures are local to
// the message and never abort the surrounding stream.
//
// It returns true if the message carries decoded content afterwards.
func (d *Dispatcher) Decode(msg *sdk.Message, triggeredByUser bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, name := range d.order {
		e := d.entries[name]
		if e.decoder == nil || !d.grants.Allows(name, actionDecode) {
			continue
		}
		if !e.decoder.IsMsg(msg, triggeredByUser) {
			continue
		}

		if err := e.decoder.DecodeMsg(msg, triggeredByUser); err != nil {
			e.lastFailure = err.Error()
			if d.metrics != nil {
				d.metrics.DecodeFailuresTotal.WithLabelValues(name).Inc()
			}
			slog.Debug("decode failed",
				"plugin", name,
				"index", msg.Index(),
				"error", err)
			return false
		}
		return true
	}
	return false
}

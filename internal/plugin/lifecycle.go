// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LogLens Contributors

package plugin

import (
	"errors"
	"log/slog"

	"github.com/samber/oops"

	sdk "github.com/loglens/loglens/pkg/plugin"
)

// ErrOutOfOrder marks host calls that violate the viewer lifecycle state
// machine. Callers detect it with errors.Is.
var ErrOutOfOrder = errors.New("lifecycle call out of order")

// phase is the viewer lifecycle state for the current epoch:
// Closed → Opening → Streaming, with Updating as the sub-phase of one
// update round.
type phase int

const (
	phaseClosed phase = iota
	phaseOpening
	phaseStreaming
	phaseUpdating
)

func (p phase) String() string {
	switch p {
	case phaseClosed:
		return "closed"
	case phaseOpening:
		return "opening"
	case phaseStreaming:
		return "streaming"
	case phaseUpdating:
		return "updating"
	default:
		return "invalid"
	}
}

// pass identifies one delivery stream inside an epoch. The raw and
// decoded passes carry independent monotonic index sequences; the update
// passes continue where the init passes left off.
type pass int

const (
	passRaw pass = iota
	passDecoded
)

func (p pass) String() string {
	if p == passRaw {
		return "raw"
	}
	return "decoded"
}

// InitFileStart begins a file epoch and delivers the source handle to
// every live viewer. It is legal in any phase: arriving before the prior
// epoch's InitFileFinish signals the source was replaced mid-load, and
// per-epoch state starts over.
func (d *Dispatcher) InitFileStart(src sdk.Source) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.phase == phaseOpening || d.phase == phaseUpdating {
		slog.Warn("source replaced before epoch completed",
			"prior_epoch", d.epoch,
			"phase", d.phase.String(),
			"epoch", src.Epoch())
	}

	d.phase = phaseOpening
	d.epoch = src.Epoch()
	d.source = src
	d.lastIdx = map[pass]int{passRaw: -1, passDecoded: -1}

	for _, name := range d.order {
		e := d.entries[name]
		if e.viewer == nil || e.viewerInert || !d.grants.Allows(name, actionViewStream) {
			continue
		}
		e.viewer.InitFileStart(src)
	}

	slog.Info("file epoch opened", "epoch", d.epoch)
}

// InitMsg delivers one pre-existing raw message to every live viewer.
func (d *Dispatcher) InitMsg(index int, msg *sdk.Message) error {
	return d.deliver("initMsg", phaseOpening, passRaw, index, func(v sdk.Viewer) {
		v.InitMsg(index, msg)
	})
}

// InitMsgDecoded delivers one pre-existing decoded message.
func (d *Dispatcher) InitMsgDecoded(index int, msg *sdk.Message) error {
	return d.deliver("initMsgDecoded", phaseOpening, passDecoded, index, func(v sdk.Viewer) {
		v.InitMsgDecoded(index, msg)
	})
}

// InitFileFinish completes the initial bulk delivery; the epoch enters
// the streaming phase.
func (d *Dispatcher) InitFileFinish() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.phase != phaseOpening {
		return d.violation("initFileFinish", phaseOpening)
	}
	d.phase = phaseStreaming

	for _, name := range d.order {
		e := d.entries[name]
		if e.viewer == nil || e.viewerInert || !d.grants.Allows(name, actionViewStream) {
			continue
		}
		e.viewer.InitFileFinish()
	}

	slog.Info("file epoch streaming", "epoch", d.epoch)
	return nil
}

// UpdateFileStart opens one batch of newly appended messages. Rounds do
// not overlap: a second UpdateFileStart before UpdateFileFinish is
// rejected.
func (d *Dispatcher) UpdateFileStart() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.phase != phaseStreaming {
		return d.violation("updateFileStart", phaseStreaming)
	}
	d.phase = phaseUpdating

	for _, name := range d.order {
		e := d.entries[name]
		if e.viewer == nil || e.viewerInert || !d.grants.Allows(name, actionViewStream) {
			continue
		}
		e.viewer.UpdateFileStart()
	}
	return nil
}

// UpdateMsg delivers one appended raw message.
func (d *Dispatcher) UpdateMsg(index int, msg *sdk.Message) error {
	return d.deliver("updateMsg", phaseUpdating, passRaw, index, func(v sdk.Viewer) {
		v.UpdateMsg(index, msg)
	})
}

// UpdateMsgDecoded delivers one appended decoded message.
func (d *Dispatcher) UpdateMsgDecoded(index int, msg *sdk.Message) error {
	return d.deliver("updateMsgDecoded", phaseUpdating, passDecoded, index, func(v sdk.Viewer) {
		v.UpdateMsgDecoded(index, msg)
	})
}

// UpdateFileFinish closes the current update round; the epoch returns to
// the streaming phase.
func (d *Dispatcher) UpdateFileFinish() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.phase != phaseUpdating {
		return d.violation("updateFileFinish", phaseUpdating)
	}
	d.phase = phaseStreaming

	for _, name := range d.order {
		e := d.entries[name]
		if e.viewer == nil || e.viewerInert || !d.grants.Allows(name, actionViewStream) {
			continue
		}
		e.viewer.UpdateFileFinish()
	}
	return nil
}

// SelectedIdxMsg reports a user selection of a raw message. Selections
// are best-effort notifications outside the streaming cadence; they are
// valid any time after the initial bulk delivery finished.
func (d *Dispatcher) SelectedIdxMsg(index int, msg *sdk.Message) error {
	return d.deliverSelection(func(v sdk.Viewer) {
		v.SelectedIdxMsg(index, msg)
	})
}

// SelectedIdxMsgDecoded reports a user selection of a decoded message.
func (d *Dispatcher) SelectedIdxMsgDecoded(index int, msg *sdk.Message) error {
	return d.deliverSelection(func(v sdk.Viewer) {
		v.SelectedIdxMsgDecoded(index, msg)
	})
}

// LoadSource drives one complete initial bulk delivery: InitFileStart,
// interleaved raw and decoded init passes over every pre-existing
// message (the decoded pass runs the decoder pipeline), and
// InitFileFinish.
func (d *Dispatcher) LoadSource(src sdk.Source) error {
	d.InitFileStart(src)

	for i := 0; i < src.Len(); i++ {
		msg := src.Message(i)
		if msg == nil {
			continue
		}
		if err := d.InitMsg(msg.Index(), msg); err != nil {
			return err
		}
		d.Decode(msg, false)
		if err := d.InitMsgDecoded(msg.Index(), msg); err != nil {
			return err
		}
	}

	return d.InitFileFinish()
}

// ApplyUpdate delivers one batch of appended messages, indices from
// (inclusive) to src.Len() (exclusive), as a single update round.
func (d *Dispatcher) ApplyUpdate(src sdk.Source, from int) error {
	if err := d.UpdateFileStart(); err != nil {
		return err
	}

	for i := from; i < src.Len(); i++ {
		msg := src.Message(i)
		if msg == nil {
			continue
		}
		if err := d.UpdateMsg(msg.Index(), msg); err != nil {
			return err
		}
		d.Decode(msg, false)
		if err := d.UpdateMsgDecoded(msg.Index(), msg); err != nil {
			return err
		}
	}

	return d.UpdateFileFinish()
}

// deliver guards one per-message lifecycle call: correct phase, index
// monotonic within its pass, then fanout to live viewers.
func (d *Dispatcher) deliver(call string, want phase, ps pass, index int, fn func(sdk.Viewer)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.phase != want {
		return d.violation(call, want)
	}

	if index < d.lastIdx[ps] {
		if d.metrics != nil {
			d.metrics.LifecycleViolationsTotal.Inc()
		}
		return oops.In("dispatcher").
			With("epoch", d.epoch).
			With("pass", ps.String()).
			With("index", index).
			With("last_index", d.lastIdx[ps]).
			Wrapf(ErrOutOfOrder, "message index went backwards")
	}
	d.lastIdx[ps] = index

	for _, name := range d.order {
		e := d.entries[name]
		if e.viewer == nil || e.viewerInert || !d.grants.Allows(name, actionViewStream) {
			continue
		}
		fn(e.viewer)
	}

	if d.metrics != nil {
		d.metrics.MessagesTotal.WithLabelValues(ps.String()).Inc()
	}
	return nil
}

func (d *Dispatcher) deliverSelection(fn func(sdk.Viewer)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.phase != phaseStreaming && d.phase != phaseUpdating {
		return d.violation("selection", phaseStreaming)
	}

	for _, name := range d.order {
		e := d.entries[name]
		if e.viewer == nil || e.viewerInert || !d.grants.Allows(name, actionViewSelect) {
			continue
		}
		fn(e.viewer)
	}
	return nil
}

// violation records one out-of-order lifecycle call. Callers hold d.mu.
func (d *Dispatcher) violation(call string, want phase) error {
	if d.metrics != nil {
		d.metrics.LifecycleViolationsTotal.Inc()
	}
	slog.Warn("lifecycle call out of order",
		"call", call,
		"phase", d.phase.String(),
		"expected", want.String(),
		"epoch", d.epoch)
	return oops.In("dispatcher").
		With("call", call).
		With("phase", d.phase.String()).
		With("expected", want.String()).
		With("epoch", d.epoch).
		Wrapf(ErrOutOfOrder, "%s in phase %s", call, d.phase)
}

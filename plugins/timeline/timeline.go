// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LogLens Contributors

// Package timeline is a viewer plugin that keeps per-epoch stream
// statistics and renders them as a text panel: message counts per pass,
// decode coverage, update rounds, and the current selection.
package timeline

import (
	"fmt"
	"io"
	"sync"

	sdk "github.com/loglens/loglens/pkg/plugin"
)

const version = "1.0.0"

// stats is the per-epoch state. It is rebuilt from scratch on every
// InitFileStart.
type stats struct {
	epoch        string
	rawCount     int
	decodedPass  int
	decodedCount int
	updateRounds int
	openRound    bool
	loaded       bool

	// decodedByIdx pairs the decoded pass with the raw pass by index.
	decodedByIdx map[int]bool

	selected    int
	hasSelected bool
}

// Plugin implements the viewer capability.
type Plugin struct {
	sdk.Diag

	// mu guards stats against Render, which the host calls on its own
	// schedule concurrently with lifecycle delivery.
	mu sync.Mutex
	st stats
}

var _ sdk.Viewer = (*Plugin)(nil)

// New creates the timeline plugin.
func New() *Plugin {
	return &Plugin{}
}

func (p *Plugin) Name() string                   { return "timeline" }
func (p *Plugin) Description() string            { return "per-epoch stream statistics panel" }
func (p *Plugin) PluginVersion() string          { return version }
func (p *Plugin) PluginInterfaceVersion() string { return sdk.InterfaceVersion }

// InitViewer implements sdk.Viewer.
func (p *Plugin) InitViewer() (sdk.View, error) {
	return &view{plugin: p}, nil
}

// InitFileStart implements sdk.Viewer. Prior per-epoch state is discarded
// even when the previous epoch never finished loading.
func (p *Plugin) InitFileStart(src sdk.Source) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.st = stats{
		epoch:        src.Epoch(),
		decodedByIdx: make(map[int]bool),
	}
}

// InitMsg implements sdk.Viewer.
func (p *Plugin) InitMsg(index int, msg *sdk.Message) {
	p.countRaw(index, msg)
}

// InitMsgDecoded implements sdk.Viewer.
func (p *Plugin) InitMsgDecoded(index int, msg *sdk.Message) {
	p.countDecoded(index, msg)
}

// InitFileFinish implements sdk.Viewer.
func (p *Plugin) InitFileFinish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.st.loaded = true
}

// UpdateFileStart implements sdk.Viewer.
func (p *Plugin) UpdateFileStart() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.st.updateRounds++
	p.st.openRound = true
}

// UpdateMsg implements sdk.Viewer.
func (p *Plugin) UpdateMsg(index int, msg *sdk.Message) {
	p.countRaw(index, msg)
}

// UpdateMsgDecoded implements sdk.Viewer.
func (p *Plugin) UpdateMsgDecoded(index int, msg *sdk.Message) {
	p.countDecoded(index, msg)
}

// UpdateFileFinish implements sdk.Viewer.
func (p *Plugin) UpdateFileFinish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.st.openRound = false
}

// SelectedIdxMsg implements sdk.Viewer.
func (p *Plugin) SelectedIdxMsg(index int, _ *sdk.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.st.selected = index
	p.st.hasSelected = true
}

// SelectedIdxMsgDecoded implements sdk.Viewer.
func (p *Plugin) SelectedIdxMsgDecoded(index int, msg *sdk.Message) {
	p.SelectedIdxMsg(index, msg)
}

func (p *Plugin) countRaw(_ int, _ *sdk.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.st.rawCount++
}

func (p *Plugin) countDecoded(index int, msg *sdk.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.st.decodedPass++
	if !msg.IsDecoded() || p.st.decodedByIdx[index] {
		return
	}
	if p.st.decodedByIdx == nil {
		p.st.decodedByIdx = make(map[int]bool)
	}
	p.st.decodedByIdx[index] = true
	p.st.decodedCount++
}

// snapshot copies current stats for rendering.
func (p *Plugin) snapshot() stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.st
}

// view renders the statistics panel.
type view struct {
	plugin *Plugin
}

func (v *view) Title() string { return "Timeline" }

// Render implements sdk.View.
func (v *view) Render(w io.Writer) error {
	st := v.plugin.snapshot()

	if st.epoch == "" {
		_, err := fmt.Fprintln(w, "no log open")
		return err
	}

	state := "loading"
	switch {
	case st.openRound:
		state = "updating"
	case st.loaded:
		state = "live"
	}

	if _, err := fmt.Fprintf(w, "epoch %s (%s)\n", st.epoch, state); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "messages: %d raw, %d decoded\n", st.rawCount, st.decodedCount); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "update rounds: %d\n", st.updateRounds); err != nil {
		return err
	}
	if st.hasSelected {
		if _, err := fmt.Fprintf(w, "selected: message %d\n", st.selected); err != nil {
			return err
		}
	}
	return nil
}

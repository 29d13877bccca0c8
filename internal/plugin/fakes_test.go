// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LogLens Contributors

package plugin_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	sdk "github.com/loglens/loglens/pkg/plugin"
)

// fakeSource is an in-memory source for lifecycle tests.
type fakeSource struct {
	epoch string
	msgs  []*sdk.Message
}

func newFakeSource(epoch string, payloads ...string) *fakeSource {
	s := &fakeSource{epoch: epoch}
	for i, p := range payloads {
		s.msgs = append(s.msgs, sdk.NewMessage(i, time.Now(), []byte(p)))
	}
	return s
}

func (s *fakeSource) Epoch() string { return s.epoch }
func (s *fakeSource) Len() int      { return len(s.msgs) }
func (s *fakeSource) Message(index int) *sdk.Message {
	if index < 0 || index >= len(s.msgs) {
		return nil
	}
	return s.msgs[index]
}

// base provides the identity surface for all fakes.
type base struct {
	sdk.Diag
	name    string
	ifaceV  string
	version string
}

func (b *base) Name() string        { return b.name }
func (b *base) Description() string { return "test plugin " + b.name }
func (b *base) PluginVersion() string {
	if b.version != "" {
		return b.version
	}
	return "1.0.0"
}
func (b *base) PluginInterfaceVersion() string {
	if b.ifaceV != "" {
		return b.ifaceV
	}
	return sdk.InterfaceVersion
}

// identityOnly implements Plugin but no capability.
type identityOnly struct{ base }

// fakeDecoder claims messages with the given prefix and decodes them to
// "dec:<payload>".
type fakeDecoder struct {
	base
	prefix  string
	fail    bool
	decoded int
}

func (d *fakeDecoder) IsMsg(msg *sdk.Message, _ bool) bool {
	return bytes.HasPrefix(msg.Payload(), []byte(d.prefix))
}

func (d *fakeDecoder) DecodeMsg(msg *sdk.Message, _ bool) error {
	if d.fail {
		return d.Recordf("decode of message %d failed", msg.Index())
	}
	msg.SetDecoded("dec:" + string(msg.Payload()))
	d.decoded++
	d.Clear()
	return nil
}

// fakeView is the view handle returned by fakeViewer.
type fakeView struct{ title string }

func (v *fakeView) Title() string { return v.title }
func (v *fakeView) Render(w io.Writer) error {
	_, err := io.WriteString(w, v.title)
	return err
}

// fakeViewer records every lifecycle call it receives, in order.
type fakeViewer struct {
	base
	initErr error

	mu     sync.Mutex
	events []string
}

func (v *fakeViewer) record(format string, args ...any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.events = append(v.events, fmt.Sprintf(format, args...))
}

func (v *fakeViewer) calls() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.events...)
}

func (v *fakeViewer) InitViewer() (sdk.View, error) {
	if v.initErr != nil {
		_ = v.Record(v.initErr)
		return nil, v.initErr
	}
	return &fakeView{title: v.name}, nil
}

func (v *fakeViewer) InitFileStart(src sdk.Source)          { v.record("initFileStart:%s", src.Epoch()) }
func (v *fakeViewer) InitMsg(i int, _ *sdk.Message)         { v.record("initMsg:%d", i) }
func (v *fakeViewer) InitMsgDecoded(i int, _ *sdk.Message)  { v.record("initMsgDecoded:%d", i) }
func (v *fakeViewer) InitFileFinish()                       { v.record("initFileFinish") }
func (v *fakeViewer) UpdateFileStart()                      { v.record("updateFileStart") }
func (v *fakeViewer) UpdateMsg(i int, _ *sdk.Message)       { v.record("updateMsg:%d", i) }
func (v *fakeViewer) UpdateMsgDecoded(i int, _ *sdk.Message) {
	v.record("updateMsgDecoded:%d", i)
}
func (v *fakeViewer) UpdateFileFinish()                          { v.record("updateFileFinish") }
func (v *fakeViewer) SelectedIdxMsg(i int, _ *sdk.Message)       { v.record("selected:%d", i) }
func (v *fakeViewer) SelectedIdxMsgDecoded(i int, _ *sdk.Message) {
	v.record("selectedDecoded:%d", i)
}

// fakeController tracks the channel, connection lists, and state changes
// it receives.
type fakeController struct {
	base
	initErr error

	mu     sync.Mutex
	ctrl   sdk.Control
	conns  []string
	states []sdk.ConnectionState
	msgs   []int
}

func (c *fakeController) InitControl(ctrl sdk.Control) error {
	if c.initErr != nil {
		return c.Record(c.initErr)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctrl = ctrl
	return nil
}

func (c *fakeController) InitConnections(names []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns = names
	return nil
}

func (c *fakeController) ControlMsg(connIndex int, _ *sdk.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, connIndex)
	return nil
}

func (c *fakeController) StateChanged(_ int, state sdk.ConnectionState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states = append(c.states, state)
	return nil
}

func (c *fakeController) connections() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.conns...)
}

// fakeCommander supports "echo" (synchronous), "sleep" (asynchronous,
// cancellable), and "explode" (rejected at dispatch).
type fakeCommander struct {
	base
	runner *sdk.AsyncCommand

	// release gates the sleep command so tests control completion.
	release chan struct{}
}

func newFakeCommander(name string) *fakeCommander {
	return &fakeCommander{
		base:    base{name: name},
		runner:  sdk.NewAsyncCommand(),
		release: make(chan struct{}),
	}
}

func (c *fakeCommander) CommandList() []string {
	return []string{"echo", "sleep", "explode"}
}

func (c *fakeCommander) Command(name string, params []string) error {
	switch name {
	case "echo":
		c.runner.Finish(strings.Join(params, " "))
		c.Clear()
		return nil
	case "sleep":
		return c.runner.Start(func(ctx context.Context, report func(int)) (string, error) {
			report(10)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-c.release:
				report(90)
				return "slept", nil
			}
		}, func(_ string, err error) {
			_ = c.Record(err)
		})
	default:
		return c.Recordf("unknown command %q", name)
	}
}

func (c *fakeCommander) CommandProgress() int       { return c.runner.Progress() }
func (c *fakeCommander) CommandReturnValue() string { return c.runner.Result() }
func (c *fakeCommander) Cancel()                    { c.runner.Cancel() }

// fakeConfigurable stores config lines in memory keyed by path.
type fakeConfigurable struct {
	base
	loaded  string
	failAll bool
}

func (c *fakeConfigurable) LoadConfig(path string) error {
	if c.failAll {
		return c.Recordf("cannot load %s", path)
	}
	c.loaded = path
	c.Clear()
	return nil
}

func (c *fakeConfigurable) SaveConfig(path string) error {
	if c.failAll {
		return c.Recordf("cannot save %s", path)
	}
	c.Clear()
	return nil
}

func (c *fakeConfigurable) InfoConfig() []string {
	if c.loaded == "" {
		return nil
	}
	return []string{"config: " + c.loaded}
}

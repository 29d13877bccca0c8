// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LogLens Contributors

package lua

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	plugins "github.com/loglens/loglens/internal/plugin"
	sdk "github.com/loglens/loglens/pkg/plugin"
)

// Host loads Lua-scripted decoder plugins and wraps each one as a plugin
// the dispatcher can register. A script must define:
//
//	is_msg(payload, triggered) -> bool
//	decode_msg(payload, triggered) -> string | nil, err
//
// and may define, to gain the configuration capability:
//
//	load_config(contents) -> true | nil, err
//	save_config() -> string
//	info_config() -> { string, ... }
//
// Scripts never touch the filesystem; the host reads and writes config
// files and hands the contents across as strings.
type Host struct {
	factory *StateFactory
	plugins map[string]*Decoder
	mu      sync.RWMutex
	closed  bool
}

// NewHost creates a Lua plugin host.
func NewHost() *Host {
	return &Host{
		factory: NewStateFactory(),
		plugins: make(map[string]*Decoder),
	}
}

// Load reads the entry script named by the manifest, executes it in a
// fresh sandboxed state, and returns the wrapped plugin. The returned
// value implements the configuration capability only when the script
// defines load_config.
func (h *Host) Load(ctx context.Context, manifest *plugins.Manifest, dir string) (sdk.Plugin, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	errb := oops.In("lua").With("plugin", manifest.Name).With("operation", "load")

	if h.closed {
		return nil, errb.New("host is closed")
	}
	if manifest.LuaDecoder == nil {
		return nil, errb.New("manifest has no lua-decoder section")
	}
	if _, ok := h.plugins[manifest.Name]; ok {
		return nil, errb.New("plugin already loaded")
	}

	entryPath := filepath.Join(dir, manifest.LuaDecoder.Entry)
	code, err := os.ReadFile(filepath.Clean(entryPath))
	if err != nil {
		return nil, errb.With("path", entryPath).Hint("failed to read entry file").Wrap(err)
	}

	L, err := h.factory.NewState(ctx)
	if err != nil {
		return nil, errb.Hint("failed to create state").Wrap(err)
	}
	L.SetContext(ctx)

	if err := L.DoString(string(code)); err != nil {
		L.Close()
		return nil, errb.With("entry", manifest.LuaDecoder.Entry).Hint("script error").Wrap(err)
	}

	for _, fn := range []string{"is_msg", "decode_msg"} {
		if L.GetGlobal(fn).Type() != lua.LTFunction {
			L.Close()
			return nil, errb.With("entry", manifest.LuaDecoder.Entry).New("script does not define " + fn)
		}
	}

	d := &Decoder{
		manifest: manifest,
		state:    L,
	}
	h.plugins[manifest.Name] = d

	if L.GetGlobal("load_config").Type() == lua.LTFunction {
		return &configurableDecoder{Decoder: d}, nil
	}
	return d, nil
}

// Unload removes a plugin and closes its state.
func (h *Host) Unload(_ context.Context, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	d, ok := h.plugins[name]
	if !ok {
		return oops.In("lua").With("plugin", name).With("operation", "unload").New("plugin not loaded")
	}
	d.close()
	delete(h.plugins, name)
	return nil
}

// Plugins returns names of loaded plugins.
func (h *Host) Plugins() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.plugins))
	for name := range h.plugins {
		names = append(names, name)
	}
	return names
}

// Close shuts down the host and all loaded states.
func (h *Host) Close(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, d := range h.plugins {
		d.close()
	}
	h.closed = true
	h.plugins = nil
	return nil
}

// Decoder adapts one Lua script to the decoder plugin contract. All calls
// into the shared state are serialized; gopher-lua states are not safe
// for concurrent use.
type Decoder struct {
	sdk.Diag

	manifest *plugins.Manifest
	mu       sync.Mutex
	state    *lua.LState
}

var _ sdk.Decoder = (*Decoder)(nil)

func (d *Decoder) Name() string        { return d.manifest.Name }
func (d *Decoder) Description() string { return d.manifest.Description }
func (d *Decoder) PluginVersion() string {
	return d.manifest.Version
}
func (d *Decoder) PluginInterfaceVersion() string {
	return d.manifest.InterfaceVersion
}

// IsMsg asks the script whether it claims the message. Script failures
// are treated as "not mine" so one broken predicate cannot stall a bulk
// pass over a large log.
func (d *Decoder) IsMsg(msg *sdk.Message, triggeredByUser bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	ret, err := d.call("is_msg", 1, lua.LString(msg.Payload()), lua.LBool(triggeredByUser))
	if err != nil {
		slog.Debug("is_msg failed", "plugin", d.manifest.Name, "index", msg.Index(), "error", err)
		return false
	}
	return lua.LVAsBool(ret[0])
}

// DecodeMsg runs the script's decode_msg and stores the returned text as
// the decoded content.
func (d *Decoder) DecodeMsg(msg *sdk.Message, triggeredByUser bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	errb := oops.In("lua").With("plugin", d.manifest.Name).With("index", msg.Index())

	ret, err := d.call("decode_msg", 2, lua.LString(msg.Payload()), lua.LBool(triggeredByUser))
	if err != nil {
		return d.Record(errb.Wrap(err))
	}
	if ret[0].Type() == lua.LTNil {
		return d.Record(errb.New(lua.LVAsString(ret[1])))
	}

	msg.SetDecoded(lua.LVAsString(ret[0]))
	d.Clear()
	return nil
}

// call invokes a script global with nret return values. The caller holds
// d.mu.
func (d *Decoder) call(fn string, nret int, args ...lua.LValue) ([]lua.LValue, error) {
	if d.state == nil {
		return nil, oops.In("lua").With("plugin", d.manifest.Name).New("state is closed")
	}

	if err := d.state.CallByParam(lua.P{
		Fn:      d.state.GetGlobal(fn),
		NRet:    nret,
		Protect: true,
	}, args...); err != nil {
		return nil, err
	}

	ret := make([]lua.LValue, nret)
	for i := nret - 1; i >= 0; i-- {
		ret[i] = d.state.Get(-1)
		d.state.Pop(1)
	}
	return ret, nil
}

func (d *Decoder) close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != nil {
		d.state.Close()
		d.state = nil
	}
}

// configurableDecoder adds the configuration capability for scripts that
// define load_config.
type configurableDecoder struct {
	*Decoder
}

var _ sdk.Configurable = (*configurableDecoder)(nil)

// LoadConfig reads path on the host side and hands the contents to the
// script's load_config.
func (d *configurableDecoder) LoadConfig(path string) error {
	errb := oops.In("lua").With("plugin", d.manifest.Name).With("path", path)

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return d.Record(errb.Hint("failed to read config").Wrap(err))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ret, err := d.call("load_config", 2, lua.LString(contents))
	if err != nil {
		return d.Record(errb.Wrap(err))
	}
	if !lua.LVAsBool(ret[0]) {
		return d.Record(errb.New(lua.LVAsString(ret[1])))
	}
	d.Clear()
	return nil
}

// SaveConfig asks the script to serialize its configuration and writes
// the result to path.
func (d *configurableDecoder) SaveConfig(path string) error {
	errb := oops.In("lua").With("plugin", d.manifest.Name).With("path", path)

	d.mu.Lock()
	if d.state == nil || d.state.GetGlobal("save_config").Type() != lua.LTFunction {
		d.mu.Unlock()
		return d.Record(errb.New("script does not define save_config"))
	}
	ret, err := d.call("save_config", 1)
	d.mu.Unlock()
	if err != nil {
		return d.Record(errb.Wrap(err))
	}

	if err := os.WriteFile(path, []byte(lua.LVAsString(ret[0])), 0o600); err != nil {
		return d.Record(errb.Hint("failed to write config").Wrap(err))
	}
	d.Clear()
	return nil
}

// InfoConfig returns the script's info_config lines, or nothing if the
// script does not define it.
func (d *configurableDecoder) InfoConfig() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == nil || d.state.GetGlobal("info_config").Type() != lua.LTFunction {
		return nil
	}

	ret, err := d.call("info_config", 1)
	if err != nil {
		slog.Debug("info_config failed", "plugin", d.manifest.Name, "error", err)
		return nil
	}

	table, ok := ret[0].(*lua.LTable)
	if !ok {
		return nil
	}

	var lines []string
	table.ForEach(func(_, v lua.LValue) {
		lines = append(lines, lua.LVAsString(v))
	})
	return lines
}

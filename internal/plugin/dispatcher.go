// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LogLens Contributors

package plugin

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"

	"github.com/loglens/loglens/internal/observability"
	"github.com/loglens/loglens/internal/plugin/capability"
	sdk "github.com/loglens/loglens/pkg/plugin"
)

// Routing actions checked against a plugin's grants before delivery.
const (
	actionDecode      = "decode.msg"
	actionViewStream  = "view.stream"
	actionViewSelect  = "view.select"
	actionControlMsg  = "control.msg"
	actionControlConn = "control.connections"
	actionControlStat = "control.state"
	actionCommand     = "command." // + command name
)

// entry holds one registered plugin and its capability handles. A nil
// handle means the plugin does not implement that capability; calls are
// routed only to present capabilities.
type entry struct {
	plugin sdk.Plugin

	configurable sdk.Configurable
	decoder      sdk.Decoder
	viewer       sdk.Viewer
	controller   sdk.Controller
	commander    sdk.Commander

	view sdk.View

	// Capabilities whose initialization failed are inert for the rest of
	// the session; the host never retries them.
	viewerInert     bool
	controllerInert bool

	// Command protocol bookkeeping.
	cmdActive  bool
	cmdName    string
	resultRead bool

	// Snapshot of the plugin's most recent failure, for listings.
	lastFailure string
}

func (e *entry) capabilities() []string {
	var caps []string
	if e.configurable != nil {
		caps = append(caps, "configurable")
	}
	if e.decoder != nil {
		caps = append(caps, "decoder")
	}
	if e.viewer != nil {
		caps = append(caps, "viewer")
	}
	if e.controller != nil {
		caps = append(caps, "controller")
	}
	if e.commander != nil {
		caps = append(caps, "commander")
	}
	return caps
}

// Dispatcher is the reference in-process host side of the plugin
// contract. It enforces the ordering rules a host must honor: serialized
// lifecycle delivery per epoch, single in-flight command per plugin, and
// a control channel bound at most once.
//
// All lifecycle delivery happens under one mutex, which gives plugins the
// serialization guarantee the contract promises them.
type Dispatcher struct {
	hostVersion *semver.Version
	grants      *capability.Grants
	metrics     *observability.Metrics

	mu      sync.Mutex
	entries map[string]*entry
	order   []string

	// Viewer lifecycle state for the current epoch (see lifecycle.go).
	phase   phase
	epoch   string
	source  sdk.Source
	lastIdx map[pass]int

	// Control channel state (see control.go).
	control     sdk.Control
	connections []string
}

// Option configures the Dispatcher.
type Option func(*Dispatcher)

// WithMetrics attaches prometheus metrics to the dispatcher.
func WithMetrics(m *observability.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// NewDispatcher creates a dispatcher for the published contract version.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		hostVersion: semver.MustParse(sdk.InterfaceVersion),
		grants:      capability.NewGrants(),
		entries:     make(map[string]*entry),
		phase:       phaseClosed,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RegisterOption configures one registration.
type RegisterOption func(*registerOpts)

type registerOpts struct {
	grants []string
}

// WithGrants restricts the routing actions delivered to the plugin. The
// default is capability.AllowAll.
func WithGrants(patterns []string) RegisterOption {
	return func(o *registerOpts) {
		cp := make([]string, len(patterns))
		copy(cp, patterns)
		o.grants = cp
	}
}

// WithManifest applies a parsed manifest's capability grants.
func WithManifest(m *Manifest) RegisterOption {
	return func(o *registerOpts) {
		if len(m.Capabilities) > 0 {
			cp := make([]string, len(m.Capabilities))
			copy(cp, m.Capabilities)
			o.grants = cp
		}
	}
}

// Register activates a plugin. It validates the interface version,
// detects the implemented capability subset (at least one capability
// beyond identity is required), installs grants, and for viewers calls
// InitViewer once. A viewer whose InitViewer fails stays registered but
// inert for the viewer capability.
//
// If the control channel is already bound, a newly registered controller
// is bound immediately and receives the current connection list.
func (d *Dispatcher) Register(p sdk.Plugin, opts ...RegisterOption) error {
	ro := registerOpts{grants: capability.AllowAll}
	for _, opt := range opts {
		opt(&ro)
	}

	name := p.Name()
	if name == "" {
		return oops.In("dispatcher").New("plugin name is empty")
	}

	if err := d.checkInterfaceVersion(name, p.PluginInterfaceVersion()); err != nil {
		return err
	}

	e := &entry{plugin: p}
	e.configurable, _ = p.(sdk.Configurable)
	e.decoder, _ = p.(sdk.Decoder)
	e.viewer, _ = p.(sdk.Viewer)
	e.controller, _ = p.(sdk.Controller)
	e.commander, _ = p.(sdk.Commander)

	if len(e.capabilities()) == 0 {
		return oops.In("dispatcher").With("plugin", name).New("plugin implements no capability")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.entries[name]; exists {
		return oops.In("dispatcher").With("plugin", name).New("plugin already registered")
	}

	if err := d.grants.Set(name, ro.grants); err != nil {
		return oops.In("dispatcher").With("plugin", name).Hint("invalid grant patterns").Wrap(err)
	}

	if e.viewer != nil {
		view, err := e.viewer.InitViewer()
		if err != nil || view == nil {
			// Fatal initialization failure: the capability is disabled
			// for the session, never retried.
			e.viewerInert = true
			e.lastFailure = p.LastError()
			slog.Warn("viewer initialization failed, capability disabled",
				"plugin", name,
				"error", err)
		} else {
			e.view = view
			d.catchUpViewer(name, e)
		}
	}

	if e.controller != nil && d.control != nil {
		d.bindController(name, e)
		if !e.controllerInert && len(d.connections) > 0 {
			d.deliverConnections(name, e)
		}
	}

	d.entries[name] = e
	d.order = append(d.order, name)

	slog.Info("registered plugin",
		"plugin", name,
		"version", p.PluginVersion(),
		"capabilities", e.capabilities())

	return nil
}

// catchUpViewer brings a viewer registered mid-epoch into the delivery
// order the contract promises: the epoch opener arrives before any
// streamed message, followed by the phase markers the rest of the fanout
// already saw. The viewer reads the backlog from the source handle
// itself. Callers hold d.mu.
func (d *Dispatcher) catchUpViewer(name string, e *entry) {
	if d.phase == phaseClosed || d.source == nil || !d.grants.Allows(name, actionViewStream) {
		return
	}

	e.viewer.InitFileStart(d.source)
	if d.phase == phaseOpening {
		return
	}
	e.viewer.InitFileFinish()
	if d.phase == phaseUpdating {
		e.viewer.UpdateFileStart()
	}
}

// checkInterfaceVersion rejects plugins built against an incompatible
// contract: a different major version, or a minor version newer than the
// host's.
func (d *Dispatcher) checkInterfaceVersion(name, version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return oops.In("dispatcher").With("plugin", name).With("interface_version", version).Hint("not a semantic version").Wrap(err)
	}
	if v.Major() != d.hostVersion.Major() || v.Minor() > d.hostVersion.Minor() {
		return oops.In("dispatcher").
			With("plugin", name).
			With("plugin_interface_version", version).
			With("host_interface_version", d.hostVersion.String()).
			New("incompatible plugin interface version")
	}
	return nil
}

// Info describes one registered plugin for listings.
type Info struct {
	Name             string
	Description      string
	Version          string
	InterfaceVersion string
	Capabilities     []string
	LastError        string
}

// Plugins returns descriptions of all registered plugins, sorted by name.
func (d *Dispatcher) Plugins() []Info {
	d.mu.Lock()
	defer d.mu.Unlock()

	infos := make([]Info, 0, len(d.entries))
	for name, e := range d.entries {
		last := e.plugin.LastError()
		if last == "" {
			last = e.lastFailure
		}
		infos = append(infos, Info{
			Name:             name,
			Description:      e.plugin.Description(),
			Version:          e.plugin.PluginVersion(),
			InterfaceVersion: e.plugin.PluginInterfaceVersion(),
			Capabilities:     e.capabilities(),
			LastError:        last,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// LastError returns the pull-based diagnostic state of one plugin.
func (d *Dispatcher) LastError(name string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[name]
	if !ok {
		return "", oops.In("dispatcher").With("plugin", name).New("plugin not registered")
	}
	return e.plugin.LastError(), nil
}

// View returns the embedded view handle of a viewer plugin, if present
// and live.
func (d *Dispatcher) View(name string) (sdk.View, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[name]
	if !ok || e.view == nil || e.viewerInert {
		return nil, false
	}
	return e.view, true
}

// LoadConfig forwards a configuration load to a configurable plugin.
func (d *Dispatcher) LoadConfig(name, path string) error {
	e, err := d.configurable(name)
	if err != nil {
		return err
	}
	if err := e.configurable.LoadConfig(path); err != nil {
		d.recordFailure(name, err)
		return oops.In("dispatcher").With("plugin", name).With("path", path).Wrap(err)
	}
	return nil
}

// SaveConfig forwards a configuration save to a configurable plugin.
func (d *Dispatcher) SaveConfig(name, path string) error {
	e, err := d.configurable(name)
	if err != nil {
		return err
	}
	if err := e.configurable.SaveConfig(path); err != nil {
		d.recordFailure(name, err)
		return oops.In("dispatcher").With("plugin", name).With("path", path).Wrap(err)
	}
	return nil
}

// InfoConfig returns the plugin's configuration description lines. It
// never fails for a registered configurable plugin.
func (d *Dispatcher) InfoConfig(name string) ([]string, error) {
	e, err := d.configurable(name)
	if err != nil {
		return nil, err
	}
	return e.configurable.InfoConfig(), nil
}

func (d *Dispatcher) configurable(name string) (*entry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[name]
	if !ok {
		return nil, oops.In("dispatcher").With("plugin", name).New("plugin not registered")
	}
	if e.configurable == nil {
		return nil, oops.In("dispatcher").With("plugin", name).New("plugin is not configurable")
	}
	return e, nil
}

// recordFailure snapshots a plugin failure for listings and metrics.
func (d *Dispatcher) recordFailure(name string, err error) {
	d.mu.Lock()
	if e, ok := d.entries[name]; ok {
		e.lastFailure = err.Error()
	}
	d.mu.Unlock()
}

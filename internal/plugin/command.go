// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LogLens Contributors

package plugin

import (
	"context"
	"time"

	"github.com/samber/oops"

	sdk "github.com/loglens/loglens/pkg/plugin"
)

// Commands enumerates the supported command names of every commander
// plugin, keyed by plugin name.
func (d *Dispatcher) Commands() map[string][]string {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string][]string)
	for name, e := range d.entries {
		if e.commander == nil {
			continue
		}
		out[name] = e.commander.CommandList()
	}
	return out
}

// ExecCommand dispatches one command invocation to a plugin. A nil return
// means "accepted for execution" for asynchronous commands and "completed"
// for synchronous ones; either way the host observes completion through
// CommandProgress reaching sdk.CommandDone.
//
// Only one invocation may be in flight per plugin instance: ExecCommand
// returns sdk.ErrCommandInFlight while the prior invocation's progress is
// below sdk.CommandDone.
func (d *Dispatcher) ExecCommand(name, command string, params []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[name]
	if !ok {
		return oops.In("dispatcher").With("plugin", name).New("plugin not registered")
	}
	if e.commander == nil {
		return oops.In("dispatcher").With("plugin", name).New("plugin is not a commander")
	}
	if !d.grants.Allows(name, actionCommand+command) {
		return oops.In("dispatcher").With("plugin", name).With("command", command).New("command not granted")
	}
	if e.cmdActive && e.commander.CommandProgress() < sdk.CommandDone {
		return oops.In("dispatcher").With("plugin", name).With("command", e.cmdName).Wrap(sdk.ErrCommandInFlight)
	}

	if err := e.commander.Command(command, params); err != nil {
		e.lastFailure = err.Error()
		if d.metrics != nil {
			d.metrics.CommandsTotal.WithLabelValues(name, "rejected").Inc()
		}
		return oops.In("dispatcher").With("plugin", name).With("command", command).Wrap(err)
	}

	e.cmdActive = true
	e.cmdName = command
	e.resultRead = false
	if d.metrics != nil {
		d.metrics.CommandsTotal.WithLabelValues(name, "accepted").Inc()
	}
	return nil
}

// CommandProgress snapshots the execution progress of a plugin's current
// or most recent command.
func (d *Dispatcher) CommandProgress(name string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[name]
	if !ok {
		return 0, oops.In("dispatcher").With("plugin", name).New("plugin not registered")
	}
	if e.commander == nil {
		return 0, oops.In("dispatcher").With("plugin", name).New("plugin is not a commander")
	}
	return e.commander.CommandProgress(), nil
}

// CommandResult retrieves the return value of a completed command. It is
// only valid after CommandProgress reports at least sdk.CommandDone, and
// only once per invocation.
func (d *Dispatcher) CommandResult(name string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[name]
	if !ok {
		return "", oops.In("dispatcher").With("plugin", name).New("plugin not registered")
	}
	if e.commander == nil {
		return "", oops.In("dispatcher").With("plugin", name).New("plugin is not a commander")
	}
	if !e.cmdActive {
		return "", oops.In("dispatcher").With("plugin", name).New("no command was executed")
	}
	if e.commander.CommandProgress() < sdk.CommandDone {
		return "", oops.In("dispatcher").With("plugin", name).With("command", e.cmdName).New("command still in flight")
	}
	if e.resultRead {
		return "", oops.In("dispatcher").With("plugin", name).With("command", e.cmdName).New("command result already retrieved")
	}

	e.resultRead = true
	e.cmdActive = false
	return e.commander.CommandReturnValue(), nil
}

// CancelCommand forwards a best-effort abort request; the plugin must
// still drive progress past sdk.CommandDone.
func (d *Dispatcher) CancelCommand(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[name]
	if !ok {
		return oops.In("dispatcher").With("plugin", name).New("plugin not registered")
	}
	if e.commander == nil {
		return oops.In("dispatcher").With("plugin", name).New("plugin is not a commander")
	}
	e.commander.Cancel()
	return nil
}

// WaitCommand polls a plugin's command progress on the given interval
// until it reaches sdk.CommandDone, then retrieves the result. ctx bounds
// the wait; on expiry the command is cancelled before returning.
func (d *Dispatcher) WaitCommand(ctx context.Context, name string, interval time.Duration) (string, error) {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		progress, err := d.CommandProgress(name)
		if err != nil {
			return "", err
		}
		if progress >= sdk.CommandDone {
			return d.CommandResult(name)
		}

		select {
		case <-ctx.Done():
			_ = d.CancelCommand(name)
			return "", oops.In("dispatcher").With("plugin", name).Wrap(ctx.Err())
		case <-ticker.C:
		}
	}
}

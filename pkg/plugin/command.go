// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LogLens Contributors

package plugin

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// CommandDone is the progress threshold meaning "execution complete,
// result available". Progress values are in [0, CommandDone) while a
// command runs.
const CommandDone = 100

// ErrCommandInFlight is returned when a command is started while a prior
// invocation has not yet reached CommandDone.
var ErrCommandInFlight = errors.New("plugin: command already in flight")

// Commander is implemented by plugins that expose host-invokable commands.
//
// Two execution modes share the interface. A synchronous command runs to
// completion inside Command, after which CommandProgress reports at least
// CommandDone. An asynchronous command starts background work and returns
// promptly; a nil return only means "accepted for execution". The host
// then polls CommandProgress on its own schedule until it reads at least
// CommandDone and retrieves the result with CommandReturnValue exactly
// once.
//
// Only one invocation may be in flight per plugin instance; the host does
// not issue a second Command before the prior one reaches CommandDone.
// CommandProgress and Cancel may be called concurrently with the command's
// own background work, so implementations keep progress and result state
// visible under their chosen concurrency discipline (AsyncCommand does
// this for them).
type Commander interface {
	Plugin

	// CommandList enumerates supported command names for UI discovery.
	// It is pure and side-effect free.
	CommandList() []string

	// Command dispatches one invocation.
	Command(name string, params []string) error

	// CommandProgress snapshots execution progress.
	CommandProgress() int

	// CommandReturnValue retrieves the result of the completed command.
	CommandReturnValue() string

	// Cancel requests best-effort cooperative abort of the in-flight
	// command. It must not block, and progress must still eventually
	// reach CommandDone so the host is not left polling.
	Cancel()
}

// CommandFunc is the body of an asynchronous command. It reports progress
// in [0, CommandDone) through report and honors ctx for cancellation.
type CommandFunc func(ctx context.Context, report func(pct int)) (string, error)

// AsyncCommand implements the execution half of Commander for plugin
// authors: an atomic progress snapshot, a once-written result slot, and
// context-based cooperative cancellation.
//
// Progress and result reads are safe concurrently with the running
// command body. Create instances with NewAsyncCommand.
type AsyncCommand struct {
	progress atomic.Int32
	inFlight atomic.Bool

	mu     sync.Mutex
	result string
	err    error
	cancel context.CancelFunc
}

// NewAsyncCommand returns a runner with no command in flight. Progress
// starts at CommandDone so a host polling before any invocation does not
// hang.
func NewAsyncCommand() *AsyncCommand {
	c := &AsyncCommand{}
	c.progress.Store(CommandDone)
	return c
}

// Finish completes a synchronous command: the result is stored and
// progress jumps to CommandDone immediately.
func (c *AsyncCommand) Finish(result string) {
	c.mu.Lock()
	c.result = result
	c.err = nil
	c.cancel = nil
	c.mu.Unlock()
	c.progress.Store(CommandDone)
	c.inFlight.Store(false)
}

// Fail completes a command with an error and an empty result.
func (c *AsyncCommand) Fail(err error) {
	c.mu.Lock()
	c.result = ""
	c.err = err
	c.cancel = nil
	c.mu.Unlock()
	c.progress.Store(CommandDone)
	c.inFlight.Store(false)
}

// Start launches fn in the background and returns promptly. It returns
// ErrCommandInFlight if a prior invocation has not reached CommandDone.
// done, if non-nil, is called after the result is stored; plugins use it
// to record failures in their Diag.
func (c *AsyncCommand) Start(fn CommandFunc, done func(result string, err error)) error {
	if !c.inFlight.CompareAndSwap(false, true) {
		return ErrCommandInFlight
	}
	c.progress.Store(0)

	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.result = ""
	c.err = nil
	c.cancel = cancel
	c.mu.Unlock()

	go func() {
		defer cancel()
		result, err := fn(ctx, c.report)

		c.mu.Lock()
		c.result = result
		c.err = err
		c.cancel = nil
		c.mu.Unlock()

		// Progress must cross CommandDone even on error or cancellation,
		// or the host polls forever.
		c.progress.Store(CommandDone)
		c.inFlight.Store(false)

		if done != nil {
			done(result, err)
		}
	}()
	return nil
}

// report clamps pct to [0, CommandDone) and keeps progress non-decreasing.
func (c *AsyncCommand) report(pct int) {
	if pct < 0 {
		pct = 0
	}
	if pct >= CommandDone {
		pct = CommandDone - 1
	}
	for {
		cur := c.progress.Load()
		if int32(pct) <= cur {
			return
		}
		if c.progress.CompareAndSwap(cur, int32(pct)) {
			return
		}
	}
}

// Progress snapshots current progress. Values of CommandDone or more mean
// the result is available.
func (c *AsyncCommand) Progress() int {
	return int(c.progress.Load())
}

// InFlight reports whether a command is currently executing.
func (c *AsyncCommand) InFlight() bool {
	return c.inFlight.Load()
}

// Result returns the stored result of the last completed command.
func (c *AsyncCommand) Result() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// Err returns the error of the last completed command, if any.
func (c *AsyncCommand) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Cancel requests cooperative abort of the in-flight command. It never
// blocks; with nothing in flight it is a no-op.
func (c *AsyncCommand) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

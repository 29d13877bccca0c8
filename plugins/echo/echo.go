// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LogLens Contributors

// Package echo is a commander plugin used to exercise the command
// protocol end to end: "echo" completes synchronously, "slow-task" runs
// in the background and reports progress, "fail" always errors.
package echo

import (
	"context"
	"strconv"
	"strings"
	"time"

	sdk "github.com/loglens/loglens/pkg/plugin"
)

const (
	version = "1.0.0"

	// slowTaskSteps is the number of progress increments slow-task makes.
	slowTaskSteps = 10
)

// Plugin implements the commander capability.
type Plugin struct {
	sdk.Diag
	runner *sdk.AsyncCommand

	// stepDelay is the pause between slow-task steps, shortened in tests.
	stepDelay time.Duration
}

var _ sdk.Commander = (*Plugin)(nil)

// Option configures the plugin.
type Option func(*Plugin)

// WithStepDelay overrides the pause between slow-task steps.
func WithStepDelay(d time.Duration) Option {
	return func(p *Plugin) {
		p.stepDelay = d
	}
}

// New creates the echo plugin.
func New(opts ...Option) *Plugin {
	p := &Plugin{
		runner:    sdk.NewAsyncCommand(),
		stepDelay: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Plugin) Name() string                   { return "echo" }
func (p *Plugin) Description() string            { return "echoes parameters and runs demo background work" }
func (p *Plugin) PluginVersion() string          { return version }
func (p *Plugin) PluginInterfaceVersion() string { return sdk.InterfaceVersion }

// CommandList implements sdk.Commander.
func (p *Plugin) CommandList() []string {
	return []string{"echo", "slow-task", "fail"}
}

// Command implements sdk.Commander. echo completes before returning;
// slow-task returns once the work is accepted.
func (p *Plugin) Command(name string, params []string) error {
	switch name {
	case "echo":
		p.runner.Finish(strings.Join(params, " "))
		p.Clear()
		return nil

	case "slow-task":
		steps := slowTaskSteps
		if len(params) > 0 {
			n, err := strconv.Atoi(params[0])
			if err != nil || n <= 0 {
				return p.Recordf("slow-task: invalid step count %q", params[0])
			}
			steps = n
		}
		err := p.runner.Start(func(ctx context.Context, report func(int)) (string, error) {
			for i := 0; i < steps; i++ {
				select {
				case <-ctx.Done():
					return "", ctx.Err()
				case <-time.After(p.stepDelay):
				}
				report((i + 1) * sdk.CommandDone / steps)
			}
			return "completed " + strconv.Itoa(steps) + " steps", nil
		}, func(_ string, err error) {
			_ = p.Record(err)
		})
		if err != nil {
			return p.Record(err)
		}
		p.Clear()
		return nil

	case "fail":
		return p.Recordf("fail: intentional error")

	default:
		return p.Recordf("unknown command %q", name)
	}
}

// CommandProgress implements sdk.Commander.
func (p *Plugin) CommandProgress() int { return p.runner.Progress() }

// CommandReturnValue implements sdk.Commander.
func (p *Plugin) CommandReturnValue() string { return p.runner.Result() }

// Cancel implements sdk.Commander.
func (p *Plugin) Cancel() { p.runner.Cancel() }

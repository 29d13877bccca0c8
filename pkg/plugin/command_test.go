// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LogLens Contributors

package plugin_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/loglens/loglens/pkg/plugin"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// waitDone polls progress until it crosses CommandDone, failing the test
// if that takes unreasonably long.
func waitDone(t *testing.T, c *plugin.AsyncCommand) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for c.Progress() < plugin.CommandDone {
		require.True(t, time.Now().Before(deadline), "command never completed")
		time.Sleep(time.Millisecond)
	}
}

func TestAsyncCommand_SynchronousFinish(t *testing.T) {
	c := plugin.NewAsyncCommand()
	c.Finish("hello")

	assert.GreaterOrEqual(t, c.Progress(), plugin.CommandDone)
	assert.Equal(t, "hello", c.Result())
	assert.NoError(t, c.Err())
}

func TestAsyncCommand_StartReportsProgress(t *testing.T) {
	c := plugin.NewAsyncCommand()
	started := make(chan struct{})
	release := make(chan struct{})

	err := c.Start(func(_ context.Context, report func(int)) (string, error) {
		report(10)
		report(60)
		close(started)
		<-release
		return "done", nil
	}, nil)
	require.NoError(t, err)

	<-started
	// Progress is non-decreasing and stays below CommandDone while running.
	p := c.Progress()
	assert.GreaterOrEqual(t, p, 10)
	assert.Less(t, p, plugin.CommandDone)

	close(release)
	waitDone(t, c)
	assert.Equal(t, "done", c.Result())
}

func TestAsyncCommand_SecondStartRejectedWhileInFlight(t *testing.T) {
	c := plugin.NewAsyncCommand()
	release := make(chan struct{})

	require.NoError(t, c.Start(func(context.Context, func(int)) (string, error) {
		<-release
		return "", nil
	}, nil))

	err := c.Start(func(context.Context, func(int)) (string, error) {
		return "", nil
	}, nil)
	assert.ErrorIs(t, err, plugin.ErrCommandInFlight)

	close(release)
	waitDone(t, c)

	// After completion a new invocation is accepted again.
	require.NoError(t, c.Start(func(context.Context, func(int)) (string, error) {
		return "second", nil
	}, nil))
	waitDone(t, c)
	assert.Equal(t, "second", c.Result())
}

func TestAsyncCommand_CancelCompletesPromptly(t *testing.T) {
	c := plugin.NewAsyncCommand()

	require.NoError(t, c.Start(func(ctx context.Context, report func(int)) (string, error) {
		report(5)
		<-ctx.Done()
		return "", ctx.Err()
	}, nil))

	c.Cancel()
	waitDone(t, c)

	assert.ErrorIs(t, c.Err(), context.Canceled)
	assert.Empty(t, c.Result())
}

func TestAsyncCommand_DoneCallbackSeesResult(t *testing.T) {
	c := plugin.NewAsyncCommand()
	got := make(chan string, 1)

	require.NoError(t, c.Start(func(context.Context, func(int)) (string, error) {
		return "payload", nil
	}, func(result string, err error) {
		require.NoError(t, err)
		got <- result
	}))

	select {
	case r := <-got:
		assert.Equal(t, "payload", r)
	case <-time.After(5 * time.Second):
		t.Fatal("done callback never fired")
	}
	waitDone(t, c)
}

func TestAsyncCommand_ReportClampsAndNeverDecreases(t *testing.T) {
	c := plugin.NewAsyncCommand()
	release := make(chan struct{})
	reported := make(chan struct{})

	require.NoError(t, c.Start(func(_ context.Context, report func(int)) (string, error) {
		report(250) // clamps to CommandDone-1
		report(10)  // ignored, lower than current
		close(reported)
		<-release
		return "", nil
	}, nil))

	<-reported
	assert.Equal(t, plugin.CommandDone-1, c.Progress())

	close(release)
	waitDone(t, c)
}

func TestAsyncCommand_CancelWithNothingInFlight(t *testing.T) {
	c := plugin.NewAsyncCommand()
	c.Cancel() // no-op, must not panic or block
	assert.GreaterOrEqual(t, c.Progress(), plugin.CommandDone)
}

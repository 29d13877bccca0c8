// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LogLens Contributors

package plugin_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loglens/loglens/internal/plugin"
	sdk "github.com/loglens/loglens/pkg/plugin"
)

func TestBindControlDeliversChannel(t *testing.T) {
	d := plugin.NewDispatcher()
	c := &fakeController{base: base{name: "mon"}}
	require.NoError(t, d.Register(c))

	require.NoError(t, d.BindControl(plugin.LogControl{}))
	assert.NotNil(t, c.ctrl)
}

func TestBindControlOnlyOnce(t *testing.T) {
	d := plugin.NewDispatcher()

	require.NoError(t, d.BindControl(plugin.LogControl{}))
	assert.ErrorContains(t, d.BindControl(plugin.LogControl{}), "already bound")
	assert.ErrorContains(t, d.BindControl(nil), "nil")
}

func TestLateRegisteredControllerIsBound(t *testing.T) {
	d := plugin.NewDispatcher()
	require.NoError(t, d.BindControl(plugin.LogControl{}))
	d.SetConnections([]string{"ecu1", "ecu2"})

	c := &fakeController{base: base{name: "late"}}
	require.NoError(t, d.Register(c))

	assert.NotNil(t, c.ctrl)
	assert.Equal(t, []string{"ecu1", "ecu2"}, c.connections())
}

func TestControllerInitFailureMakesCapabilityInert(t *testing.T) {
	d := plugin.NewDispatcher()
	c := &fakeController{base: base{name: "mon"}, initErr: errors.New("refused")}
	require.NoError(t, d.Register(c))
	require.NoError(t, d.BindControl(plugin.LogControl{}))

	d.SetConnections([]string{"ecu1"})
	assert.Empty(t, c.connections())

	require.NoError(t, d.StateChanged(0, sdk.StateConnected))
	assert.Empty(t, c.states)
}

func TestSetConnectionsDeliversFullList(t *testing.T) {
	d := plugin.NewDispatcher()
	c := &fakeController{base: base{name: "mon"}}
	require.NoError(t, d.Register(c))
	require.NoError(t, d.BindControl(plugin.LogControl{}))

	d.SetConnections([]string{"ecu1", "ecu2"})
	assert.Equal(t, []string{"ecu1", "ecu2"}, c.connections())

	// The list is always the full current set, never a delta.
	d.SetConnections([]string{"ecu2"})
	assert.Equal(t, []string{"ecu2"}, c.connections())

	d.SetConnections(nil)
	assert.Empty(t, c.connections())
}

func TestControlMsgBoundsChecked(t *testing.T) {
	d := plugin.NewDispatcher()
	c := &fakeController{base: base{name: "mon"}}
	require.NoError(t, d.Register(c))
	require.NoError(t, d.BindControl(plugin.LogControl{}))
	d.SetConnections([]string{"ecu1"})

	msg := sdk.NewMessage(0, time.Now(), []byte("resp"))

	require.NoError(t, d.ControlMsg(0, msg))
	assert.Equal(t, []int{0}, c.msgs)

	assert.Error(t, d.ControlMsg(1, msg))
	assert.Error(t, d.ControlMsg(-1, msg))
	assert.Error(t, d.StateChanged(1, sdk.StateConnected))
}

func TestStateChangedDeliversRepeats(t *testing.T) {
	d := plugin.NewDispatcher()
	c := &fakeController{base: base{name: "mon"}}
	require.NoError(t, d.Register(c))
	require.NoError(t, d.BindControl(plugin.LogControl{}))
	d.SetConnections([]string{"ecu1"})

	require.NoError(t, d.StateChanged(0, sdk.StateConnecting))
	require.NoError(t, d.StateChanged(0, sdk.StateConnected))
	// Spurious repeat is forwarded as observed; tolerance is the plugin's
	// side of the contract.
	require.NoError(t, d.StateChanged(0, sdk.StateConnected))

	assert.Equal(t, []sdk.ConnectionState{
		sdk.StateConnecting, sdk.StateConnected, sdk.StateConnected,
	}, c.states)
}

func TestControlGrantsWithholdDelivery(t *testing.T) {
	d := plugin.NewDispatcher()
	c := &fakeController{base: base{name: "mon"}}
	require.NoError(t, d.Register(c, plugin.WithGrants([]string{"control.msg"})))
	require.NoError(t, d.BindControl(plugin.LogControl{}))

	d.SetConnections([]string{"ecu1"})
	assert.Empty(t, c.connections())

	msg := sdk.NewMessage(0, time.Now(), []byte("resp"))
	require.NoError(t, d.ControlMsg(0, msg))
	assert.Equal(t, []int{0}, c.msgs)

	require.NoError(t, d.StateChanged(0, sdk.StateConnected))
	assert.Empty(t, c.states)
}

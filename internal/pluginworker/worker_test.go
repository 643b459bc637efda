package pluginworker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nispor/nipart/pkg/event"
	"github.com/nispor/nipart/pkg/nmstate"
	"github.com/nispor/nipart/pkg/plugincmd"
)

type fakePlugin struct {
	NoSupportHandler
	state *nmstate.NetworkState
}

func (f *fakePlugin) Info() PluginInfo {
	return PluginInfo{Name: "fake", Version: "test", Roles: []string{"query-and-apply"}}
}

func (f *fakePlugin) QueryNetworkState(context.Context, json.RawMessage) (*nmstate.NetworkState, error) {
	return f.state, nil
}

func request(t *testing.T, cmd plugincmd.Command, payload interface{}) *event.Event {
	e, err := event.New(event.ActionRequest, event.Daemon(), event.Unicast("fake"), payload, time.Second)
	require.NoError(t, err)
	e.Command = string(cmd)
	return e
}

func TestHandleQueryPluginInfo(t *testing.T) {
	w := New("fake", &fakePlugin{})
	req := request(t, plugincmd.QueryPluginInfo, nil)

	reply, quit := w.handle(context.Background(), req)
	require.NotNil(t, reply)
	assert.False(t, quit)
	require.NotNil(t, reply.RefUUID)
	assert.Equal(t, req.UUID, *reply.RefUUID)

	var info PluginInfo
	require.NoError(t, json.Unmarshal(reply.Payload, &info))
	assert.Equal(t, "fake", info.Name)
}

func TestHandleQueryNetworkState(t *testing.T) {
	state := &nmstate.NetworkState{
		Version: nmstate.CurrentSchemaVersion,
		Interfaces: []*nmstate.Interface{
			{Base: nmstate.BaseInterface{Name: "eth0", Type: nmstate.TypeEthernet, State: nmstate.StateUp}},
		},
	}
	w := New("fake", &fakePlugin{state: state})

	reply, _ := w.handle(context.Background(), request(t, plugincmd.QueryNetworkState, nil))
	require.NotNil(t, reply)

	var got nmstate.NetworkState
	require.NoError(t, json.Unmarshal(reply.Payload, &got))
	require.Len(t, got.Interfaces, 1)
	assert.Equal(t, "eth0", got.Interfaces[0].Base.Name)
}

func TestHandleApplyFallsBackToNoSupport(t *testing.T) {
	w := New("fake", &fakePlugin{})
	desired := nmstate.NetworkState{Version: nmstate.CurrentSchemaVersion}

	reply, _ := w.handle(context.Background(), request(t, plugincmd.ApplyNetworkState, desired))
	require.NotNil(t, reply)

	var failure struct {
		Kind string `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(reply.Payload, &failure))
	assert.Equal(t, "no_support", failure.Kind)
}

func TestHandleWifiScanWithoutWifiHandler(t *testing.T) {
	w := New("fake", &fakePlugin{})
	reply, _ := w.handle(context.Background(), request(t, plugincmd.WifiScan, nil))
	require.NotNil(t, reply)

	var failure struct {
		Kind string `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(reply.Payload, &failure))
	assert.Equal(t, "no_support", failure.Kind)
}

func TestHandleQuit(t *testing.T) {
	w := New("fake", &fakePlugin{})
	reply, quit := w.handle(context.Background(), request(t, plugincmd.Quit, nil))
	assert.Nil(t, reply)
	assert.True(t, quit)
}

func TestHandleChangeLogLevel(t *testing.T) {
	w := New("fake", &fakePlugin{})
	reply, _ := w.handle(context.Background(), request(t, plugincmd.ChangeLogLevel, "debug"))
	require.NotNil(t, reply)

	var level string
	require.NoError(t, json.Unmarshal(reply.Payload, &level))
	assert.Equal(t, "debug", level)
}

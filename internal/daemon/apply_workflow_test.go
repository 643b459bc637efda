package daemon

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nispor/nipart/pkg/event"
	"github.com/nispor/nipart/pkg/nmstate"
	"github.com/nispor/nipart/pkg/nperr"
	"github.com/nispor/nipart/pkg/session"
)

// autoReplyDispatcher answers every dispatched event with a single reply
// carrying replyPayload, simulating one QueryAndApply plugin.
func autoReplyDispatcher(t *testing.T, sessions *session.Queue, replyPayload interface{}) Dispatcher {
	return func(ctx context.Context, e *event.Event) error {
		reply, err := e.Reply(event.Unicast("kernel-plugin"), replyPayload)
		require.NoError(t, err)
		sessions.Push(reply)
		return nil
	}
}

func newTestRegistryWithOnePlugin() *Registry {
	reg := NewRegistry()
	reg.Register(PluginInfo{
		Name:       "kernel-plugin",
		IfaceTypes: []nmstate.InterfaceType{nmstate.TypeEthernet},
		Roles:      []Role{RoleQueryAndApply},
	})
	return reg
}

func TestBuildApplyWorkflowMemoryOnlySkipsApplyAndVerify(t *testing.T) {
	reg := newTestRegistryWithOnePlugin()
	store := NewCommitStore()
	sessions := session.NewQueue()

	current := nmstate.NetworkState{
		Version: nmstate.CurrentSchemaVersion,
		Interfaces: []*nmstate.Interface{
			{Base: nmstate.BaseInterface{Name: "eth0", Type: nmstate.TypeEthernet, State: nmstate.StateUp, Mtu: intPtr(1500)}},
		},
	}
	payload, err := json.Marshal(current)
	require.NoError(t, err)

	x := NewExecutor(sessions, autoReplyDispatcher(t, sessions, json.RawMessage(payload)))
	x.pollPeriod = time.Millisecond

	desired := &nmstate.NetworkState{
		Version: nmstate.CurrentSchemaVersion,
		Interfaces: []*nmstate.Interface{
			{Base: nmstate.BaseInterface{Name: "eth0", Type: nmstate.TypeEthernet, State: nmstate.StateUp, Mtu: intPtr(9000)}},
		},
	}

	wf := BuildApplyWorkflow(reg, store, desired, ApplyOption{MemoryOnly: true})
	require.Len(t, wf.Tasks, 3, "memory-only apply skips the apply/verify/commit tasks")

	err = x.Run(context.Background(), wf)
	require.NoError(t, err)

	merged, ok := wf.Share["merged"].(*nmstate.NetworkState)
	require.True(t, ok)
	require.NotNil(t, merged)
	result, ok := wf.Share["result"].(*nmstate.NetworkState)
	require.True(t, ok)
	require.Len(t, result.Interfaces, 1, "the reply diff carries the mtu change")
	require.Empty(t, store.Query(CommitQueryOption{}), "memory-only apply must not record a commit")
}

func TestApplyWorkflowRejectsUpOnMissingPhysical(t *testing.T) {
	reg := newTestRegistryWithOnePlugin()
	store := NewCommitStore()
	sessions := session.NewQueue()

	payload, err := json.Marshal(nmstate.NetworkState{Version: nmstate.CurrentSchemaVersion})
	require.NoError(t, err)
	x := NewExecutor(sessions, autoReplyDispatcher(t, sessions, json.RawMessage(payload)))
	x.pollPeriod = time.Millisecond

	desired := &nmstate.NetworkState{
		Version: nmstate.CurrentSchemaVersion,
		Interfaces: []*nmstate.Interface{
			{Base: nmstate.BaseInterface{Name: "eth7", Type: nmstate.TypeEthernet, State: nmstate.StateUp}},
		},
	}
	wf := BuildApplyWorkflow(reg, store, desired, ApplyOption{MemoryOnly: true})
	err = x.Run(context.Background(), wf)
	require.Error(t, err)
	require.Equal(t, nperr.InvalidArgument, nperr.GetKind(err))
}

func TestApplyWorkflowVerifyRetriesOnMismatch(t *testing.T) {
	reg := newTestRegistryWithOnePlugin()
	store := NewCommitStore()
	sessions := session.NewQueue()

	// The fake plugin always reports eth0 with mtu 1500, so a desired
	// mtu of 9000 never verifies and the retry budget runs out.
	observed := nmstate.NetworkState{
		Version: nmstate.CurrentSchemaVersion,
		Interfaces: []*nmstate.Interface{
			{Base: nmstate.BaseInterface{Name: "eth0", Type: nmstate.TypeEthernet, State: nmstate.StateUp, Mtu: intPtr(1500)}},
		},
	}
	payload, err := json.Marshal(observed)
	require.NoError(t, err)

	x := NewExecutor(sessions, autoReplyDispatcher(t, sessions, json.RawMessage(payload)))
	x.pollPeriod = time.Millisecond

	desired := &nmstate.NetworkState{
		Version: nmstate.CurrentSchemaVersion,
		Interfaces: []*nmstate.Interface{
			{Base: nmstate.BaseInterface{Name: "eth0", Type: nmstate.TypeEthernet, State: nmstate.StateUp, Mtu: intPtr(9000)}},
		},
	}

	wf := BuildApplyWorkflow(reg, store, desired, ApplyOption{})
	for _, task := range wf.Tasks {
		if task.Kind == "verify" {
			task.RetryIntervalMs = 1
		}
	}
	err = x.Run(context.Background(), wf)
	require.Error(t, err)
	require.Equal(t, nperr.VerificationError, nperr.GetKind(err))
}

func intPtr(i int) *int { return &i }

package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nispor/nipart/pkg/event"
	"github.com/nispor/nipart/pkg/session"
)

func TestWorkflowRunsTaskAndCallback(t *testing.T) {
	sessions := session.NewQueue()
	var capturedReq *event.Event

	dispatch := func(ctx context.Context, e *event.Event) error {
		capturedReq = e
		reply, err := e.Reply(event.Unicast("plugin-a"), nil)
		if err != nil {
			return err
		}
		sessions.Push(reply)
		return nil
	}

	x := NewExecutor(sessions, dispatch)
	x.pollPeriod = time.Millisecond

	wf := NewWorkflow("query")
	callbackRan := false
	wf.Tasks = []*Task{
		{
			Kind: "query-state",
			GenRequest: func(share ShareData) (*event.Event, int, error) {
				return must(event.New(event.ActionRequest, event.Daemon(), event.Group("kernel"), nil, time.Second)), 1, nil
			},
			Callback: func(ctx context.Context, task *Task, share ShareData, replies []*event.Event) error {
				callbackRan = true
				share["replies"] = len(replies)
				return nil
			},
			Timeout:       time.Second,
			MaxRetryCount: 0,
		},
	}

	err := x.Run(context.Background(), wf)
	require.NoError(t, err)
	assert.True(t, callbackRan)
	assert.Equal(t, 1, wf.Share["replies"])
	require.NotNil(t, capturedReq)
}

func TestWorkflowTaskTimesOutAfterRetries(t *testing.T) {
	sessions := session.NewQueue()
	dispatch := func(ctx context.Context, e *event.Event) error { return nil }

	x := NewExecutor(sessions, dispatch)
	x.pollPeriod = time.Millisecond

	wf := NewWorkflow("apply")
	wf.Tasks = []*Task{
		{
			Kind: "apply-state",
			GenRequest: func(share ShareData) (*event.Event, int, error) {
				return must(event.New(event.ActionRequest, event.Daemon(), event.Group("kernel"), nil, time.Millisecond)), 1, nil
			},
			Timeout:         5 * time.Millisecond,
			RetryIntervalMs: 1,
			MaxRetryCount:   1,
		},
	}

	err := x.Run(context.Background(), wf)
	require.Error(t, err)
}

func must(e *event.Event, err error) *event.Event {
	if err != nil {
		panic(err)
	}
	return e
}

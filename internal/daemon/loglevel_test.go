package daemon

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nispor/nipart/pkg/event"
	"github.com/nispor/nipart/pkg/session"
)

func TestBuildQueryLogLevelWorkflowMergesPluginAndDaemonLevels(t *testing.T) {
	reg := NewRegistry()
	reg.Register(PluginInfo{Name: "kernel-plugin", Roles: []Role{RoleQueryAndApply}})
	sessions := session.NewQueue()

	dispatch := func(ctx context.Context, e *event.Event) error {
		payload, err := json.Marshal("warn")
		require.NoError(t, err)
		reply, err := e.Reply(event.Unicast("kernel-plugin"), json.RawMessage(payload))
		require.NoError(t, err)
		sessions.Push(reply)
		return nil
	}
	x := NewExecutor(sessions, dispatch)
	x.pollPeriod = time.Millisecond

	wf := BuildQueryLogLevelWorkflow(reg, func() logrus.Level { return logrus.InfoLevel })
	require.NoError(t, x.Run(context.Background(), wf))

	levels, ok := wf.Share["result"].(LogLevelMap)
	require.True(t, ok)
	assert.Equal(t, "warn", levels["kernel-plugin"])
	assert.Equal(t, "info", levels["daemon"])
}

func TestBuildChangeLogLevelWorkflowSetsDaemonLevelImmediately(t *testing.T) {
	reg := NewRegistry()
	sessions := session.NewQueue()
	dispatch := func(ctx context.Context, e *event.Event) error { return nil }
	x := NewExecutor(sessions, dispatch)
	x.pollPeriod = time.Millisecond

	var gotLevel logrus.Level
	setter := func(l logrus.Level) { gotLevel = l }
	getter := func() logrus.Level { return gotLevel }

	wf, err := BuildChangeLogLevelWorkflow(reg, "debug", setter, getter)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, gotLevel, "daemon level must change before any plugin replies")

	require.NoError(t, x.Run(context.Background(), wf))
	levels, ok := wf.Share["result"].(LogLevelMap)
	require.True(t, ok)
	assert.Equal(t, "debug", levels["daemon"])
}

func TestBuildChangeLogLevelWorkflowRejectsInvalidLevel(t *testing.T) {
	reg := NewRegistry()
	_, err := BuildChangeLogLevelWorkflow(reg, "not-a-level", func(logrus.Level) {}, func() logrus.Level { return logrus.InfoLevel })
	require.Error(t, err)
}

package daemon

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/nispor/nipart/pkg/event"
	"github.com/nispor/nipart/pkg/plugincmd"
)

// LogLevelMap is the reply shape for QueryLogLevel: one entry per
// plugin name, plus "daemon" for the commander's own level
// (src/daemon/commander/log_level.rs query_log_level).
type LogLevelMap map[string]string

// BuildQueryLogLevelWorkflow asks every plugin for its current log
// level and reports the commander's own alongside them.
func BuildQueryLogLevelWorkflow(reg *Registry, daemonLevel func() logrus.Level) *Workflow {
	wf := NewWorkflow("query-log-level")
	wf.Tasks = []*Task{
		{
			Kind: "query-log-level",
			GenRequest: func(share ShareData) (*event.Event, int, error) {
				expected := len(reg.AllPluginNames(""))
				e, err := newCommandEvent(event.ActionRequest, event.AllPlugins(), plugincmd.QueryLogLevel, nil, defaultPluginTimeout)
				return e, expected, err
			},
			Callback: func(ctx context.Context, task *Task, share ShareData, replies []*event.Event) error {
				levels := make(LogLevelMap, len(replies)+1)
				for _, reply := range replies {
					var level string
					if err := json.Unmarshal(reply.Payload, &level); err != nil {
						continue
					}
					levels[string(reply.Src.Name)] = level
				}
				levels["daemon"] = daemonLevel().String()
				share["result"] = levels
				return nil
			},
			Timeout: defaultPluginTimeout,
		},
	}
	return wf
}

// BuildChangeLogLevelWorkflow sets the commander's own log level
// immediately, then asks every plugin to match it, reporting back the
// same shape QueryLogLevel does.
func BuildChangeLogLevelWorkflow(reg *Registry, level string, setDaemonLevel func(logrus.Level), daemonLevel func() logrus.Level) (*Workflow, error) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	setDaemonLevel(parsed)

	wf := NewWorkflow("change-log-level")
	wf.Tasks = []*Task{
		{
			Kind: "change-log-level",
			GenRequest: func(share ShareData) (*event.Event, int, error) {
				expected := len(reg.AllPluginNames(""))
				e, err := newCommandEvent(event.ActionRequest, event.AllPlugins(), plugincmd.ChangeLogLevel, level, defaultPluginTimeout)
				return e, expected, err
			},
			Callback: func(ctx context.Context, task *Task, share ShareData, replies []*event.Event) error {
				levels := make(LogLevelMap, len(replies)+1)
				for _, reply := range replies {
					var got string
					if err := json.Unmarshal(reply.Payload, &got); err != nil {
						continue
					}
					levels[string(reply.Src.Name)] = got
				}
				levels["daemon"] = daemonLevel().String()
				share["result"] = levels
				return nil
			},
			Timeout: defaultPluginTimeout,
		},
	}
	return wf, nil
}

// Package daemon implements nipart's commander: the apply lock, the
// plugin registry, and the workflow/task engine that drives multi-step
// query -> apply -> verify -> commit sequences.
package daemon

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/datawire/dlib/dlog"

	"github.com/nispor/nipart/pkg/event"
	"github.com/nispor/nipart/pkg/nperr"
	"github.com/nispor/nipart/pkg/nuuid"
	"github.com/nispor/nipart/pkg/session"
)

// ShareData is a workflow's scratch area, exclusively owned by the
// running workflow task.
type ShareData map[string]interface{}

// GenRequestFunc builds the request event(s) for a task given the
// workflow's current scratch data, along with how many replies to expect.
type GenRequestFunc func(share ShareData) (*event.Event, int, error)

// CallbackFunc runs once a task's replies are in (or it had no
// gen_request at all); it may mutate share and return an error to fail
// the workflow immediately (a VerificationError is retried instead while
// the task has retries left).
type CallbackFunc func(ctx context.Context, task *Task, share ShareData, replies []*event.Event) error

// OnRetryFunc runs just before a task's retry is dispatched; it may
// return an extra event to fire first (the apply workflow uses this to
// reissue the apply at the midpoint of its verify retries).
type OnRetryFunc func(share ShareData, retryCount, maxRetryCount int) (*event.Event, error)

// Task is a single step of a Workflow.
type Task struct {
	UUID              uuid.UUID
	Kind              string
	GenRequest        GenRequestFunc
	Callback          CallbackFunc
	OnRetry           OnRetryFunc
	Timeout           time.Duration
	RetryIntervalMs   int
	MaxRetryCount     int

	retryCount int
}

// Workflow is a named, ordered list of Tasks.
type Workflow struct {
	UUID  uuid.UUID
	Name  string
	Tasks []*Task
	Share ShareData
}

// NewWorkflow creates an empty workflow with a fresh UUID and scratch area.
func NewWorkflow(name string) *Workflow {
	return &Workflow{UUID: nuuid.New(), Name: name, Share: make(ShareData)}
}

// Dispatcher sends an event into the event bus; it is the
// seam between the workflow engine and the router so tests can stub it.
type Dispatcher func(ctx context.Context, e *event.Event) error

// Executor runs workflows to completion, polling a session.Queue for
// replies.
type Executor struct {
	sessions   *session.Queue
	dispatch   Dispatcher
	pollPeriod time.Duration
}

func NewExecutor(sessions *session.Queue, dispatch Dispatcher) *Executor {
	return &Executor{sessions: sessions, dispatch: dispatch, pollPeriod: 20 * time.Millisecond}
}

// Run executes every task of wf in order. It
// stops and returns the first error: a sanitize/merge-style failure from
// a callback is fatal immediately; a task whose replies keep missing the
// deadline fails with Timeout once its retries are exhausted, and a
// verification failure that outlasts the retries is returned as is.
func (x *Executor) Run(ctx context.Context, wf *Workflow) error {
	for _, task := range wf.Tasks {
		if err := x.runTask(ctx, wf, task); err != nil {
			return err
		}
	}
	return nil
}

func (x *Executor) runTask(ctx context.Context, wf *Workflow, task *Task) error {
	for {
		replies, timedOut, err := x.dispatchAndWait(ctx, wf, task)
		if err != nil {
			return err
		}
		cause := "timed out"
		if !timedOut {
			if task.Callback != nil {
				err := task.Callback(ctx, task, wf.Share, replies)
				if err == nil {
					return nil
				}
				// Only verification mismatches are retried at the task
				// level; everything else a callback
				// reports (sanitize, merge, malformed replies) fails
				// the workflow immediately.
				if nperr.GetKind(err) != nperr.VerificationError {
					return err
				}
				if task.retryCount >= task.MaxRetryCount {
					return err
				}
				cause = "verification failed"
			} else {
				return nil
			}
		}
		if task.retryCount >= task.MaxRetryCount {
			return nperr.Timeout.Newf("workflow %s task %s exhausted %d retries", wf.Name, task.Kind, task.MaxRetryCount)
		}
		task.retryCount++
		dlog.Infof(ctx, "workflow %s: task %s %s, retry %d/%d", wf.Name, task.Kind, cause, task.retryCount, task.MaxRetryCount)
		time.Sleep(time.Duration(task.RetryIntervalMs) * time.Millisecond)
		if task.OnRetry != nil {
			extra, err := task.OnRetry(wf.Share, task.retryCount, task.MaxRetryCount)
			if err != nil {
				return err
			}
			if extra != nil {
				if err := x.dispatch(ctx, extra); err != nil {
					return err
				}
			}
		}
	}
}

// dispatchAndWait builds and sends the task's request (if any), then
// blocks until its session completes or its deadline passes.
func (x *Executor) dispatchAndWait(ctx context.Context, wf *Workflow, task *Task) (replies []*event.Event, timedOut bool, err error) {
	if task.GenRequest == nil {
		return nil, false, nil
	}
	req, expected, err := task.GenRequest(wf.Share)
	if err != nil {
		return nil, false, err
	}
	if task.retryCount > 0 {
		req = req.Reissue(task.RetryIntervalMs)
	}

	timeout := task.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	s := x.sessions.Open(req, expected, timeout)

	if err := x.dispatch(ctx, req); err != nil {
		x.sessions.Cancel(s.UUID)
		return nil, false, err
	}

	ticker := time.NewTicker(x.pollPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, false, nperr.Timeout.New(ctx.Err())
		case <-ticker.C:
			done, expired, got, ok := x.sessions.Poll(s.UUID)
			if !ok {
				return nil, false, nperr.Bug.Newf("session %s vanished from queue", s.UUID)
			}
			if done {
				x.sessions.Cancel(s.UUID)
				return got, false, nil
			}
			if expired {
				x.sessions.Cancel(s.UUID)
				return nil, true, nil
			}
		}
	}
}

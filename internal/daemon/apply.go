package daemon

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nispor/nipart/pkg/clientapi"
	"github.com/nispor/nipart/pkg/event"
	"github.com/nispor/nipart/pkg/nmstate"
	"github.com/nispor/nipart/pkg/nperr"
	"github.com/nispor/nipart/pkg/plugincmd"
)

// ApplyOption mirrors the client's ApplyNetworkState payload;
// the wire shape lives in pkg/clientapi so the client and daemon sides
// never drift.
type ApplyOption = clientapi.ApplyOption

const defaultPluginTimeout = 5 * time.Second
const verifyRetryGap = 500 * time.Millisecond
const verifyRetriesGeneric = 10
const verifyRetriesWifi = 20

// BuildApplyWorkflow composes the five-step apply workflow:
// query current, merge+sanitize, apply,
// requery+verify with retries, then hand the post-apply state to the
// commit plugin.
func BuildApplyWorkflow(reg *Registry, store *CommitStore, desired *nmstate.NetworkState, opt ApplyOption) *Workflow {
	wf := NewWorkflow("apply")
	wf.Share["desired"] = desired
	wf.Share["option"] = opt
	// The pre-apply snapshot must keep its secrets: merge and revert
	// need the real values, and apply itself is a root-only command.
	wf.Share["include_secrets"] = true

	wf.Tasks = append(wf.Tasks,
		queryCurrentTask(reg, "pre_apply_state"),
		mergeAndSanitizeTask(),
	)
	if !opt.MemoryOnly {
		wf.Tasks = append(wf.Tasks, applyNetStateTask(reg))
		if !opt.NoVerify {
			wf.Tasks = append(wf.Tasks, verifyTask(reg))
		}
		wf.Tasks = append(wf.Tasks, commitTask(store))
	}
	wf.Tasks = append(wf.Tasks, genResultTask())
	return wf
}

// genResultTask computes the reply payload: the diff between the merged
// state and the pre-apply snapshot. Runs on every path, including memory-only
// and no-verify applies.
func genResultTask() *Task {
	return &Task{
		Kind: "gen-result",
		Callback: func(ctx context.Context, task *Task, share ShareData, _ []*event.Event) error {
			merged, _ := share["merged"].(*nmstate.NetworkState)
			preApply, _ := share["pre_apply_state"].(*nmstate.NetworkState)
			if merged == nil || preApply == nil {
				return nperr.Bug.New("gen-result: missing merged or pre_apply_state")
			}
			diff, err := nmstate.GenDiff(merged, preApply)
			if err != nil {
				return err
			}
			// The caller already knows its own secrets; never echo them.
			diff.HideSecrets()
			share["result"] = diff
			return nil
		},
	}
}

// BuildQueryWorkflow composes the query workflow: fan-in, merge, then
// hide secrets unless the
// caller is root and asked for them.
func BuildQueryWorkflow(reg *Registry, includeSecrets, isRoot bool) *Workflow {
	wf := NewWorkflow("query")
	wf.Share["include_secrets"] = includeSecrets && isRoot
	wf.Tasks = []*Task{queryCurrentTask(reg, "result")}
	return wf
}

func queryCurrentTask(reg *Registry, shareKey string) *Task {
	return &Task{
		Kind: "query-net-state",
		GenRequest: func(share ShareData) (*event.Event, int, error) {
			expected := reg.CountWithRole(RoleQueryAndApply) + reg.CountWithRole(RoleDhcp)
			e, err := newCommandEvent(event.ActionRequest, event.Group(string(RoleQueryAndApply)), plugincmd.QueryNetworkState, nil, defaultPluginTimeout)
			return e, expected, err
		},
		Callback: func(ctx context.Context, task *Task, share ShareData, replies []*event.Event) error {
			merged := &nmstate.NetworkState{Version: nmstate.CurrentSchemaVersion}
			for _, reply := range replies {
				var partial nmstate.NetworkState
				if err := json.Unmarshal(reply.Payload, &partial); err != nil {
					continue
				}
				merged = nmstate.MergeNetworkState(merged, &partial)
			}
			if includeSecrets, _ := share["include_secrets"].(bool); !includeSecrets {
				merged.HideSecrets()
			}
			share[shareKey] = merged
			return nil
		},
		Timeout:       defaultPluginTimeout,
		MaxRetryCount: 0,
	}
}

func mergeAndSanitizeTask() *Task {
	return &Task{
		Kind: "merge-and-sanitize",
		Callback: func(ctx context.Context, task *Task, share ShareData, _ []*event.Event) error {
			desired, _ := share["desired"].(*nmstate.NetworkState)
			current, _ := share["pre_apply_state"].(*nmstate.NetworkState)
			if desired == nil || current == nil {
				return nperr.Bug.New("merge-and-sanitize: missing desired or pre_apply_state")
			}
			// A desired document that round-tripped through a query
			// carries hide-sentinels in its secret fields; swap the
			// live values back in before merging.
			nmstate.ResolveSecrets(desired, current)
			if err := desired.Sanitize(true); err != nil {
				return err
			}
			if err := nmstate.ValidateDesired(desired, current); err != nil {
				return err
			}
			merged := nmstate.MergeNetworkState(current, desired)
			if err := merged.Sanitize(false); err != nil {
				return err
			}
			share["merged"] = merged
			return nil
		},
	}
}

func applyNetStateTask(reg *Registry) *Task {
	return &Task{
		Kind: "apply-net-state",
		GenRequest: func(share ShareData) (*event.Event, int, error) {
			merged, _ := share["merged"].(*nmstate.NetworkState)
			if merged == nil {
				return nil, 0, nperr.Bug.New("apply-net-state: no merged state")
			}
			expected := reg.CountWithRole(RoleQueryAndApply)
			e, err := newCommandEvent(event.ActionRequest, event.Group(string(RoleQueryAndApply)), plugincmd.ApplyNetworkState, stateForApply(merged), defaultPluginTimeout)
			return e, expected, err
		},
		Timeout:       defaultPluginTimeout,
		MaxRetryCount: 0,
	}
}

func verifyTask(reg *Registry) *Task {
	maxRetry := verifyRetriesGeneric
	return &Task{
		Kind: "verify",
		GenRequest: func(share ShareData) (*event.Event, int, error) {
			expected := reg.CountWithRole(RoleQueryAndApply) + reg.CountWithRole(RoleDhcp)
			e, err := newCommandEvent(event.ActionRequest, event.Group(string(RoleQueryAndApply)), plugincmd.QueryNetworkState, nil, defaultPluginTimeout)
			return e, expected, err
		},
		Callback: func(ctx context.Context, task *Task, share ShareData, replies []*event.Event) error {
			merged, _ := share["merged"].(*nmstate.NetworkState)
			desired, _ := share["desired"].(*nmstate.NetworkState)
			preApply, _ := share["pre_apply_state"].(*nmstate.NetworkState)
			current := &nmstate.NetworkState{Version: nmstate.CurrentSchemaVersion}
			for _, reply := range replies {
				var partial nmstate.NetworkState
				if err := json.Unmarshal(reply.Payload, &partial); err != nil {
					continue
				}
				current = nmstate.MergeNetworkState(current, &partial)
			}
			if err := current.Sanitize(false); err != nil {
				return err
			}
			if hasWifi(merged) {
				task.MaxRetryCount = verifyRetriesWifi
			} else {
				task.MaxRetryCount = maxRetry
			}
			forVerify := nmstate.GenStateForVerify(merged, desired, preApply)
			if err := nmstate.Verify(forVerify, current); err != nil {
				share["last_verify_error"] = err
				return err
			}
			return nil
		},
		// At the midpoint of the retry budget the apply itself is
		// reissued, in case the first apply was lost or raced an
		// external change.
		OnRetry: func(share ShareData, retryCount, maxRetryCount int) (*event.Event, error) {
			if retryCount != maxRetryCount/2 {
				return nil, nil
			}
			merged, _ := share["merged"].(*nmstate.NetworkState)
			if merged == nil {
				return nil, nil
			}
			return newCommandEvent(event.ActionOneShot, event.Group(string(RoleQueryAndApply)), plugincmd.ApplyNetworkState, stateForApply(merged), defaultPluginTimeout)
		},
		Timeout:         defaultPluginTimeout,
		RetryIntervalMs: int(verifyRetryGap.Milliseconds()),
		MaxRetryCount:   maxRetry,
	}
}

// stateForApply wraps the apply-ordered interface list back into a
// document so the plugin side decodes the same shape it queries with.
func stateForApply(merged *nmstate.NetworkState) *nmstate.NetworkState {
	return &nmstate.NetworkState{
		Version:    nmstate.CurrentSchemaVersion,
		Interfaces: nmstate.GenStateForApply(merged),
		Routes:     merged.Routes,
	}
}

func hasWifi(ns *nmstate.NetworkState) bool {
	if ns == nil {
		return false
	}
	for _, iface := range ns.Interfaces {
		if iface.Base.Type == nmstate.TypeWifiPhy || iface.Base.Type == nmstate.TypeWifiCfg {
			return true
		}
	}
	return false
}

func commitTask(store *CommitStore) *Task {
	return &Task{
		Kind: "post-start-commit",
		GenRequest: func(share ShareData) (*event.Event, int, error) {
			merged, _ := share["merged"].(*nmstate.NetworkState)
			e, err := newCommandEvent(event.ActionOneShot, event.Group(string(RoleCommit)), plugincmd.CreateCommit, merged, defaultPluginTimeout)
			return e, 0, err
		},
		Callback: func(ctx context.Context, task *Task, share ShareData, _ []*event.Event) error {
			merged, _ := share["merged"].(*nmstate.NetworkState)
			store.Record(merged, false)
			return nil
		},
	}
}

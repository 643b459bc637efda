package daemon

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/nispor/nipart/pkg/clientapi"
	"github.com/nispor/nipart/pkg/event"
	"github.com/nispor/nipart/pkg/nmstate"
	"github.com/nispor/nipart/pkg/nuuid"
	"github.com/nispor/nipart/pkg/plugincmd"
)

// NetworkCommit is one recorded successful apply; the wire shapes live
// in pkg/clientapi.
type NetworkCommit = clientapi.NetworkCommit

// CommitQueryOption selects which commits QueryCommits returns
// (src/lib/commit.rs NetworkCommitQueryOption). Count 0 means all.
type CommitQueryOption = clientapi.CommitQueryOption

// CommitStore is the commander's own record of applied commits, kept in
// addition to whatever the commit plugin persists to disk, so
// QueryCommits can answer without a round trip when nothing is
// persisted.
type CommitStore struct {
	mu      sync.Mutex
	commits []*NetworkCommit
}

func NewCommitStore() *CommitStore {
	return &CommitStore{}
}

// Record appends a new commit, newest first.
func (c *CommitStore) Record(state *nmstate.NetworkState, persisted bool) *NetworkCommit {
	commit := &NetworkCommit{
		ID:        nuuid.New().String(),
		Persisted: persisted,
		Time:      time.Now(),
		State:     state,
	}
	c.mu.Lock()
	c.commits = append([]*NetworkCommit{commit}, c.commits...)
	c.mu.Unlock()
	return commit
}

// Query returns commits matching opt, newest first.
func (c *CommitStore) Query(opt CommitQueryOption) []*NetworkCommit {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*NetworkCommit, 0, len(c.commits))
	for _, commit := range c.commits {
		if opt.PersistedOnly && !commit.Persisted {
			continue
		}
		out = append(out, commit)
		if opt.Count > 0 && uint32(len(out)) >= opt.Count {
			break
		}
	}
	return out
}

// Remove drops the commits named by ids, returning how many were found.
func (c *CommitStore) Remove(ids []string) int {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.commits[:0:0]
	removed := 0
	for _, commit := range c.commits {
		if want[commit.ID] {
			removed++
			continue
		}
		kept = append(kept, commit)
	}
	c.commits = kept
	return removed
}

// BuildQueryCommitsWorkflow fans QueryCommits out to the single commit
// plugin tracking persisted state, merging its replies with whatever the
// commander recorded itself (src/daemon/commander/commit.rs
// query_net_commits).
func BuildQueryCommitsWorkflow(reg *Registry, store *CommitStore, opt CommitQueryOption) *Workflow {
	wf := NewWorkflow("query-commit")
	wf.Tasks = []*Task{
		{
			Kind: "query-commits",
			GenRequest: func(share ShareData) (*event.Event, int, error) {
				expected := reg.CountWithRole(RoleCommit)
				e, err := newCommandEvent(event.ActionRequest, event.Group(string(RoleCommit)), plugincmd.QueryCommits, opt, defaultPluginTimeout)
				return e, expected, err
			},
			Callback: func(ctx context.Context, task *Task, share ShareData, replies []*event.Event) error {
				all := append([]*NetworkCommit(nil), store.Query(opt)...)
				for _, reply := range replies {
					var fromPlugin []*NetworkCommit
					if err := json.Unmarshal(reply.Payload, &fromPlugin); err != nil {
						continue
					}
					all = append(all, fromPlugin...)
				}
				sort.Slice(all, func(i, j int) bool { return all[i].Time.After(all[j].Time) })
				if opt.Count > 0 && uint32(len(all)) > opt.Count {
					all = all[:opt.Count]
				}
				share["result"] = all
				return nil
			},
			Timeout: defaultPluginTimeout,
		},
	}
	return wf
}

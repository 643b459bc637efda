package daemon

import (
	"context"
	"encoding/json"
	"net"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"

	"github.com/nispor/nipart/pkg/clientapi"
	"github.com/nispor/nipart/pkg/event"
	"github.com/nispor/nipart/pkg/ipc"
	"github.com/nispor/nipart/pkg/nmstate"
	"github.com/nispor/nipart/pkg/nperr"
	"github.com/nispor/nipart/pkg/plugincmd"
)

// ClientSocketMode is the permission bits the client API socket is
// created with: world-dialable so non-root processes may Ping/query
// without secrets.
const ClientSocketMode = 0o666

// Server is the daemon's client-facing API socket: it accepts
// connections, reads one command per round trip,
// checks the caller's uid against the command's permission requirement,
// and drives the commander's workflow engine to answer it.
type Server struct {
	listener net.Listener
	manager  *Manager
}

// Listen opens the client API socket at path.
func Listen(path string) (*Server, error) {
	l, err := ipc.Listen(path, ClientSocketMode)
	if err != nil {
		return nil, err
	}
	return &Server{listener: l}, nil
}

// Serve accepts connections until ctx is cancelled, handling each on its
// own goroutine supervised by g.
func (s *Server) Serve(ctx context.Context, g *dgroup.Group, m *Manager) {
	s.manager = m
	g.Go("api-accept", func(ctx context.Context) error {
		go func() {
			<-ctx.Done()
			s.listener.Close()
		}()
		for {
			raw, err := s.listener.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return nil
				default:
					return err
				}
			}
			conn := ipc.NewConn(raw)
			g.Go("api-conn", func(ctx context.Context) error {
				s.handleConn(ctx, conn)
				return nil
			})
		}
	})
}

func (s *Server) handleConn(ctx context.Context, conn *ipc.Conn) {
	defer conn.Close()
	cred, err := ipc.PeerCredentials(conn.Conn)
	if err != nil {
		dlog.Errorf(ctx, "api: reading peer credentials: %v", err)
		return
	}
	for {
		env, err := conn.RecvCommand(ctx)
		if err != nil {
			if nperr.GetKind(err) != nperr.IpcClosed {
				dlog.Errorf(ctx, "api: reading command: %v", err)
			}
			return
		}
		result, err := s.dispatch(ctx, cred.Uid, int(cred.Pid), clientapi.Kind(env.Kind), env.Data)
		if err != nil {
			_ = conn.Send(string(clientapi.ErrorKind), clientapi.ErrorReply{
				Kind:    nperr.GetKind(err).String(),
				Message: err.Error(),
			})
			continue
		}
		if err := conn.Send(string(clientapi.ReplyKind), result); err != nil {
			dlog.Errorf(ctx, "api: sending reply: %v", err)
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, uid uint32, pid int, kind clientapi.Kind, data json.RawMessage) (interface{}, error) {
	if !permitted(uid, kind, data) {
		return nil, nperr.PermissionDeny.Newf("uid %d may not invoke %s", uid, kind)
	}
	switch kind {
	case clientapi.Ping:
		return "pong", nil
	case clientapi.QueryNetworkState:
		var req clientapi.QueryNetworkStateRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, nperr.InvalidArgument.New(err)
		}
		return s.queryNetworkState(ctx, uid, req)
	case clientapi.ApplyNetworkState:
		var req clientapi.ApplyNetworkStateRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, nperr.InvalidArgument.New(err)
		}
		return s.applyNetworkState(ctx, pid, req)
	case clientapi.QueryCommits:
		var opt CommitQueryOption
		if err := json.Unmarshal(data, &opt); err != nil {
			return nil, nperr.InvalidArgument.New(err)
		}
		wf := BuildQueryCommitsWorkflow(s.manager.Registry, s.manager.Commits, opt)
		if err := s.manager.Executor.Run(ctx, wf); err != nil {
			return nil, err
		}
		return wf.Share["result"], nil
	case clientapi.RemoveCommits:
		var ids []string
		if err := json.Unmarshal(data, &ids); err != nil {
			return nil, nperr.InvalidArgument.New(err)
		}
		// The commit plugin drops its persisted copies too; its reply is
		// advisory, so the removal is fanned out as a one-shot.
		if e, err := newCommandEvent(event.ActionOneShot, event.Group(string(RoleCommit)), plugincmd.RemoveCommits, ids, defaultPluginTimeout); err == nil {
			_ = s.manager.Router.Dispatch(ctx, e)
		}
		return s.manager.Commits.Remove(ids), nil
	case clientapi.QueryLogLevel:
		wf := BuildQueryLogLevelWorkflow(s.manager.Registry, s.manager.LogLevel)
		if err := s.manager.Executor.Run(ctx, wf); err != nil {
			return nil, err
		}
		return wf.Share["result"], nil
	case clientapi.ChangeLogLevel:
		var level string
		if err := json.Unmarshal(data, &level); err != nil {
			return nil, nperr.InvalidArgument.New(err)
		}
		wf, err := BuildChangeLogLevelWorkflow(s.manager.Registry, level, s.manager.SetLogLevel, s.manager.LogLevel)
		if err != nil {
			return nil, nperr.InvalidArgument.New(err)
		}
		if err := s.manager.Executor.Run(ctx, wf); err != nil {
			return nil, err
		}
		return wf.Share["result"], nil
	case clientapi.WifiScan:
		wf := BuildWifiScanWorkflow(s.manager.Registry)
		if err := s.manager.Executor.Run(ctx, wf); err != nil {
			return nil, err
		}
		return wf.Share["result"], nil
	case clientapi.WifiConnect:
		var req WifiConnectRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, nperr.InvalidArgument.New(err)
		}
		wf := BuildWifiConnectWorkflow(s.manager.Registry, req)
		if err := s.manager.Executor.Run(ctx, wf); err != nil {
			return nil, err
		}
		return wf.Share["result"], nil
	default:
		return nil, nperr.NoSupport.Newf("command %q not supported", kind)
	}
}

// permitted applies the permission table: uid 0 may do anything;
// anyone else may Ping and QueryNetworkState without secrets.
func permitted(uid uint32, kind clientapi.Kind, data json.RawMessage) bool {
	if uid == 0 {
		return true
	}
	switch kind {
	case clientapi.Ping:
		return true
	case clientapi.QueryNetworkState:
		var req clientapi.QueryNetworkStateRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return false
		}
		return !req.IncludeSecrets
	default:
		return false
	}
}

func (s *Server) queryNetworkState(ctx context.Context, uid uint32, req clientapi.QueryNetworkStateRequest) (*nmstate.NetworkState, error) {
	if req.Version != 0 && req.Version != nmstate.CurrentSchemaVersion {
		return nil, nperr.InvalidSchemaVersion.Newf("unsupported schema version %d", req.Version)
	}
	switch req.Kind {
	case clientapi.SavedNetworkState:
		commits := s.manager.Commits.Query(CommitQueryOption{Count: 1, PersistedOnly: true})
		if len(commits) == 0 {
			return &nmstate.NetworkState{Version: nmstate.CurrentSchemaVersion}, nil
		}
		return commits[0].State, nil
	case clientapi.PostNetworkState:
		commits := s.manager.Commits.Query(CommitQueryOption{Count: 1})
		if len(commits) == 0 {
			return &nmstate.NetworkState{Version: nmstate.CurrentSchemaVersion}, nil
		}
		return commits[0].State, nil
	default:
		wf := BuildQueryWorkflow(s.manager.Registry, req.IncludeSecrets, uid == 0)
		if err := s.manager.Executor.Run(ctx, wf); err != nil {
			return nil, err
		}
		result, _ := wf.Share["result"].(*nmstate.NetworkState)
		return result, nil
	}
}

func (s *Server) applyNetworkState(ctx context.Context, pid int, req clientapi.ApplyNetworkStateRequest) (*nmstate.NetworkState, error) {
	if req.State == nil {
		return nil, nperr.InvalidArgument.New("apply-network-state: missing state")
	}
	s.manager.Lock.Acquire(ctx, pid)
	defer s.manager.Lock.Release(ctx)

	wf := BuildApplyWorkflow(s.manager.Registry, s.manager.Commits, req.State, req.Option)
	if err := s.manager.Executor.Run(ctx, wf); err != nil {
		return nil, err
	}
	result, _ := wf.Share["result"].(*nmstate.NetworkState)
	return result, nil
}

package daemon

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
	"github.com/sirupsen/logrus"

	"github.com/nispor/nipart/pkg/event"
	"github.com/nispor/nipart/pkg/session"
)

// Manager is the daemon's commander: it owns the plugin registry, the
// live plugin connections, the event router, the session queue, the
// apply lock and the commit ledger, and wires them together. One struct
// per long-running component, dgroup-supervised.
type Manager struct {
	SocketDir string
	// PluginTimeout bounds how long startup waits for a plugin's socket
	// to appear; defaults to the per-round-trip plugin timeout.
	PluginTimeout time.Duration

	Registry *Registry
	Conns    *PluginConns
	Sessions *session.Queue
	Lock     *ApplyLock
	Commits  *CommitStore
	Router   *event.Router
	Executor *Executor

	logLevel int32 // atomic logrus.Level
}

// NewManager builds a Manager with its collaborators wired but not yet
// running; call Run to start the event router.
func NewManager(socketDir string) *Manager {
	m := &Manager{
		SocketDir:     socketDir,
		PluginTimeout: defaultPluginTimeout,
		Registry:      NewRegistry(),
		Conns:     NewPluginConns(),
		Sessions:  session.NewQueue(),
		Lock:      NewApplyLock(),
		Commits:   NewCommitStore(),
	}
	atomic.StoreInt32(&m.logLevel, int32(logrus.InfoLevel))
	m.Router = event.NewRouter(m.Registry, m.handleRoutedEvent)
	m.Executor = NewExecutor(m.Sessions, m.dispatch)
	return m
}

// LogLevel returns the daemon's own current log level, read atomically
// since ChangeLogLevel may run concurrently with any request handler.
func (m *Manager) LogLevel() logrus.Level {
	return logrus.Level(atomic.LoadInt32(&m.logLevel))
}

// SetLogLevel sets the daemon's own log level.
func (m *Manager) SetLogLevel(level logrus.Level) {
	atomic.StoreInt32(&m.logLevel, int32(level))
	logrus.SetLevel(level)
}

// Run starts the router and blocks until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	return m.Router.Run(ctx)
}

// dispatch is the Dispatcher the workflow Executor uses to send a
// task's request event into the bus.
func (m *Manager) dispatch(ctx context.Context, e *event.Event) error {
	return m.Router.Dispatch(ctx, e)
}

// handleRoutedEvent is the event.Router's Handler: it either delivers e
// to a plugin connection (target names a plugin) or pushes it into the
// session queue for the waiting workflow task (target is one of the
// daemon's own logical queues).
func (m *Manager) handleRoutedEvent(ctx context.Context, target string, e *event.Event) {
	if e.Action == event.ActionCancel && e.RefUUID != nil {
		if s := m.Sessions.Cancel(*e.RefUUID); s != nil {
			dlog.Infof(ctx, "request %s cancelled with %d/%d replies", s.UUID, len(s.Replies), s.ExpectedReplyCount)
		}
		return
	}
	switch target {
	case string(event.AddressDaemon), string(event.AddressCommander), string(event.AddressUser):
		m.Sessions.Push(e)
		return
	}
	conn, ok := m.Conns.Get(target)
	if !ok {
		dlog.Warnf(ctx, "event for unknown plugin %q dropped", target)
		return
	}
	if err := conn.Send(e); err != nil {
		dlog.Errorf(ctx, "sending event to plugin %s: %v", target, err)
	}
}

// ConnectPlugin dials and registers one plugin, then starts a goroutine
// (supervised by g) that feeds its replies back into the session queue.
// Called once per configured plugin at daemon startup.
func (m *Manager) ConnectPlugin(ctx context.Context, g *dgroup.Group, name string) error {
	pc, info, err := DialPlugin(ctx, m.SocketDir, name, m.PluginTimeout)
	if err != nil {
		return err
	}
	m.Conns.Add(pc)
	m.Registry.Register(PluginInfo{Name: info.Name, Version: info.Version, IfaceTypes: info.IfaceTypes, Roles: info.Roles})

	g.Go("plugin-"+name, func(ctx context.Context) error {
		err := pc.Serve(ctx, func(e *event.Event) {
			m.Sessions.Push(e)
		})
		m.Registry.Unregister(name)
		m.Conns.Remove(name)
		if err != nil {
			dlog.Errorf(ctx, "plugin %s connection closed: %v", name, err)
		}
		return nil
	})
	return nil
}

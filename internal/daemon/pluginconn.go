package daemon

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"time"

	"github.com/datawire/dlib/dlog"

	"github.com/nispor/nipart/pkg/event"
	"github.com/nispor/nipart/pkg/ipc"
	"github.com/nispor/nipart/pkg/nperr"
	"github.com/nispor/nipart/pkg/plugincmd"
)

const eventEnvelopeKind = "event"

// PluginConn is the daemon's outbound connection to one plugin
// subprocess's socket. It owns the handshake and the
// bidirectional event stream that follows.
type PluginConn struct {
	name string
	conn *ipc.Conn
}

// PluginSocketPath returns the well-known socket path for a plugin named
// name under the daemon's socket directory.
func PluginSocketPath(socketDir, name string) string {
	return filepath.Join(socketDir, "plugin", name)
}

// DialPlugin connects to a plugin's socket, waiting up to ttw for it to
// appear, and performs the QueryPluginInfo handshake.
func DialPlugin(ctx context.Context, socketDir, name string, ttw time.Duration) (*PluginConn, *PluginInfo, error) {
	path := PluginSocketPath(socketDir, name)
	if err := ipc.WaitForSocket(ctx, path, ttw); err != nil {
		return nil, nil, err
	}
	raw, err := ipc.Dial(ctx, path)
	if err != nil {
		return nil, nil, nperr.IpcFailure.New(err)
	}
	pc := &PluginConn{name: name, conn: ipc.NewConn(raw)}

	req, err := newCommandEvent(event.ActionRequest, event.Unicast(name), plugincmd.QueryPluginInfo, nil, defaultPluginTimeout)
	if err != nil {
		return nil, nil, err
	}
	if err := pc.conn.Send(eventEnvelopeKind, req); err != nil {
		return nil, nil, err
	}
	env, err := pc.conn.RecvCommand(ctx)
	if err != nil {
		return nil, nil, err
	}
	var reply event.Event
	if err := json.Unmarshal(env.Data, &reply); err != nil {
		return nil, nil, nperr.InvalidArgument.New(err)
	}
	var info PluginInfo
	if err := json.Unmarshal(reply.Payload, &info); err != nil {
		return nil, nil, nperr.InvalidArgument.New(err)
	}
	dlog.Infof(ctx, "plugin %s connected: version=%s roles=%v iface-types=%v", info.Name, info.Version, info.Roles, info.IfaceTypes)
	return pc, &info, nil
}

// Send forwards e to the plugin over its connection. Called by the
// daemon's event.Router Handler once an event has been resolved to this
// plugin's target name.
func (p *PluginConn) Send(e *event.Event) error {
	return p.conn.Send(eventEnvelopeKind, e)
}

// Close tells the plugin to Quit and closes the connection.
func (p *PluginConn) Close(ctx context.Context) error {
	quit, err := newCommandEvent(event.ActionOneShot, event.Unicast(p.name), plugincmd.Quit, nil, defaultPluginTimeout)
	if err == nil {
		_ = p.conn.Send(eventEnvelopeKind, quit)
	}
	return p.conn.Close()
}

// Serve reads events coming back from the plugin (replies to
// QueryNetworkState/ApplyNetworkState/etc.) and hands each to onEvent
// until the connection closes or ctx is done.
func (p *PluginConn) Serve(ctx context.Context, onEvent func(*event.Event)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		env, err := p.conn.RecvCommand(ctx)
		if err != nil {
			return err
		}
		if env.Kind != eventEnvelopeKind {
			continue
		}
		var e event.Event
		if err := json.Unmarshal(env.Data, &e); err != nil {
			dlog.Warnf(ctx, "plugin %s: malformed event: %v", p.name, err)
			continue
		}
		onEvent(&e)
	}
}

// PluginConns is the daemon's live set of dialed plugin connections,
// looked up by name when the event router resolves a Unicast/Group/
// AllPlugins target to a concrete plugin.
type PluginConns struct {
	mu    sync.RWMutex
	conns map[string]*PluginConn
}

func NewPluginConns() *PluginConns {
	return &PluginConns{conns: make(map[string]*PluginConn)}
}

func (p *PluginConns) Add(pc *PluginConn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conns[pc.name] = pc
}

func (p *PluginConns) Remove(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.conns, name)
}

func (p *PluginConns) Get(name string) (*PluginConn, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pc, ok := p.conns[name]
	return pc, ok
}

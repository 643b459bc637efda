// Package pluginworker implements the external plugin subprocess shim:
// a plugin listens on its own well-known socket, replies to
// QueryPluginInfo at handshake, then services QueryNetworkState /
// ApplyNetworkState / ChangeLogLevel / QueryLogLevel / Quit commands
// until told to stop. It is the one piece every reference plugin
// (cmd/nipart-plugin-kernel, cmd/nipart-plugin-ovs, …) links against so
// they only need to implement the Handler interface.
package pluginworker

import (
	"context"
	"encoding/json"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
	"github.com/sirupsen/logrus"

	"github.com/nispor/nipart/pkg/event"
	"github.com/nispor/nipart/pkg/ipc"
	"github.com/nispor/nipart/pkg/nmstate"
	"github.com/nispor/nipart/pkg/nperr"
	"github.com/nispor/nipart/pkg/plugincmd"
)

const eventEnvelopeKind = "event"

// Handler is the set of operations a concrete plugin implements. The
// default embeddable NoSupportHandler answers every command with
// NoSupport so a plugin only overrides what it actually owns.
type Handler interface {
	Info() PluginInfo
	QueryNetworkState(ctx context.Context, opt json.RawMessage) (*nmstate.NetworkState, error)
	ApplyNetworkState(ctx context.Context, state *nmstate.NetworkState) (*nmstate.NetworkState, error)
}

// PluginInfo mirrors internal/daemon.PluginInfo's wire shape without
// importing the daemon package, since a plugin process is a separate
// binary from the daemon and must not depend on its internals.
type PluginInfo struct {
	Name       string   `json:"name"`
	Version    string   `json:"version"`
	IfaceTypes []string `json:"iface-types"`
	Roles      []string `json:"roles"`
}

// WifiNetwork is one visible access point in a wifi-scan reply.
type WifiNetwork struct {
	Ssid      string `json:"ssid"`
	Bssid     string `json:"bssid,omitempty"`
	Signal    int    `json:"signal,omitempty"`
	Frequency int    `json:"frequency,omitempty"`
	Security  string `json:"security,omitempty"`
}

// WifiConnectRequest is the payload of a wifi-connect command.
type WifiConnectRequest struct {
	Ssid     string `json:"ssid"`
	Password string `json:"password,omitempty"`
}

// WifiHandler is implemented in addition to Handler by plugins
// advertising the wifi role; everyone else gets NoSupport for the two
// wifi commands automatically.
type WifiHandler interface {
	WifiScan(ctx context.Context) ([]WifiNetwork, error)
	WifiConnect(ctx context.Context, req WifiConnectRequest) error
}

// NoSupportHandler is embedded by concrete plugins to get NoSupport
// defaults for every command they don't override.
type NoSupportHandler struct{}

func (NoSupportHandler) QueryNetworkState(context.Context, json.RawMessage) (*nmstate.NetworkState, error) {
	return nil, nperr.NoSupport.New("query-network-state not supported by this plugin")
}

func (NoSupportHandler) ApplyNetworkState(context.Context, *nmstate.NetworkState) (*nmstate.NetworkState, error) {
	return nil, nperr.NoSupport.New("apply-network-state not supported by this plugin")
}

// Worker runs a Handler's socket-serving loop.
type Worker struct {
	name    string
	handler Handler
	logger  *logrus.Logger
}

// New builds a Worker for handler, named name (must match the socket
// path under …/plugin/<name> the daemon dials).
func New(name string, handler Handler) *Worker {
	return &Worker{name: name, handler: handler, logger: logrus.New()}
}

// Serve listens on path and runs the accept loop under g until ctx is
// cancelled or a Quit command is received. A plugin's socket role is
// symmetric to the daemon's own accept loop, just with a different
// command table.
func (w *Worker) Serve(ctx context.Context, g *dgroup.Group, path string) error {
	l, err := ipc.Listen(path, 0o600)
	if err != nil {
		return err
	}
	g.Go("plugin-"+w.name+"-accept", func(ctx context.Context) error {
		go func() {
			<-ctx.Done()
			l.Close()
		}()
		for {
			raw, err := l.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return nil
				default:
					return err
				}
			}
			conn := ipc.NewConn(raw)
			g.Go("plugin-"+w.name+"-conn", func(ctx context.Context) error {
				w.serveConn(ctx, conn)
				return nil
			})
		}
	})
	return nil
}

func (w *Worker) serveConn(ctx context.Context, conn *ipc.Conn) {
	defer conn.Close()
	for {
		env, err := conn.RecvCommand(ctx)
		if err != nil {
			if nperr.GetKind(err) != nperr.IpcClosed {
				dlog.Errorf(ctx, "plugin %s: reading command: %v", w.name, err)
			}
			return
		}
		if env.Kind != eventEnvelopeKind {
			continue
		}
		var req event.Event
		if err := json.Unmarshal(env.Data, &req); err != nil {
			dlog.Warnf(ctx, "plugin %s: malformed event: %v", w.name, err)
			continue
		}
		reply, quit := w.handle(ctx, &req)
		if reply != nil {
			if err := conn.Send(eventEnvelopeKind, reply); err != nil {
				dlog.Errorf(ctx, "plugin %s: sending reply: %v", w.name, err)
				return
			}
		}
		if quit {
			return
		}
	}
}

// handle dispatches one incoming request event by its tagged Command
// and builds the reply event, if any.
func (w *Worker) handle(ctx context.Context, req *event.Event) (reply *event.Event, quit bool) {
	switch plugincmd.Command(req.Command) {
	case plugincmd.QueryPluginInfo:
		r, _ := req.Reply(event.Unicast(w.name), w.handler.Info())
		return r, false
	case plugincmd.QueryNetworkState:
		state, err := w.handler.QueryNetworkState(ctx, req.Payload)
		return w.replyOrError(req, state, err), false
	case plugincmd.ApplyNetworkState:
		var desired nmstate.NetworkState
		if err := json.Unmarshal(req.Payload, &desired); err != nil {
			return w.replyOrError(req, nil, nperr.InvalidArgument.New(err)), false
		}
		applied, err := w.handler.ApplyNetworkState(ctx, &desired)
		return w.replyOrError(req, applied, err), false
	case plugincmd.QueryLogLevel:
		r, _ := req.Reply(event.Unicast(w.name), w.logger.GetLevel().String())
		return r, false
	case plugincmd.ChangeLogLevel:
		var level string
		_ = json.Unmarshal(req.Payload, &level)
		if parsed, err := logrus.ParseLevel(level); err == nil {
			w.logger.SetLevel(parsed)
		}
		r, _ := req.Reply(event.Unicast(w.name), w.logger.GetLevel().String())
		return r, false
	case plugincmd.WifiScan:
		wh, ok := w.handler.(WifiHandler)
		if !ok {
			return w.replyOrError(req, nil, nperr.NoSupport.New("wifi-scan not supported by this plugin")), false
		}
		networks, err := wh.WifiScan(ctx)
		return w.replyOrError(req, networks, err), false
	case plugincmd.WifiConnect:
		wh, ok := w.handler.(WifiHandler)
		if !ok {
			return w.replyOrError(req, nil, nperr.NoSupport.New("wifi-connect not supported by this plugin")), false
		}
		var creq WifiConnectRequest
		if err := json.Unmarshal(req.Payload, &creq); err != nil {
			return w.replyOrError(req, nil, nperr.InvalidArgument.New(err)), false
		}
		if err := wh.WifiConnect(ctx, creq); err != nil {
			return w.replyOrError(req, nil, err), false
		}
		return w.replyOrError(req, "connected", nil), false
	case plugincmd.Quit:
		return nil, true
	default:
		err := nperr.NoSupport.Newf("unknown command %q", req.Command)
		r, _ := req.Reply(event.Unicast(w.name), nperr.ErrorReply{Kind: nperr.GetKind(err).String(), Message: err.Error()})
		return r, false
	}
}

func (w *Worker) replyOrError(req *event.Event, payload interface{}, err error) *event.Event {
	if err != nil {
		r, _ := req.Reply(event.Unicast(w.name), nperr.ErrorReply{Kind: nperr.GetKind(err).String(), Message: err.Error()})
		return r
	}
	r, _ := req.Reply(event.Unicast(w.name), payload)
	return r
}

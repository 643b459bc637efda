// Package client is the library side of the daemon's client socket:
// it dials the daemon, speaks the framed envelope protocol of
// pkg/ipc, and exposes one typed method per client command. The CLI
// (cmd/nipartc) is a thin layer over this package; other programs may
// embed it directly.
package client

import (
	"context"
	"encoding/json"
	"path/filepath"

	"github.com/nispor/nipart/pkg/clientapi"
	"github.com/nispor/nipart/pkg/ipc"
	"github.com/nispor/nipart/pkg/nmstate"
	"github.com/nispor/nipart/pkg/nperr"
)

// DefaultSocketDir is where a default-configured daemon puts its
// sockets. The daemon reads NIPART_SOCKET_DIR to choose another
// directory; Connect uses DefaultSocketDir when given an empty one.
const DefaultSocketDir = "/var/run/nipart/sockets"

// SocketPath returns the daemon's client API socket under socketDir.
func SocketPath(socketDir string) string {
	return filepath.Join(socketDir, "daemon")
}

// Client is one connection to the daemon's API socket. It is not safe
// for concurrent use; open one per goroutine.
type Client struct {
	conn *ipc.Conn
}

// Connect dials the daemon's API socket.
func Connect(ctx context.Context, socketDir string) (*Client, error) {
	if socketDir == "" {
		socketDir = DefaultSocketDir
	}
	raw, err := ipc.Dial(ctx, SocketPath(socketDir))
	if err != nil {
		return nil, nperr.IpcFailure.Newf("connecting to daemon: %w", err)
	}
	return &Client{conn: ipc.NewConn(raw)}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// roundTrip sends one command and decodes its reply into out (which may
// be nil when the caller only cares about success). Out-of-band log
// envelopes streamed by the daemon during a long apply are printed
// through ctx's logger as they arrive.
func (c *Client) roundTrip(ctx context.Context, kind clientapi.Kind, payload, out interface{}) error {
	if err := c.conn.Send(string(kind), payload); err != nil {
		return err
	}
	env, err := c.conn.RecvCommand(ctx)
	if err != nil {
		return err
	}
	if clientapi.Kind(env.Kind) == clientapi.ErrorKind {
		var reply clientapi.ErrorReply
		if err := json.Unmarshal(env.Data, &reply); err != nil {
			return nperr.IpcFailure.New(err)
		}
		return nperr.KindFromString(reply.Kind).New(reply.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return nperr.IpcFailure.Newf("decoding %s reply: %w", kind, err)
	}
	return nil
}

// Ping checks daemon liveness; any uid may call it.
func (c *Client) Ping(ctx context.Context) error {
	var pong string
	if err := c.roundTrip(ctx, clientapi.Ping, nil, &pong); err != nil {
		return err
	}
	if pong != "pong" {
		return nperr.DaemonFailure.Newf("unexpected ping reply %q", pong)
	}
	return nil
}

// QueryNetworkState retrieves the running, saved or post-apply state.
func (c *Client) QueryNetworkState(ctx context.Context, req clientapi.QueryNetworkStateRequest) (*nmstate.NetworkState, error) {
	var state nmstate.NetworkState
	if err := c.roundTrip(ctx, clientapi.QueryNetworkState, req, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// ApplyNetworkState pushes a desired state and returns the post-apply
// diff the daemon computed.
func (c *Client) ApplyNetworkState(ctx context.Context, req clientapi.ApplyNetworkStateRequest) (*nmstate.NetworkState, error) {
	var diff nmstate.NetworkState
	if err := c.roundTrip(ctx, clientapi.ApplyNetworkState, req, &diff); err != nil {
		return nil, err
	}
	return &diff, nil
}

// QueryCommits lists recorded applies, newest first.
func (c *Client) QueryCommits(ctx context.Context, opt clientapi.CommitQueryOption) ([]*clientapi.NetworkCommit, error) {
	var commits []*clientapi.NetworkCommit
	if err := c.roundTrip(ctx, clientapi.QueryCommits, opt, &commits); err != nil {
		return nil, err
	}
	return commits, nil
}

// RemoveCommits drops the commits named by ids, returning how many the
// daemon found.
func (c *Client) RemoveCommits(ctx context.Context, ids []string) (int, error) {
	var removed int
	if err := c.roundTrip(ctx, clientapi.RemoveCommits, ids, &removed); err != nil {
		return 0, err
	}
	return removed, nil
}

// QueryLogLevel reports the daemon's and every plugin's current log
// level, keyed by component name.
func (c *Client) QueryLogLevel(ctx context.Context) (map[string]string, error) {
	var levels map[string]string
	if err := c.roundTrip(ctx, clientapi.QueryLogLevel, nil, &levels); err != nil {
		return nil, err
	}
	return levels, nil
}

// ChangeLogLevel sets the daemon's and every plugin's log level.
func (c *Client) ChangeLogLevel(ctx context.Context, level string) (map[string]string, error) {
	var levels map[string]string
	if err := c.roundTrip(ctx, clientapi.ChangeLogLevel, level, &levels); err != nil {
		return nil, err
	}
	return levels, nil
}

// WifiScan lists access points visible to the wifi plugins.
func (c *Client) WifiScan(ctx context.Context) ([]clientapi.WifiNetwork, error) {
	var networks []clientapi.WifiNetwork
	if err := c.roundTrip(ctx, clientapi.WifiScan, nil, &networks); err != nil {
		return nil, err
	}
	return networks, nil
}

// WifiConnect asks the wifi plugins to associate with ssid.
func (c *Client) WifiConnect(ctx context.Context, req clientapi.WifiConnectRequest) error {
	return c.roundTrip(ctx, clientapi.WifiConnect, req, nil)
}

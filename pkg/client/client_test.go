package client

import (
	"context"
	"encoding/json"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nispor/nipart/pkg/clientapi"
	"github.com/nispor/nipart/pkg/ipc"
	"github.com/nispor/nipart/pkg/nperr"
)

// pipeDaemon runs a one-request fake daemon on the far end of a pipe,
// answering with the given envelope kind and payload.
func pipeDaemon(t *testing.T, replyKind clientapi.Kind, payload interface{}) *Client {
	p1, p2 := net.Pipe()
	go func() {
		conn := ipc.NewConn(p2)
		defer conn.Close()
		if _, err := conn.Recv(); err != nil {
			return
		}
		_ = conn.Send(string(replyKind), payload)
	}()
	t.Cleanup(func() { p1.Close() })
	return &Client{conn: ipc.NewConn(p1)}
}

func TestPing(t *testing.T) {
	c := pipeDaemon(t, clientapi.ReplyKind, "pong")
	require.NoError(t, c.Ping(context.Background()))
}

func TestErrorReplyKeepsKind(t *testing.T) {
	c := pipeDaemon(t, clientapi.ErrorKind, clientapi.ErrorReply{
		Kind:    nperr.PermissionDeny.String(),
		Message: "uid 1000 may not invoke apply-network-state",
	})
	_, err := c.QueryNetworkState(context.Background(), clientapi.QueryNetworkStateRequest{IncludeSecrets: true})
	require.Error(t, err)
	require.Equal(t, nperr.PermissionDeny, nperr.GetKind(err))
}

func TestLogEnvelopesAreTransparent(t *testing.T) {
	p1, p2 := net.Pipe()
	go func() {
		conn := ipc.NewConn(p2)
		defer conn.Close()
		if _, err := conn.Recv(); err != nil {
			return
		}
		_ = conn.SendLog("info", "applying eth0")
		_ = conn.Send(string(clientapi.ReplyKind), "pong")
	}()
	t.Cleanup(func() { p1.Close() })
	c := &Client{conn: ipc.NewConn(p1)}
	require.NoError(t, c.Ping(context.Background()))
}

func TestQueryLogLevel(t *testing.T) {
	c := pipeDaemon(t, clientapi.ReplyKind, map[string]string{"daemon": "info", "kernel": "debug"})
	levels, err := c.QueryLogLevel(context.Background())
	require.NoError(t, err)
	require.Equal(t, "debug", levels["kernel"])
}

func TestMalformedReplySurfacesIpcFailure(t *testing.T) {
	c := pipeDaemon(t, clientapi.ReplyKind, json.RawMessage(`"not-a-state-document"`))
	_, err := c.QueryLogLevel(context.Background())
	require.Error(t, err)
	require.Equal(t, nperr.IpcFailure, nperr.GetKind(err))
}

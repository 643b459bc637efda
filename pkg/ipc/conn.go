package ipc

import (
	"context"
	"encoding/json"
	"net"
	"sync"

	"github.com/datawire/dlib/dlog"

	"github.com/nispor/nipart/pkg/nperr"
)

// Envelope is the typed message every frame carries:
// {kind, data}. Kind "log" is the out-of-band log channel, never a
// command reply.
type Envelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// LogMessage is the payload of an out-of-band "log" envelope.
type LogMessage struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

const logKind = "log"

// Conn wraps a net.Conn with the envelope framing and a dedicated write
// mutex, since both directions (commands and out-of-band logs) may write
// concurrently from different goroutines.
type Conn struct {
	net.Conn
	writeMu sync.Mutex
}

func NewConn(c net.Conn) *Conn {
	return &Conn{Conn: c}
}

// Send writes a single typed envelope.
func (c *Conn) Send(kind string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return nperr.Bug.New(err)
	}
	payload, err := json.Marshal(Envelope{Kind: kind, Data: raw})
	if err != nil {
		return nperr.Bug.New(err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteFrame(c.Conn, payload)
}

// Recv reads the next typed envelope. Callers that want to transparently
// surface out-of-band logs should use RecvCommand instead.
func (c *Conn) Recv() (*Envelope, error) {
	payload, err := ReadFrame(c.Conn)
	if err != nil {
		return nil, err
	}
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, nperr.InvalidArgument.New(err)
	}
	return &env, nil
}

// RecvCommand reads envelopes until it finds one that isn't a log
// message, logging each log envelope through ctx's logger as it passes
// through.
func (c *Conn) RecvCommand(ctx context.Context) (*Envelope, error) {
	for {
		env, err := c.Recv()
		if err != nil {
			return nil, err
		}
		if env.Kind != logKind {
			return env, nil
		}
		var msg LogMessage
		if err := json.Unmarshal(env.Data, &msg); err == nil {
			dlog.Infof(ctx, "[peer] %s: %s", msg.Level, msg.Text)
		}
	}
}

// SendLog emits an out-of-band log envelope.
func (c *Conn) SendLog(level, text string) error {
	return c.Send(logKind, LogMessage{Level: level, Text: text})
}

// PeerUID returns the uid of the process on the other end of this
// connection, used for privileged-command gating.
func (c *Conn) PeerUID() (uint32, error) {
	cred, err := PeerCredentials(c.Conn)
	if err != nil {
		return 0, err
	}
	return cred.Uid, nil
}

// Package clientapi defines the wire contract of the daemon's client
// socket: the command kinds, their request and
// reply payload shapes, and the permission rule a caller's uid is
// checked against. Both the daemon's server (internal/daemon) and any
// client (cmd/nipartc, or a library embedder) import this package so the
// two sides never drift.
package clientapi

import (
	"time"

	"github.com/nispor/nipart/pkg/nmstate"
	"github.com/nispor/nipart/pkg/nperr"
)

// Kind is the envelope Kind a client sends as its request and the
// daemon echoes back on its reply.
type Kind string

const (
	Ping              Kind = "ping"
	QueryNetworkState Kind = "query-network-state"
	ApplyNetworkState Kind = "apply-network-state"
	QueryCommits      Kind = "query-commits"
	RemoveCommits     Kind = "remove-commits"
	QueryLogLevel     Kind = "query-log-level"
	ChangeLogLevel    Kind = "change-log-level"
	WifiScan          Kind = "wifi-scan"
	WifiConnect       Kind = "wifi-connect"
)

// ReplyKind and ErrorKind tag the daemon's response envelope.
const (
	ReplyKind Kind = "reply"
	ErrorKind Kind = "error"
)

// NetStateKind selects which view of state QueryNetworkState wants.
type NetStateKind string

const (
	RunningNetworkState NetStateKind = "running"
	SavedNetworkState   NetStateKind = "saved"
	PostNetworkState    NetStateKind = "post"
)

// QueryNetworkStateRequest is the payload of a QueryNetworkState command.
type QueryNetworkStateRequest struct {
	Version        int          `json:"version"`
	Kind           NetStateKind `json:"kind"`
	IncludeSecrets bool         `json:"include-secrets"`
}

// ApplyOption tunes an ApplyNetworkState command.
type ApplyOption struct {
	NoVerify       bool `json:"no-verify"`
	MemoryOnly     bool `json:"memory-only"`
	Diff           bool `json:"diff"`
	DhcpInNoDaemon bool `json:"dhcp-in-no-daemon"`
}

// ApplyNetworkStateRequest is the payload of an ApplyNetworkState
// command: the desired document plus its apply options.
type ApplyNetworkStateRequest struct {
	State  *nmstate.NetworkState `json:"state"`
	Option ApplyOption           `json:"option"`
}

// WifiNetwork is one entry of a wifi-scan reply.
type WifiNetwork struct {
	Ssid      string `json:"ssid"`
	Bssid     string `json:"bssid,omitempty"`
	Signal    int    `json:"signal,omitempty"`
	Frequency int    `json:"frequency,omitempty"`
	Security  string `json:"security,omitempty"`
}

// WifiConnectRequest is the payload of a WifiConnect command.
type WifiConnectRequest struct {
	Ssid     string `json:"ssid"`
	Password string `json:"password,omitempty"`
}

// NetworkCommit is one recorded successful apply, as QueryCommits reports it.
type NetworkCommit struct {
	ID        string                `json:"id"`
	Persisted bool                  `json:"persisted"`
	Time      time.Time             `json:"time"`
	State     *nmstate.NetworkState `json:"state"`
}

// CommitQueryOption selects which commits QueryCommits returns. Count 0
// means all.
type CommitQueryOption struct {
	Count         uint32 `json:"count"`
	PersistedOnly bool   `json:"persisted-only"`
}

// ErrorReply is the Data of an ErrorKind envelope.
type ErrorReply = nperr.ErrorReply

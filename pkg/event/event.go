// Package event implements nipart's addressed event model:
// events carry a UUIDv7 identity, an action, a payload, and a source/
// destination address pair that the router uses to decide fan-out.
package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/nispor/nipart/pkg/nuuid"
)

// Action is the event's verb.
type Action string

const (
	ActionOneShot Action = "one-shot"
	ActionRequest Action = "request"
	ActionDone    Action = "done"
	ActionCancel  Action = "cancel"
)

// AddressKind tags the concrete variant of an Address.
type AddressKind string

const (
	AddressUser      AddressKind = "user"
	AddressDaemon    AddressKind = "daemon"
	AddressCommander AddressKind = "commander"
	AddressUnicast   AddressKind = "unicast"
	AddressGroup     AddressKind = "group"
	AddressAllPlugins AddressKind = "all-plugins"
)

// Address is nipart's addressing scheme: User | Daemon | Commander |
// Unicast(name) | Group(role) | AllPlugins. Go has no sum types, so Kind
// is the discriminant and Name carries the Unicast plugin name or the
// Group role depending on Kind.
type Address struct {
	Kind AddressKind `json:"kind"`
	Name string      `json:"name,omitempty"`
}

func User() Address                  { return Address{Kind: AddressUser} }
func Daemon() Address                { return Address{Kind: AddressDaemon} }
func Commander() Address             { return Address{Kind: AddressCommander} }
func Unicast(name string) Address    { return Address{Kind: AddressUnicast, Name: name} }
func Group(role string) Address      { return Address{Kind: AddressGroup, Name: role} }
func AllPlugins() Address            { return Address{Kind: AddressAllPlugins} }

// Event is nipart's unit of communication between the daemon, the
// commander, and plugin workers.
type Event struct {
	UUID           uuid.UUID       `json:"uuid"`
	RefUUID        *uuid.UUID      `json:"ref-uuid,omitempty"`
	Action         Action          `json:"action"`
	// Command names the plugin-facing operation this event carries.
	// Empty on events that
	// never cross the daemon-plugin boundary (e.g. a pure session
	// reply consumed by the commander itself).
	Command        string          `json:"command,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	Src            Address         `json:"src"`
	Dst            Address         `json:"dst"`
	PostponeMillis int             `json:"postpone-millis,omitempty"`
	Timeout        time.Duration   `json:"timeout"`
}

// New builds a fresh event with a nonzero UUIDv7 identity.
func New(action Action, src, dst Address, payload interface{}, timeout time.Duration) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		UUID:    nuuid.New(),
		Action:  action,
		Payload: raw,
		Src:     src,
		Dst:     dst,
		Timeout: timeout,
	}, nil
}

// Reply builds a Done/OneShot-style event replying to req, with RefUUID
// set to req's identity.
func (req *Event) Reply(src Address, payload interface{}) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	reqUUID := req.UUID
	return &Event{
		UUID:    nuuid.New(),
		RefUUID: &reqUUID,
		Action:  ActionDone,
		Payload: raw,
		Src:     src,
		Dst:     req.Src,
	}, nil
}

// Reissue clones an event for a retry, bumping postponeMillis so the
// router waits before redelivery.
func (e *Event) Reissue(postponeMillis int) *Event {
	clone := *e
	clone.PostponeMillis = postponeMillis
	return &clone
}

package daemon

import (
	"time"

	"github.com/nispor/nipart/pkg/event"
	"github.com/nispor/nipart/pkg/plugincmd"
)

// newCommandEvent builds a daemon-originated event tagged with the
// plugin command it carries, so a daemon-side plugin
// connection knows which handler to invoke on the far end without
// having to inspect the payload's shape.
func newCommandEvent(action event.Action, dst event.Address, cmd plugincmd.Command, payload interface{}, timeout time.Duration) (*event.Event, error) {
	e, err := event.New(action, event.Daemon(), dst, payload, timeout)
	if err != nil {
		return nil, err
	}
	e.Command = string(cmd)
	return e, nil
}

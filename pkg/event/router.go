package event

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"

	"github.com/nispor/nipart/pkg/nperr"
)

// Registry resolves a Group(role) or Unicast(name) address to the set of
// plugin names that should receive an event. The router only reads the
// plugin registry, so this interface needs no mutation methods.
type Registry interface {
	// PluginsWithRole returns every plugin name advertising role.
	PluginsWithRole(role string) []string
	// HasPlugin reports whether name is a known plugin.
	HasPlugin(name string) bool
	// AllPluginNames returns every known plugin except exclude.
	AllPluginNames(exclude string) []string
}

// Handler receives a routed event along with the concrete target queue it
// was resolved to (a plugin name, or one of "user"/"daemon"/"commander"
// for the daemon's own logical queues). The target lets a Group/AllPlugins
// fan-out tell its N identical invocations apart so each can be written to
// the right plugin connection. The handler returns nothing, so a failed
// delivery never stops the router; a dead-lettered event is the
// handler's responsibility to surface (e.g. back to a waiting session).
type Handler func(ctx context.Context, target string, e *Event)

// Router dispatches events to per-destination queues, each drained by its
// own goroutine to provide FIFO delivery per destination without
// serializing different destinations against each other.
type Router struct {
	registry Registry
	handler  Handler

	mu       sync.Mutex
	queues   map[string]chan *Event
	seen     map[uuid.UUID]time.Time
	group    *dgroup.Group
}

// NewRouter creates a Router. Call Run to start delivering; Dispatch may
// be called concurrently from any goroutine once Run has started.
func NewRouter(registry Registry, handler Handler) *Router {
	return &Router{
		registry: registry,
		handler:  handler,
		queues:   make(map[string]chan *Event),
		seen:     make(map[uuid.UUID]time.Time),
	}
}

// Run starts the router's supervising goroutine group; it returns once
// ctx is cancelled and every queue goroutine has stopped. Events still
// queued at that point are not delivered.
func (r *Router) Run(ctx context.Context) error {
	r.mu.Lock()
	r.group = dgroup.NewGroup(ctx, dgroup.GroupConfig{})
	r.mu.Unlock()
	<-ctx.Done()
	return r.group.Wait()
}

// Dispatch resolves dst to one or more concrete plugin queues (expanding
// Group/AllPlugins) and enqueues e on each, honoring PostponeMillis and
// dropping duplicates by UUID.
func (r *Router) Dispatch(ctx context.Context, e *Event) error {
	if r.isDuplicate(e.UUID) {
		return nil
	}
	targets, err := r.resolve(e.Dst)
	if err != nil {
		return err
	}
	for _, target := range targets {
		r.enqueue(ctx, target, e)
	}
	return nil
}

func (r *Router) resolve(dst Address) ([]string, error) {
	switch dst.Kind {
	case AddressUnicast:
		if !r.registry.HasPlugin(dst.Name) {
			return nil, nperr.NoSupport.Newf("no plugin named %s", dst.Name)
		}
		return []string{dst.Name}, nil
	case AddressGroup:
		return r.registry.PluginsWithRole(dst.Name), nil
	case AddressAllPlugins:
		return r.registry.AllPluginNames(""), nil
	default:
		// User/Daemon/Commander route to a single well-known logical
		// queue keyed by the address kind itself.
		return []string{string(dst.Kind)}, nil
	}
}

func (r *Router) isDuplicate(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seen[id]; ok {
		return true
	}
	r.seen[id] = time.Now()
	if len(r.seen) > 10000 {
		r.evictOldSeenLocked()
	}
	return false
}

func (r *Router) evictOldSeenLocked() {
	cutoff := time.Now().Add(-10 * time.Minute)
	for id, t := range r.seen {
		if t.Before(cutoff) {
			delete(r.seen, id)
		}
	}
}

// enqueue places e on target's queue. The common immediate path sends
// synchronously from Dispatch's caller so two events to the same target
// keep their dispatch order (FIFO per (src,dst) pair); only a postponed
// redelivery goes through a timer goroutine, where falling behind later
// traffic is the point of the hint.
func (r *Router) enqueue(ctx context.Context, target string, e *Event) {
	q := r.queueFor(ctx, target)
	if e.PostponeMillis > 0 {
		go func() {
			select {
			case <-time.After(time.Duration(e.PostponeMillis) * time.Millisecond):
			case <-ctx.Done():
				return
			}
			select {
			case q <- e:
			case <-ctx.Done():
			}
		}()
		return
	}
	select {
	case q <- e:
	case <-ctx.Done():
	}
}

func (r *Router) queueFor(ctx context.Context, target string) chan *Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[target]
	if !ok {
		q = make(chan *Event, 64)
		r.queues[target] = q
		if r.group != nil {
			r.group.Go("queue-"+target, func(ctx context.Context) error {
				r.drain(ctx, target, q)
				return nil
			})
		} else {
			// Dispatch raced ahead of Run; drain under the dispatcher's
			// own context until the supervised group exists.
			go r.drain(ctx, target, q)
		}
	}
	return q
}

func (r *Router) drain(ctx context.Context, target string, q chan *Event) {
	for {
		select {
		case e := <-q:
			r.handler(ctx, target, e)
		case <-ctx.Done():
			dlog.Debugf(ctx, "event router: queue %s draining on shutdown", target)
			return
		}
	}
}

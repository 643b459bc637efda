// Package session implements the daemon-wide pending-request table keyed
// by UUID: open a session expecting N replies by a deadline,
// push replies as they arrive, and drain whatever is either complete or
// expired.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nispor/nipart/pkg/event"
)

// Session is a single pending request awaiting replies.
type Session struct {
	UUID                uuid.UUID
	Request             *event.Event
	ExpectedReplyCount  int
	Deadline            time.Time
	Replies             []*event.Event
}

// Expired reports whether now is past this session's deadline.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.Deadline)
}

// Done reports whether this session has collected every reply it expects.
func (s *Session) Done() bool {
	return len(s.Replies) >= s.ExpectedReplyCount
}

// Queue is the pending-request table, safe for concurrent use by
// the event router (Push) and the commander/workflow engine (Open, Poll,
// Cancel).
type Queue struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

func NewQueue() *Queue {
	return &Queue{sessions: make(map[uuid.UUID]*Session)}
}

// Open registers a new session for request, expecting expected replies
// within timeout.
func (q *Queue) Open(request *event.Event, expected int, timeout time.Duration) *Session {
	s := &Session{
		UUID:               request.UUID,
		Request:            request,
		ExpectedReplyCount: expected,
		Deadline:           time.Now().Add(timeout),
	}
	q.mu.Lock()
	q.sessions[s.UUID] = s
	q.mu.Unlock()
	return s
}

// Push appends e to the session its RefUUID names. An event whose
// session has already been drained (expired or previously completed) is
// silently dropped.
func (q *Queue) Push(e *event.Event) {
	if e.RefUUID == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.sessions[*e.RefUUID]
	if !ok {
		return
	}
	s.Replies = append(s.Replies, e)
}

// Cancel withdraws a pending session, as a Cancel event does. It
// returns the removed session, or nil if none was
// pending under that UUID.
func (q *Queue) Cancel(sessionUUID uuid.UUID) *Session {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.sessions[sessionUUID]
	if !ok {
		return nil
	}
	delete(q.sessions, sessionUUID)
	return s
}

// DrainDoneOrExpired removes and returns every session that is either
// complete or past its deadline.
func (q *Queue) DrainDoneOrExpired() []*Session {
	now := time.Now()
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*Session
	for id, s := range q.sessions {
		if s.Done() || s.Expired(now) {
			out = append(out, s)
			delete(q.sessions, id)
		}
	}
	return out
}

// Len reports the number of pending sessions, used by tests and metrics
// to confirm the queue doesn't leak.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.sessions)
}

// Poll reports whether the session named by id is done or expired, and
// its replies so far, all read under the queue's lock: a caller sharing
// a *Session across the router's Push and its own wait loop must go
// through this rather than reading a Session's fields directly, since
// Push mutates Replies without the caller's knowledge.
func (q *Queue) Poll(id uuid.UUID) (done, expired bool, replies []*event.Event, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, found := q.sessions[id]
	if !found {
		return false, false, nil, false
	}
	now := time.Now()
	return s.Done(), s.Expired(now), append([]*event.Event(nil), s.Replies...), true
}

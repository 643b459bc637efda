package daemon

import (
	"context"
	"sync"

	"github.com/datawire/dlib/dlog"
)

// ApplyLock is the single process-wide mutual-exclusion primitive that
// serializes apply workflows, plus an atomic record of the current
// holder's PID. The daemon logs waiting-on and acquired transitions so a
// blocked client can be told "waiting on PID X's transaction."
type ApplyLock struct {
	mu       sync.Mutex
	holder   int
	waitCond *sync.Cond
}

func NewApplyLock() *ApplyLock {
	l := &ApplyLock{}
	l.waitCond = sync.NewCond(&l.mu)
	return l
}

// Acquire blocks until the lock is free, then records pid as the holder.
// It logs the PID it is waiting behind, if any, and the PID once
// acquired.
func (l *ApplyLock) Acquire(ctx context.Context, pid int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holder != 0 {
		dlog.Infof(ctx, "apply lock: pid %d waiting on pid %d's transaction", pid, l.holder)
	}
	for l.holder != 0 {
		l.waitCond.Wait()
	}
	l.holder = pid
	dlog.Infof(ctx, "apply lock: acquired by pid %d", pid)
}

// Release drops the holder PID to 0 and wakes the next waiter.
// Must be called on every exit path of an apply workflow.
func (l *ApplyLock) Release(ctx context.Context) {
	l.mu.Lock()
	prev := l.holder
	l.holder = 0
	l.mu.Unlock()
	dlog.Infof(ctx, "apply lock: released by pid %d", prev)
	l.waitCond.Broadcast()
}

// Holder returns the PID currently holding the lock, or 0 if free.
func (l *ApplyLock) Holder() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holder
}

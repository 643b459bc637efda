package daemon

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyLockMutualExclusion(t *testing.T) {
	l := NewApplyLock()
	ctx := context.Background()

	l.Acquire(ctx, 100)
	assert.Equal(t, 100, l.Holder())

	acquired := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.Acquire(ctx, 200)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should not succeed while first holds the lock")
	case <-time.After(50 * time.Millisecond):
	}

	l.Release(ctx)
	wg.Wait()
	assert.Equal(t, 200, l.Holder())
	l.Release(ctx)
	assert.Equal(t, 0, l.Holder())
}

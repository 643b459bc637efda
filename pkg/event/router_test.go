package event

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	roles map[string][]string
	all   []string
}

func (f *fakeRegistry) PluginsWithRole(role string) []string { return f.roles[role] }
func (f *fakeRegistry) HasPlugin(name string) bool {
	for _, n := range f.all {
		if n == name {
			return true
		}
	}
	return false
}
func (f *fakeRegistry) AllPluginNames(exclude string) []string {
	out := make([]string, 0, len(f.all))
	for _, n := range f.all {
		if n != exclude {
			out = append(out, n)
		}
	}
	return out
}

func TestRouterDeliversToGroupMembers(t *testing.T) {
	reg := &fakeRegistry{roles: map[string][]string{"kernel": {"plugin-a", "plugin-b"}}, all: []string{"plugin-a", "plugin-b"}}

	var mu sync.Mutex
	received := map[string]int{}
	handler := func(_ context.Context, target string, _ *Event) {
		mu.Lock()
		received[target]++
		mu.Unlock()
	}

	r := NewRouter(reg, handler)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	ev, err := New(ActionRequest, Daemon(), Group("kernel"), nil, time.Second)
	require.NoError(t, err)
	require.NoError(t, r.Dispatch(ctx, ev))

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 1, received["plugin-a"])
	assert.Equal(t, 1, received["plugin-b"])
	mu.Unlock()
	cancel()
	<-done
}

func TestRouterKeepsDispatchOrderPerTarget(t *testing.T) {
	reg := &fakeRegistry{all: []string{"plugin-a"}}

	var mu sync.Mutex
	var order []string
	handler := func(_ context.Context, _ string, e *Event) {
		var tag string
		_ = json.Unmarshal(e.Payload, &tag)
		mu.Lock()
		order = append(order, tag)
		mu.Unlock()
	}

	r := NewRouter(reg, handler)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)

	want := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		tag := string(rune('a' + i))
		want = append(want, tag)
		ev, err := New(ActionOneShot, Daemon(), Unicast("plugin-a"), tag, time.Second)
		require.NoError(t, err)
		require.NoError(t, r.Dispatch(ctx, ev))
	}

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, want, order)
	mu.Unlock()
	cancel()
	<-done
}

func TestRouterDropsDuplicateUUID(t *testing.T) {
	reg := &fakeRegistry{all: []string{"plugin-a"}}
	var mu sync.Mutex
	count := 0
	handler := func(_ context.Context, _ string, _ *Event) {
		mu.Lock()
		count++
		mu.Unlock()
	}
	r := NewRouter(reg, handler)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)

	ev, err := New(ActionOneShot, Daemon(), Unicast("plugin-a"), nil, time.Second)
	require.NoError(t, err)
	require.NoError(t, r.Dispatch(ctx, ev))
	require.NoError(t, r.Dispatch(ctx, ev))

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 1, count)
	mu.Unlock()
	cancel()
	<-done
}

func TestRouterUnicastToUnknownPluginFails(t *testing.T) {
	reg := &fakeRegistry{}
	r := NewRouter(reg, func(context.Context, string, *Event) {})
	ev, err := New(ActionOneShot, Daemon(), Unicast("ghost"), nil, time.Second)
	require.NoError(t, err)
	_, resolveErr := r.resolve(ev.Dst)
	require.Error(t, resolveErr)
}

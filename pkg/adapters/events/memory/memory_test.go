package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aescanero/dago-direct/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type sink struct {
	mu   sync.Mutex
	seen []string
}

func (s *sink) handle(_ context.Context, e domain.Event) error {
	s.mu.Lock()
	s.seen = append(s.seen, e.ID)
	s.mu.Unlock()
	return nil
}

func (s *sink) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.seen...)
}

func TestInMemoryEventBus_DeliversInOrder(t *testing.T) {
	bus := NewInMemoryEventBus(64, zaptest.NewLogger(t))
	defer bus.Close()

	a, b := &sink{}, &sink{}
	require.NoError(t, bus.Subscribe(context.Background(), "t", a.handle))
	require.NoError(t, bus.Subscribe(context.Background(), "t", b.handle))

	want := []string{"1", "2", "3", "4"}
	for _, id := range want {
		require.NoError(t, bus.Publish(context.Background(), "t", domain.Event{ID: id}))
	}
	require.NoError(t, bus.Publish(context.Background(), "other", domain.Event{ID: "x"}))

	assert.Eventually(t, func() bool { return len(a.ids()) == 4 && len(b.ids()) == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, a.ids())
	assert.Equal(t, want, b.ids())
	assert.Zero(t, bus.Dropped())
}

func TestInMemoryEventBus_DropsWhenSubscriberIsFull(t *testing.T) {
	bus := NewInMemoryEventBus(1, zaptest.NewLogger(t))
	defer bus.Close()

	block := make(chan struct{})
	entered := make(chan struct{}, 1)
	require.NoError(t, bus.Subscribe(context.Background(), "t", func(context.Context, domain.Event) error {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-block
		return nil
	}))

	require.NoError(t, bus.Publish(context.Background(), "t", domain.Event{ID: "1"}))
	<-entered
	// the handler is busy with 1, so 2 fills the queue and 3 is dropped
	require.NoError(t, bus.Publish(context.Background(), "t", domain.Event{ID: "2"}))
	require.NoError(t, bus.Publish(context.Background(), "t", domain.Event{ID: "3"}))

	assert.Equal(t, int64(1), bus.Dropped())
	close(block)
}

func TestInMemoryEventBus_UnsubscribeOnCancel(t *testing.T) {
	bus := NewInMemoryEventBus(8, zaptest.NewLogger(t))
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	s := &sink{}
	require.NoError(t, bus.Subscribe(ctx, "t", s.handle))
	cancel()

	assert.Eventually(t, func() bool {
		bus.mu.RLock()
		defer bus.mu.RUnlock()
		return len(bus.subscribers["t"]) == 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, bus.Publish(context.Background(), "t", domain.Event{ID: "late"}))
	assert.Empty(t, s.ids())
}

func TestInMemoryEventBus_UnsubscribeAndClose(t *testing.T) {
	bus := NewInMemoryEventBus(8, nil)

	s := &sink{}
	require.NoError(t, bus.Subscribe(context.Background(), "t", s.handle))
	require.NoError(t, bus.Unsubscribe(context.Background(), "t"))
	require.NoError(t, bus.Publish(context.Background(), "t", domain.Event{ID: "1"}))

	require.NoError(t, bus.Subscribe(context.Background(), "u", s.handle))
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Publish(context.Background(), "u", domain.Event{ID: "2"}))

	assert.Empty(t, s.ids())
}

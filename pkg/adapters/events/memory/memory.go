package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/aescanero/dago-direct/pkg/domain"
	"github.com/aescanero/dago-direct/pkg/ports"
	"go.uber.org/zap"
)

// DefaultSubscriberBuffer is the per-subscriber queue length.
const DefaultSubscriberBuffer = 256

// subscription delivers events to one handler in publish order
type subscription struct {
	topic   string
	handler ports.EventHandler
	ch      chan domain.Event
	ctx     context.Context
	once    sync.Once
	done    chan struct{}
}

func (s *subscription) close() {
	s.once.Do(func() { close(s.ch) })
}

// InMemoryEventBus implements EventBus using in-memory handlers. Each
// subscriber has its own bounded queue; events that do not fit are dropped.
type InMemoryEventBus struct {
	subscribers map[string][]*subscription
	buffer      int
	dropped     atomic.Int64
	mu          sync.RWMutex
	logger      *zap.Logger
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(buffer int, logger *zap.Logger) *InMemoryEventBus {
	if buffer < 1 {
		buffer = DefaultSubscriberBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryEventBus{
		subscribers: make(map[string][]*subscription),
		buffer:      buffer,
		logger:      logger,
	}
}

// Publish publishes an event to all subscribers of a topic
func (e *InMemoryEventBus) Publish(ctx context.Context, topic string, event domain.Event) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, sub := range e.subscribers[topic] {
		select {
		case sub.ch <- event:
		default:
			e.dropped.Add(1)
		}
	}
	return nil
}

// Subscribe subscribes to events on a specific topic. The subscription ends
// when ctx is cancelled or the bus is closed.
func (e *InMemoryEventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	sub := &subscription{
		topic:   topic,
		handler: handler,
		ch:      make(chan domain.Event, e.buffer),
		ctx:     ctx,
		done:    make(chan struct{}),
	}

	e.mu.Lock()
	e.subscribers[topic] = append(e.subscribers[topic], sub)
	e.mu.Unlock()

	go e.deliver(sub)

	// Clean up the subscription on context cancellation
	go func() {
		select {
		case <-ctx.Done():
			e.unsubscribe(sub)
		case <-sub.done:
		}
	}()

	return nil
}

func (e *InMemoryEventBus) deliver(sub *subscription) {
	defer close(sub.done)
	for event := range sub.ch {
		if err := sub.handler(sub.ctx, event); err != nil {
			e.logger.Debug("event handler error",
				zap.String("topic", sub.topic),
				zap.String("event_id", event.ID),
				zap.Error(err))
		}
	}
}

// Unsubscribe removes all subscriptions from a topic
func (e *InMemoryEventBus) Unsubscribe(ctx context.Context, topic string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, sub := range e.subscribers[topic] {
		sub.close()
	}
	delete(e.subscribers, topic)
	return nil
}

// Dropped returns the number of events dropped because a subscriber was full.
func (e *InMemoryEventBus) Dropped() int64 {
	return e.dropped.Load()
}

// Close closes the event bus and cleans up resources
func (e *InMemoryEventBus) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, subs := range e.subscribers {
		for _, sub := range subs {
			sub.close()
		}
	}
	e.subscribers = make(map[string][]*subscription)
	return nil
}

// unsubscribe removes a single subscription from its topic
func (e *InMemoryEventBus) unsubscribe(sub *subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()

	subs := e.subscribers[sub.topic]
	for i, s := range subs {
		if s == sub {
			e.subscribers[sub.topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	sub.close()
}

var _ ports.EventBus = (*InMemoryEventBus)(nil)

package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/aescanero/dago-direct/pkg/domain"
	"github.com/aescanero/dago-direct/pkg/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// notifier forwards events to the event bus from a single goroutine. Enqueue
// never blocks: events that do not fit the buffer are dropped and counted.
type notifier struct {
	bus     ports.EventBus
	runID   string
	metrics ports.MetricsCollector
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	ch     chan domain.Event
	done   chan struct{}
}

func newNotifier(bus ports.EventBus, runID string, size int, metrics ports.MetricsCollector, logger *zap.Logger) *notifier {
	if size < 1 {
		size = 1
	}
	return &notifier{
		bus:     bus,
		runID:   runID,
		metrics: metrics,
		logger:  logger,
		ch:      make(chan domain.Event, size),
		done:    make(chan struct{}),
	}
}

func (n *notifier) start() {
	if n.bus == nil {
		close(n.done)
		return
	}
	go n.run()
}

func (n *notifier) run() {
	defer close(n.done)
	for event := range n.ch {
		if err := n.bus.Publish(context.Background(), domain.EventsTopic, event); err != nil {
			n.logger.Warn("failed to publish event",
				zap.String("event_type", string(event.Type)),
				zap.Error(err))
		}
	}
}

func (n *notifier) publish(eventType domain.EventType, node domain.NodeID, bundleID string, data map[string]interface{}) {
	if n.bus == nil {
		return
	}

	event := domain.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		RunID:     n.runID,
		NodeID:    node,
		BundleID:  bundleID,
		Timestamp: time.Now(),
		Data:      data,
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}

	select {
	case n.ch <- event:
	default:
		n.metrics.RecordEventDropped()
		n.logger.Debug("event buffer full, dropping event",
			zap.String("event_type", string(eventType)),
			zap.String("node_id", string(node)))
	}
}

// close stops accepting events and waits until buffered events are published
// or ctx ends.
func (n *notifier) close(ctx context.Context) {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		if n.bus != nil {
			close(n.ch)
		}
	}
	n.mu.Unlock()

	select {
	case <-n.done:
	case <-ctx.Done():
	}
}

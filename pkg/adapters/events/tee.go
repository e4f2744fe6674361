package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/aescanero/dago-direct/pkg/domain"
	"github.com/aescanero/dago-direct/pkg/ports"
)

// TeeEventBus publishes to several buses and subscribes on the first one.
type TeeEventBus struct {
	primary ports.EventBus
	mirrors []ports.EventBus
}

// NewTeeEventBus creates a bus publishing to primary and every mirror.
// Subscriptions are served by primary only.
func NewTeeEventBus(primary ports.EventBus, mirrors ...ports.EventBus) *TeeEventBus {
	return &TeeEventBus{primary: primary, mirrors: mirrors}
}

// Publish publishes the event to every bus and joins their errors
func (t *TeeEventBus) Publish(ctx context.Context, topic string, event domain.Event) error {
	var errs []error
	if err := t.primary.Publish(ctx, topic, event); err != nil {
		errs = append(errs, err)
	}
	for i, bus := range t.mirrors {
		if err := bus.Publish(ctx, topic, event); err != nil {
			errs = append(errs, fmt.Errorf("mirror %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Subscribe subscribes on the primary bus
func (t *TeeEventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	return t.primary.Subscribe(ctx, topic, handler)
}

// Close closes every bus
func (t *TeeEventBus) Close() error {
	errs := []error{t.primary.Close()}
	for _, bus := range t.mirrors {
		errs = append(errs, bus.Close())
	}
	return errors.Join(errs...)
}

var _ ports.EventBus = (*TeeEventBus)(nil)

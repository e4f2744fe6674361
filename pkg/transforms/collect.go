package transforms

import (
	"context"
	"sort"
	"sync"

	"github.com/aescanero/dago-direct/pkg/domain"
)

// Collect is a terminal sink recording every element it receives.
type Collect struct {
	mu       sync.Mutex
	elements []domain.Element
	bundles  int
}

// NewCollect creates an empty sink.
func NewCollect() *Collect {
	return &Collect{}
}

// Process records the bundle's elements.
func (c *Collect) Process(_ context.Context, in *domain.CommittedBundle, _ domain.Emitter) error {
	elems := in.Elements()

	c.mu.Lock()
	c.elements = append(c.elements, elems...)
	c.bundles++
	c.mu.Unlock()
	return nil
}

// Elements returns the recorded elements ordered by timestamp. Elements with
// equal timestamps keep their arrival order.
func (c *Collect) Elements() []domain.Element {
	c.mu.Lock()
	out := append([]domain.Element(nil), c.elements...)
	c.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out
}

// Values returns the recorded values ordered like Elements.
func (c *Collect) Values() []any {
	elems := c.Elements()
	out := make([]any, len(elems))
	for i, e := range elems {
		out[i] = e.Value
	}
	return out
}

// Bundles returns the number of bundles received.
func (c *Collect) Bundles() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bundles
}

// Reset discards everything recorded.
func (c *Collect) Reset() {
	c.mu.Lock()
	c.elements, c.bundles = nil, 0
	c.mu.Unlock()
}

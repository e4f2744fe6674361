package executor

import (
	"fmt"
	"sync"

	"github.com/aescanero/dago-direct/pkg/domain"
)

// outputBuffer collects the elements emitted during one attempt.
type outputBuffer struct {
	node  *domain.TransformNode
	floor domain.Instant

	mu    sync.Mutex
	elems map[domain.CollectionID][]domain.Element
	err   error
}

func newOutputBuffer(node *domain.TransformNode, floor domain.Instant) *outputBuffer {
	return &outputBuffer{
		node:  node,
		floor: floor,
		elems: make(map[domain.CollectionID][]domain.Element),
	}
}

func (b *outputBuffer) Emit(ts domain.Instant, value any) error {
	outputs := b.node.Outputs()
	if len(outputs) == 0 {
		return b.fail(fmt.Errorf("%w: node %s has no outputs", domain.ErrNoOutput, b.node.ID()))
	}
	return b.EmitTo(outputs[0], ts, value)
}

func (b *outputBuffer) EmitTo(collection domain.CollectionID, ts domain.Instant, value any) error {
	if !b.node.Produces(collection) {
		return b.fail(fmt.Errorf("%w: node %s does not produce %s", domain.ErrNoOutput, b.node.ID(), collection))
	}
	if ts < b.floor || ts > domain.MaxInstant {
		return b.fail(fmt.Errorf("%w: node %s emitted at %s, floor is %s", domain.ErrTimestampBehindInput, b.node.ID(), ts, b.floor))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.elems[collection] = append(b.elems[collection], domain.At(ts, value))
	return nil
}

func (b *outputBuffer) fail(err error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err == nil {
		b.err = err
	}
	return err
}

// firstErr returns the first emit error, which fails the attempt even if the
// processor ignored it.
func (b *outputBuffer) firstErr() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// bundles returns one bundle per non-empty output, in output order.
func (b *outputBuffer) bundles() []*domain.Bundle {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*domain.Bundle
	for _, c := range b.node.Outputs() {
		if elems := b.elems[c]; len(elems) > 0 {
			out = append(out, domain.NewBundle(c, elems...))
		}
	}
	return out
}

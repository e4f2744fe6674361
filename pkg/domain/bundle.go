package domain

import (
	"time"

	"github.com/google/uuid"
)

// Element is a single value tagged with its event timestamp.
type Element struct {
	Value     any
	Timestamp Instant
}

// At builds an element with the given timestamp.
func At(ts Instant, value any) Element {
	return Element{Value: value, Timestamp: ts}
}

// Bundle is an immutable, finite batch of elements belonging to one collection.
type Bundle struct {
	id         string
	collection CollectionID
	elements   []Element
	minTs      Instant
}

// NewBundle creates a bundle for the collection. The elements are copied so the
// caller may reuse its slice.
func NewBundle(collection CollectionID, elements ...Element) *Bundle {
	copied := make([]Element, len(elements))
	copy(copied, elements)

	minTs := EndOfTime
	for _, e := range copied {
		if e.Timestamp < minTs {
			minTs = e.Timestamp
		}
	}

	return &Bundle{
		id:         uuid.New().String(),
		collection: collection,
		elements:   copied,
		minTs:      minTs,
	}
}

// ID returns the bundle identity.
func (b *Bundle) ID() string { return b.id }

// Collection returns the collection the bundle belongs to.
func (b *Bundle) Collection() CollectionID { return b.collection }

// Len returns the number of elements.
func (b *Bundle) Len() int { return len(b.elements) }

// At returns the i-th element in bundle order.
func (b *Bundle) At(i int) Element { return b.elements[i] }

// Elements returns a copy of the elements in bundle order.
func (b *Bundle) Elements() []Element {
	out := make([]Element, len(b.elements))
	copy(out, b.elements)
	return out
}

// MinTimestamp is the earliest element timestamp, or EndOfTime for an empty bundle.
func (b *Bundle) MinTimestamp() Instant { return b.minTs }

// CommittedBundle is a bundle that finished processing and is visible to
// downstream scheduling.
type CommittedBundle struct {
	*Bundle

	// Producer is the node that emitted the bundle; empty for root input.
	Producer NodeID
	// ProducerWatermark is the producer's output watermark when the bundle was committed.
	ProducerWatermark Instant
	// Sequence is the position of the bundle in its collection's commit log.
	Sequence    int
	CommittedAt time.Time
}

// Commit wraps b as a committed bundle.
func (b *Bundle) Commit(producer NodeID, watermark Instant, sequence int, at time.Time) *CommittedBundle {
	return &CommittedBundle{
		Bundle:            b,
		Producer:          producer,
		ProducerWatermark: watermark,
		Sequence:          sequence,
		CommittedAt:       at,
	}
}

// NewRootBundle creates input for a root node.
func NewRootBundle(node NodeID, elements ...Element) *Bundle {
	return NewBundle(RootInput(node), elements...)
}

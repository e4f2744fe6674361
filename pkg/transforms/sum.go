package transforms

import (
	"context"
	"sync"

	"github.com/aescanero/dago-direct/pkg/domain"
)

// Number is the set of element types Sum accepts.
type Number interface {
	~int | ~int32 | ~int64 | ~float32 | ~float64
}

// Sum totals every element it receives and emits the total once, at
// domain.MaxInstant, when its input is exhausted. A bundle contributes to
// the total only when it is processed successfully, so retried bundles are
// never counted twice.
type Sum[N Number] struct {
	mu    sync.Mutex
	total N
	seen  int
}

var (
	_ domain.Processor = (*Sum[int])(nil)
	_ domain.Flusher   = (*Sum[int])(nil)
)

// NewSum creates an empty Sum.
func NewSum[N Number]() *Sum[N] {
	return &Sum[N]{}
}

// Process adds the bundle to the running total.
func (s *Sum[N]) Process(ctx context.Context, in *domain.CommittedBundle, _ domain.Emitter) error {
	var partial N
	for i := 0; i < in.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		v, err := cast[N](in.At(i))
		if err != nil {
			return err
		}
		partial += v
	}

	s.mu.Lock()
	s.total += partial
	s.seen += in.Len()
	s.mu.Unlock()
	return nil
}

// Flush emits the total and resets the accumulator for the next run. The
// total is kept when the emit fails, so a retried flush emits it again.
func (s *Sum[N]) Flush(_ context.Context, emit domain.Emitter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := emit.Emit(domain.MaxInstant, s.total); err != nil {
		return err
	}
	s.total, s.seen = 0, 0
	return nil
}

// Total returns the running total.
func (s *Sum[N]) Total() N {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Count returns the number of elements accumulated so far.
func (s *Sum[N]) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen
}

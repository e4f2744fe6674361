package domain

import "context"

// Emitter receives the output of a processor. Emitted values are buffered
// into output bundles and only become visible once the work item commits.
type Emitter interface {
	// Emit sends a value to the node's first output collection.
	Emit(ts Instant, value any) error
	// EmitTo sends a value to a specific output collection of the node.
	EmitTo(collection CollectionID, ts Instant, value any) error
}

// Processor is the processing capability wrapped by a transform node.
// Implementations must be safe for concurrent use: several bundles of the
// same node may be processed at the same time.
type Processor interface {
	Process(ctx context.Context, in *CommittedBundle, emit Emitter) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, in *CommittedBundle, emit Emitter) error

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, in *CommittedBundle, emit Emitter) error {
	return f(ctx, in, emit)
}

// ElementFunc processes one element of a bundle.
type ElementFunc func(ctx context.Context, elem Element, emit Emitter) error

// PerElement returns a Processor that applies fn to each element in bundle
// order, stopping at the first error or when ctx is done.
func PerElement(fn ElementFunc) Processor {
	return ProcessorFunc(func(ctx context.Context, in *CommittedBundle, emit Emitter) error {
		for i := 0; i < in.Len(); i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx, in.At(i), emit); err != nil {
				return err
			}
		}
		return nil
	})
}

// Flusher is implemented by processors that emit once their input is
// exhausted. Flush runs exactly once per run, after the node's input
// watermark reaches EndOfTime. Emitted timestamps must be MaxInstant.
type Flusher interface {
	Flush(ctx context.Context, emit Emitter) error
}

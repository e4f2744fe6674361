package transforms

import (
	"context"
	"fmt"

	"github.com/aescanero/dago-direct/pkg/domain"
)

// Map emits fn(v) for every element of type T, at the element's timestamp.
func Map[T any](fn func(T) (any, error)) domain.Processor {
	return domain.PerElement(func(_ context.Context, elem domain.Element, emit domain.Emitter) error {
		v, err := cast[T](elem)
		if err != nil {
			return err
		}
		out, err := fn(v)
		if err != nil {
			return err
		}
		return emit.Emit(elem.Timestamp, out)
	})
}

// Filter forwards the elements for which keep returns true.
func Filter[T any](keep func(T) bool) domain.Processor {
	return domain.PerElement(func(_ context.Context, elem domain.Element, emit domain.Emitter) error {
		v, err := cast[T](elem)
		if err != nil {
			return err
		}
		if !keep(v) {
			return nil
		}
		return emit.Emit(elem.Timestamp, elem.Value)
	})
}

// FlatMap emits every value fn returns for an element, in order.
func FlatMap[T any](fn func(T) ([]any, error)) domain.Processor {
	return domain.PerElement(func(_ context.Context, elem domain.Element, emit domain.Emitter) error {
		v, err := cast[T](elem)
		if err != nil {
			return err
		}
		outs, err := fn(v)
		if err != nil {
			return err
		}
		for _, out := range outs {
			if err := emit.Emit(elem.Timestamp, out); err != nil {
				return err
			}
		}
		return nil
	})
}

func cast[T any](elem domain.Element) (T, error) {
	v, ok := elem.Value.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("unexpected element type %T, want %T", elem.Value, zero)
	}
	return v, nil
}

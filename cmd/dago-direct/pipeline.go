package main

import (
	"context"
	"fmt"

	"github.com/aescanero/dago-direct/internal/application/orchestrator"
	"github.com/aescanero/dago-direct/pkg/domain"
	"github.com/aescanero/dago-direct/pkg/transforms"
)

// demoPipeline sums the squares of 1..n:
//
//	numbers -> squares -> total -> sink
func demoPipeline(n int) (*domain.Graph, orchestrator.StaticRoots, *transforms.Collect, error) {
	sink := transforms.NewCollect()

	nodes := []*domain.TransformNode{}
	add := func(id domain.NodeID, p domain.Processor, opts ...domain.NodeOption) error {
		node, err := domain.NewTransformNode(id, p, opts...)
		if err != nil {
			return err
		}
		nodes = append(nodes, node)
		return nil
	}

	passthrough := domain.PerElement(func(_ context.Context, e domain.Element, emit domain.Emitter) error {
		return emit.Emit(e.Timestamp, e.Value)
	})

	if err := add("numbers", passthrough, domain.WithOutputs("numbers")); err != nil {
		return nil, nil, nil, err
	}
	if err := add("squares", transforms.Map(func(v int) (any, error) { return v * v, nil }),
		domain.WithInputs("numbers"), domain.WithOutputs("squares")); err != nil {
		return nil, nil, nil, err
	}
	if err := add("total", transforms.NewSum[int](),
		domain.WithInputs("squares"), domain.WithOutputs("total")); err != nil {
		return nil, nil, nil, err
	}
	if err := add("sink", sink, domain.WithInputs("total")); err != nil {
		return nil, nil, nil, err
	}

	graph, err := domain.NewGraph(nodes...)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to build demo graph: %w", err)
	}

	roots := orchestrator.StaticRoots{}
	const perBundle = 10
	for start := 1; start <= n; start += perBundle {
		elems := make([]domain.Element, 0, perBundle)
		for v := start; v < start+perBundle && v <= n; v++ {
			elems = append(elems, domain.At(domain.Instant(v), v))
		}
		roots.Seed("numbers", elems...)
	}

	return graph, roots, sink, nil
}

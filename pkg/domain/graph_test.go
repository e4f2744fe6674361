package domain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var noop = ProcessorFunc(func(context.Context, *CommittedBundle, Emitter) error { return nil })

func diamond(t *testing.T) *Graph {
	t.Helper()
	g, err := NewGraph(
		MustNode("sink", noop, WithInputs("left", "right")),
		MustNode("left", noop, WithInputs("src"), WithOutputs("left")),
		MustNode("src", noop, WithOutputs("src")),
		MustNode("right", noop, WithInputs("src"), WithOutputs("right")),
	)
	require.NoError(t, err)
	return g
}

func TestNewGraph_TopologicalOrder(t *testing.T) {
	g := diamond(t)

	assert.Equal(t, []NodeID{"src", "left", "right", "sink"}, g.Nodes())
	assert.Equal(t, []NodeID{"src"}, g.Roots())
	assert.Equal(t, 4, g.Len())

	assert.Equal(t, []NodeID{"left", "right"}, g.Downstream("src"))
	assert.Equal(t, []NodeID{"left", "right"}, g.Upstream("sink"))
	assert.Equal(t, []NodeID{"left", "right"}, g.Consumers("src"))

	producer, ok := g.Producer("right")
	require.True(t, ok)
	assert.Equal(t, NodeID("right"), producer)
}

func TestNewGraph_Validation(t *testing.T) {
	tests := []struct {
		name  string
		nodes func() []*TransformNode
		err   string
	}{
		{
			name: "duplicate node",
			nodes: func() []*TransformNode {
				return []*TransformNode{MustNode("a", noop), MustNode("a", noop)}
			},
			err: "duplicate node ID",
		},
		{
			name: "two producers",
			nodes: func() []*TransformNode {
				return []*TransformNode{
					MustNode("a", noop, WithOutputs("c")),
					MustNode("b", noop, WithOutputs("c")),
				}
			},
			err: "produced by both",
		},
		{
			name: "unproduced input",
			nodes: func() []*TransformNode {
				return []*TransformNode{MustNode("a", noop, WithInputs("missing"))}
			},
			err: "which no node produces",
		},
		{
			name: "nil node",
			nodes: func() []*TransformNode {
				return []*TransformNode{nil}
			},
			err: "nil node",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGraph(tt.nodes()...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.err)
		})
	}
}

func TestNewGraph_RejectsCycle(t *testing.T) {
	_, err := NewGraph(
		MustNode("root", noop, WithOutputs("r")),
		MustNode("a", noop, WithInputs("r", "b"), WithOutputs("a")),
		MustNode("b", noop, WithInputs("a"), WithOutputs("b")),
	)
	require.ErrorIs(t, err, ErrCycle)
}

func TestNewTransformNode_Validation(t *testing.T) {
	_, err := NewTransformNode("", noop)
	assert.Error(t, err)

	_, err = NewTransformNode("a", nil)
	assert.Error(t, err)

	_, err = NewTransformNode("a", noop, WithOutputs("x", "x"))
	assert.Error(t, err)

	_, err = NewTransformNode("a", noop, WithRetry(RetryPolicy{MaxRetries: -1}))
	assert.Error(t, err)

	_, err = NewTransformNode("a", noop, WithInputs("x"), Unbounded())
	assert.Error(t, err, "only roots may be unbounded")

	n, err := NewTransformNode("a", noop, Unbounded(), WithName("source"), WithRetry(RetryPolicy{MaxRetries: 2}))
	require.NoError(t, err)
	assert.True(t, n.IsRoot())
	assert.True(t, n.IsUnbounded())
	assert.Equal(t, "source", n.Name())

	p, ok := n.RetryPolicy()
	require.True(t, ok)
	assert.Equal(t, 2, p.MaxRetries)
}

func TestGraph_Reachable(t *testing.T) {
	g, err := NewGraph(
		MustNode("a", noop, WithOutputs("a")),
		MustNode("b", noop, WithOutputs("b")),
		MustNode("a1", noop, WithInputs("a"), WithOutputs("a1")),
		MustNode("join", noop, WithInputs("a1", "b")),
	)
	require.NoError(t, err)

	reach, err := g.Reachable([]NodeID{"a"})
	require.NoError(t, err)
	assert.Equal(t, []NodeID{"a", "a1", "join"}, reach)

	_, err = g.Reachable([]NodeID{"nope"})
	assert.ErrorIs(t, err, ErrUnknownNode)
}

func TestGraph_AccessorsReturnCopies(t *testing.T) {
	g := diamond(t)

	nodes := g.Nodes()
	nodes[0] = "mutated"
	assert.Equal(t, NodeID("src"), g.Nodes()[0])

	n, ok := g.Node("sink")
	require.True(t, ok)
	inputs := n.Inputs()
	inputs[0] = "mutated"
	assert.Equal(t, CollectionID("left"), n.Inputs()[0])
}

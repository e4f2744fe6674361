package domain

import (
	"fmt"
)

// NodeID identifies a transform node.
type NodeID string

// CollectionID identifies a collection (an edge of the graph).
type CollectionID string

// RootInput returns the pseudo collection that root input bundles of node belong to.
func RootInput(node NodeID) CollectionID {
	return CollectionID("root:" + string(node))
}

// RetryPolicy bounds how often a node's processing is retried.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// Classify decides whether an error is retried. Nil uses DefaultClassifier.
	Classify Classifier
}

// TransformNode is a single operator application in the graph.
type TransformNode struct {
	id        NodeID
	name      string
	processor Processor
	inputs    []CollectionID
	outputs   []CollectionID
	retry     *RetryPolicy
	unbounded bool
}

// NodeOption configures a TransformNode.
type NodeOption func(*TransformNode)

// WithInputs sets the collections the node consumes, in order.
func WithInputs(inputs ...CollectionID) NodeOption {
	return func(n *TransformNode) {
		n.inputs = append([]CollectionID(nil), inputs...)
	}
}

// WithOutputs sets the collections the node produces, in order. The first
// output is the one Emitter.Emit writes to.
func WithOutputs(outputs ...CollectionID) NodeOption {
	return func(n *TransformNode) {
		n.outputs = append([]CollectionID(nil), outputs...)
	}
}

// WithName sets a human readable name.
func WithName(name string) NodeOption {
	return func(n *TransformNode) {
		n.name = name
	}
}

// WithRetry overrides the engine's default retry policy for this node.
func WithRetry(policy RetryPolicy) NodeOption {
	return func(n *TransformNode) {
		p := policy
		n.retry = &p
	}
}

// Unbounded marks a root node whose input is fed while the run is in progress.
func Unbounded() NodeOption {
	return func(n *TransformNode) {
		n.unbounded = true
	}
}

// NewTransformNode validates and builds a node.
func NewTransformNode(id NodeID, processor Processor, opts ...NodeOption) (*TransformNode, error) {
	if id == "" {
		return nil, fmt.Errorf("node ID is required")
	}
	if processor == nil {
		return nil, fmt.Errorf("node %s: processor is required", id)
	}

	n := &TransformNode{id: id, name: string(id), processor: processor}
	for _, opt := range opts {
		opt(n)
	}

	seen := make(map[CollectionID]bool)
	for _, c := range append(append([]CollectionID(nil), n.inputs...), n.outputs...) {
		if c == "" {
			return nil, fmt.Errorf("node %s: empty collection ID", id)
		}
		if seen[c] {
			return nil, fmt.Errorf("node %s: collection %s listed twice", id, c)
		}
		seen[c] = true
	}

	if n.retry != nil && n.retry.MaxRetries < 0 {
		return nil, fmt.Errorf("node %s: max retries must not be negative", id)
	}
	if n.unbounded && len(n.inputs) > 0 {
		return nil, fmt.Errorf("node %s: only root nodes can be unbounded", id)
	}

	return n, nil
}

// MustNode is like NewTransformNode but panics on error. Intended for static graphs and tests.
func MustNode(id NodeID, processor Processor, opts ...NodeOption) *TransformNode {
	n, err := NewTransformNode(id, processor, opts...)
	if err != nil {
		panic(err)
	}
	return n
}

func (n *TransformNode) ID() NodeID           { return n.id }
func (n *TransformNode) Name() string         { return n.name }
func (n *TransformNode) Processor() Processor { return n.processor }
func (n *TransformNode) IsRoot() bool         { return len(n.inputs) == 0 }
func (n *TransformNode) IsUnbounded() bool    { return n.unbounded }

// Inputs returns a copy of the consumed collections.
func (n *TransformNode) Inputs() []CollectionID {
	return append([]CollectionID(nil), n.inputs...)
}

// Outputs returns a copy of the produced collections.
func (n *TransformNode) Outputs() []CollectionID {
	return append([]CollectionID(nil), n.outputs...)
}

// RetryPolicy returns the node's override and whether one was set.
func (n *TransformNode) RetryPolicy() (RetryPolicy, bool) {
	if n.retry == nil {
		return RetryPolicy{}, false
	}
	return *n.retry, true
}

// Produces reports whether the node writes to the collection.
func (n *TransformNode) Produces(c CollectionID) bool {
	for _, out := range n.outputs {
		if out == c {
			return true
		}
	}
	return false
}

// Graph is an immutable, validated, acyclic set of transform nodes.
type Graph struct {
	nodes     map[NodeID]*TransformNode
	order     []NodeID
	producers map[CollectionID]NodeID
	consumers map[CollectionID][]NodeID
}

// NewGraph indexes and validates the nodes. Every consumed collection must be
// produced by exactly one node of the graph and the graph must be acyclic.
func NewGraph(nodes ...*TransformNode) (*Graph, error) {
	g := &Graph{
		nodes:     make(map[NodeID]*TransformNode, len(nodes)),
		producers: make(map[CollectionID]NodeID),
		consumers: make(map[CollectionID][]NodeID),
	}

	declared := make([]NodeID, 0, len(nodes))
	for _, n := range nodes {
		if n == nil {
			return nil, fmt.Errorf("graph contains a nil node")
		}
		if _, exists := g.nodes[n.id]; exists {
			return nil, fmt.Errorf("duplicate node ID: %s", n.id)
		}
		g.nodes[n.id] = n
		declared = append(declared, n.id)

		for _, out := range n.outputs {
			if other, exists := g.producers[out]; exists {
				return nil, fmt.Errorf("collection %s produced by both %s and %s", out, other, n.id)
			}
			g.producers[out] = n.id
		}
	}

	for _, id := range declared {
		n := g.nodes[id]
		for _, in := range n.inputs {
			if _, exists := g.producers[in]; !exists {
				return nil, fmt.Errorf("node %s consumes collection %s which no node produces", id, in)
			}
			g.consumers[in] = append(g.consumers[in], id)
		}
	}

	order, err := g.topologicalOrder(declared)
	if err != nil {
		return nil, err
	}
	g.order = order

	return g, nil
}

// topologicalOrder runs Kahn's algorithm, keeping declaration order among
// nodes that become ready at the same time.
func (g *Graph) topologicalOrder(declared []NodeID) ([]NodeID, error) {
	indegree := make(map[NodeID]int, len(declared))
	for _, id := range declared {
		indegree[id] = len(g.Upstream(id))
	}

	var ready []NodeID
	for _, id := range declared {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	order := make([]NodeID, 0, len(declared))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		for _, down := range g.Downstream(id) {
			indegree[down]--
			if indegree[down] == 0 {
				ready = append(ready, down)
			}
		}
	}

	if len(order) != len(declared) {
		var stuck []NodeID
		for _, id := range declared {
			if indegree[id] > 0 {
				stuck = append(stuck, id)
			}
		}
		return nil, fmt.Errorf("%w: nodes %v", ErrCycle, stuck)
	}
	return order, nil
}

// Node returns the node with the given ID.
func (g *Graph) Node(id NodeID) (*TransformNode, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Nodes returns all node IDs in topological order.
func (g *Graph) Nodes() []NodeID {
	return append([]NodeID(nil), g.order...)
}

// Roots returns the nodes without inputs, in topological order.
func (g *Graph) Roots() []NodeID {
	var roots []NodeID
	for _, id := range g.order {
		if g.nodes[id].IsRoot() {
			roots = append(roots, id)
		}
	}
	return roots
}

// Producer returns the node producing the collection.
func (g *Graph) Producer(c CollectionID) (NodeID, bool) {
	id, ok := g.producers[c]
	return id, ok
}

// Consumers returns the nodes consuming the collection, in declaration order.
func (g *Graph) Consumers(c CollectionID) []NodeID {
	return append([]NodeID(nil), g.consumers[c]...)
}

// Upstream returns the distinct producers of the node's inputs, in input order.
func (g *Graph) Upstream(id NodeID) []NodeID {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	var out []NodeID
	seen := make(map[NodeID]bool)
	for _, in := range n.inputs {
		p := g.producers[in]
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// Downstream returns the distinct consumers of the node's outputs, in output order.
func (g *Graph) Downstream(id NodeID) []NodeID {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	var out []NodeID
	seen := make(map[NodeID]bool)
	for _, c := range n.outputs {
		for _, consumer := range g.consumers[c] {
			if !seen[consumer] {
				seen[consumer] = true
				out = append(out, consumer)
			}
		}
	}
	return out
}

// Reachable returns the nodes reachable from the given roots (inclusive), in
// topological order.
func (g *Graph) Reachable(roots []NodeID) ([]NodeID, error) {
	visited := make(map[NodeID]bool)
	stack := make([]NodeID, 0, len(roots))
	for _, r := range roots {
		if _, ok := g.nodes[r]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownNode, r)
		}
		stack = append(stack, r)
	}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		visited[id] = true
		stack = append(stack, g.Downstream(id)...)
	}

	out := make([]NodeID, 0, len(visited))
	for _, id := range g.order {
		if visited[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

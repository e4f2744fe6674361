package orchestrator

import (
	"fmt"

	"github.com/aescanero/dago-direct/pkg/domain"
)

// Validator validates run requests against a graph
type Validator struct{}

// NewValidator creates a new run validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks the root set and returns the nodes of the run in
// topological order.
func (v *Validator) Validate(g *domain.Graph, roots []domain.NodeID) ([]domain.NodeID, error) {
	if g == nil {
		return nil, fmt.Errorf("graph is nil")
	}

	seen := make(map[domain.NodeID]bool, len(roots))
	for _, id := range roots {
		if err := v.validateRoot(g, id); err != nil {
			return nil, err
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate root node: %s", id)
		}
		seen[id] = true
	}

	nodes, err := g.Reachable(roots)
	if err != nil {
		return nil, err
	}

	inRun := make(map[domain.NodeID]bool, len(nodes))
	for _, id := range nodes {
		inRun[id] = true
	}
	for _, id := range nodes {
		for _, up := range g.Upstream(id) {
			if !inRun[up] {
				return nil, fmt.Errorf("%w: %s consumes output of %s", domain.ErrIncompleteRootSet, id, up)
			}
		}
	}

	return nodes, nil
}

// validateRoot validates a single root node
func (v *Validator) validateRoot(g *domain.Graph, id domain.NodeID) error {
	node, ok := g.Node(id)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownNode, id)
	}
	if !node.IsRoot() {
		return fmt.Errorf("%w: %s", domain.ErrNotRoot, id)
	}
	return nil
}

// ValidateBundles checks that root input belongs to the node it seeds.
func (v *Validator) ValidateBundles(node domain.NodeID, bundles []*domain.Bundle) error {
	want := domain.RootInput(node)
	for _, b := range bundles {
		if b == nil {
			return fmt.Errorf("nil root bundle for node %s", node)
		}
		if b.Collection() != want {
			return fmt.Errorf("root bundle %s for node %s belongs to %s, want %s", b.ID(), node, b.Collection(), want)
		}
	}
	return nil
}

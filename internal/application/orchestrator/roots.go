package orchestrator

import (
	"context"

	"github.com/aescanero/dago-direct/pkg/domain"
)

// RootProvider supplies the initial bundles of root nodes.
type RootProvider interface {
	InitialBundles(ctx context.Context, node domain.NodeID) ([]*domain.Bundle, error)
}

// StaticRoots is a RootProvider backed by a fixed map. Nodes without an entry
// start with no input.
type StaticRoots map[domain.NodeID][]*domain.Bundle

// InitialBundles returns the bundles registered for node.
func (r StaticRoots) InitialBundles(_ context.Context, node domain.NodeID) ([]*domain.Bundle, error) {
	return r[node], nil
}

// Seed appends root bundles built from the given elements, one bundle per call.
func (r StaticRoots) Seed(node domain.NodeID, elements ...domain.Element) StaticRoots {
	r[node] = append(r[node], domain.NewRootBundle(node, elements...))
	return r
}

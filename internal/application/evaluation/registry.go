package evaluation

import (
	"sync"
	"time"

	"github.com/aescanero/dago-direct/pkg/domain"
)

type collectionLog struct {
	mu      sync.RWMutex
	bundles []*domain.CommittedBundle
}

// Registry is the append-only log of committed bundles, one per collection.
// It is safe for concurrent readers and writers.
type Registry struct {
	mu   sync.RWMutex
	logs map[domain.CollectionID]*collectionLog
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{logs: make(map[domain.CollectionID]*collectionLog)}
}

func (r *Registry) log(collection domain.CollectionID, create bool) *collectionLog {
	r.mu.RLock()
	l, ok := r.logs[collection]
	r.mu.RUnlock()
	if ok || !create {
		return l
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok = r.logs[collection]; ok {
		return l
	}
	l = &collectionLog{}
	r.logs[collection] = l
	return l
}

// Append commits the bundle to its collection and returns the committed form.
func (r *Registry) Append(producer domain.NodeID, watermark domain.Instant, bundle *domain.Bundle) *domain.CommittedBundle {
	l := r.log(bundle.Collection(), true)

	l.mu.Lock()
	defer l.mu.Unlock()

	committed := bundle.Commit(producer, watermark, len(l.bundles), time.Now())
	l.bundles = append(l.bundles, committed)
	return committed
}

// Bundles returns the committed bundles of a collection in commit order.
func (r *Registry) Bundles(collection domain.CollectionID) []*domain.CommittedBundle {
	l := r.log(collection, false)
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*domain.CommittedBundle(nil), l.bundles...)
}

// Elements returns every committed element of a collection in commit order.
func (r *Registry) Elements(collection domain.CollectionID) []domain.Element {
	var out []domain.Element
	for _, b := range r.Bundles(collection) {
		out = append(out, b.Elements()...)
	}
	return out
}

// Stats counts bundles and elements per collection.
func (r *Registry) Stats() map[domain.CollectionID]domain.CollectionStats {
	r.mu.RLock()
	ids := make([]domain.CollectionID, 0, len(r.logs))
	for id := range r.logs {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	out := make(map[domain.CollectionID]domain.CollectionStats, len(ids))
	for _, id := range ids {
		var stats domain.CollectionStats
		for _, b := range r.Bundles(id) {
			stats.Bundles++
			stats.Elements += b.Len()
		}
		out[id] = stats
	}
	return out
}

// Total returns the number of committed bundles across all collections.
func (r *Registry) Total() int {
	total := 0
	for _, s := range r.Stats() {
		total += s.Bundles
	}
	return total
}

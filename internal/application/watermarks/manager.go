package watermarks

import (
	"fmt"
	"sync"

	"github.com/aescanero/dago-direct/pkg/domain"
	"go.uber.org/zap"
)

const flushHoldKey = "\x00flush"

// Advance describes a watermark increase of one node.
type Advance struct {
	Node domain.NodeID
	From domain.Instant
	To   domain.Instant
}

// Update is the outcome of a refresh: the watermarks that moved and the
// nodes whose end-of-input flush became due.
type Update struct {
	Advances []Advance
	Flushes  []domain.NodeID
}

func (u *Update) merge(other Update) {
	u.Advances = append(u.Advances, other.Advances...)
	u.Flushes = append(u.Flushes, other.Flushes...)
}

// AdvanceFunc is called for every advance while the node's state is locked,
// so observers see each node's watermarks in order. It must not block.
type AdvanceFunc func(Advance)

type nodeState struct {
	mu        sync.Mutex
	output    domain.Instant
	holds     map[string]domain.Instant
	root      bool
	source    domain.Instant
	flusher   bool
	flushHeld bool
}

func (s *nodeState) minHold() domain.Instant {
	out := domain.EndOfTime
	for _, ts := range s.holds {
		if ts < out {
			out = ts
		}
	}
	return out
}

// Manager holds watermark and hold state for the nodes of one run.
type Manager struct {
	nodes     map[domain.NodeID]*nodeState
	order     []domain.NodeID
	index     map[domain.NodeID]int
	upstream  map[domain.NodeID][]domain.NodeID
	onAdvance AdvanceFunc
	logger    *zap.Logger
}

// NewManager creates a manager for the given run nodes, which must be closed
// under upstream edges. Bounded roots start with an EndOfTime input; unbounded
// roots start with a source watermark of MinInstant.
func NewManager(graph *domain.Graph, runNodes []domain.NodeID, onAdvance AdvanceFunc, logger *zap.Logger) (*Manager, error) {
	m := &Manager{
		nodes:     make(map[domain.NodeID]*nodeState, len(runNodes)),
		index:     make(map[domain.NodeID]int, len(runNodes)),
		upstream:  make(map[domain.NodeID][]domain.NodeID, len(runNodes)),
		onAdvance: onAdvance,
		logger:    logger,
	}

	include := make(map[domain.NodeID]bool, len(runNodes))
	for _, id := range runNodes {
		include[id] = true
	}

	for _, id := range graph.Nodes() {
		if !include[id] {
			continue
		}
		node, _ := graph.Node(id)

		state := &nodeState{
			output: domain.MinInstant,
			holds:  make(map[string]domain.Instant),
			root:   node.IsRoot(),
			source: domain.EndOfTime,
		}
		if node.IsUnbounded() {
			state.source = domain.MinInstant
		}
		_, state.flusher = node.Processor().(domain.Flusher)

		for _, up := range graph.Upstream(id) {
			if !include[up] {
				return nil, fmt.Errorf("%w: %s depends on %s", domain.ErrIncompleteRootSet, id, up)
			}
		}

		m.nodes[id] = state
		m.index[id] = len(m.order)
		m.order = append(m.order, id)
		m.upstream[id] = graph.Upstream(id)
	}

	return m, nil
}

func (m *Manager) state(node domain.NodeID) (*nodeState, error) {
	s, ok := m.nodes[node]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownNode, node)
	}
	return s, nil
}

// RegisterHold records a hold at the bundle's minimum timestamp on behalf of
// the node that will consume it. A hold below the node's current output
// watermark is an invariant violation.
func (m *Manager) RegisterHold(node domain.NodeID, bundle *domain.CommittedBundle) error {
	s, err := m.state(node)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ts := bundle.MinTimestamp()
	if ts < s.output {
		return &domain.SchedulingError{
			Node:   node,
			Reason: fmt.Sprintf("hold at %s registered below output watermark %s", ts, s.output),
		}
	}
	if _, exists := s.holds[bundle.ID()]; exists {
		return &domain.SchedulingError{
			Node:   node,
			Reason: fmt.Sprintf("bundle %s already holds the watermark", bundle.ID()),
		}
	}
	s.holds[bundle.ID()] = ts
	return nil
}

// ReleaseHold removes the hold registered for the bundle on the node.
func (m *Manager) ReleaseHold(node domain.NodeID, bundle *domain.CommittedBundle) error {
	return m.release(node, bundle.ID())
}

// ReleaseFlushHold removes the hold kept while the node's flush was pending.
func (m *Manager) ReleaseFlushHold(node domain.NodeID) error {
	return m.release(node, flushHoldKey)
}

func (m *Manager) release(node domain.NodeID, key string) error {
	s, err := m.state(node)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.holds[key]; !exists {
		return &domain.SchedulingError{
			Node:   node,
			Reason: fmt.Sprintf("no hold registered for %q", key),
		}
	}
	delete(s.holds, key)
	return nil
}

// AdvanceSource moves the source watermark of an unbounded root. The source
// watermark never decreases; EndOfTime closes the source.
func (m *Manager) AdvanceSource(node domain.NodeID, ts domain.Instant) (Update, error) {
	s, err := m.state(node)
	if err != nil {
		return Update{}, err
	}

	s.mu.Lock()
	switch {
	case !s.root:
		s.mu.Unlock()
		return Update{}, fmt.Errorf("%w: %s", domain.ErrNotRoot, node)
	case s.source == domain.EndOfTime:
		s.mu.Unlock()
		return Update{}, fmt.Errorf("%w: %s", domain.ErrSourceClosed, node)
	case ts < s.source:
		current := s.source
		s.mu.Unlock()
		return Update{}, fmt.Errorf("source watermark of %s cannot move back from %s to %s", node, current, ts)
	}
	s.source = ts
	s.mu.Unlock()

	return m.Refresh(node)
}

// SourceWatermark returns the source watermark of a root node and whether the
// source is still open.
func (m *Manager) SourceWatermark(node domain.NodeID) (domain.Instant, bool) {
	s, ok := m.nodes[node]
	if !ok || !s.root {
		return domain.EndOfTime, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source, s.source != domain.EndOfTime
}

// inputWatermark is the minimum of the upstream output watermarks, or the
// source watermark for roots.
func (m *Manager) inputWatermark(node domain.NodeID, s *nodeState) domain.Instant {
	if s.root {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.source
	}

	input := domain.EndOfTime
	for _, up := range m.upstream[node] {
		if wm := m.Watermark(up); wm < input {
			input = wm
		}
	}
	return input
}

// advance recomputes one node's output watermark as
// min(input watermark, outstanding holds). Ties favor the earlier value by
// construction of min. A stale input read can yield a candidate below the
// current value; the watermark then stays where it is.
func (m *Manager) advance(node domain.NodeID) (Update, error) {
	s, err := m.state(node)
	if err != nil {
		return Update{}, err
	}

	input := m.inputWatermark(node, s)

	s.mu.Lock()
	defer s.mu.Unlock()

	var update Update
	// the flush is due once input is exhausted and every input bundle committed
	if s.flusher && input == domain.EndOfTime && !s.flushHeld && len(s.holds) == 0 {
		if domain.MaxInstant < s.output {
			return Update{}, &domain.SchedulingError{
				Node:   node,
				Reason: fmt.Sprintf("flush hold below output watermark %s", s.output),
			}
		}
		s.flushHeld = true
		s.holds[flushHoldKey] = domain.MaxInstant
		update.Flushes = append(update.Flushes, node)
	}

	candidate := domain.MinOf(input, s.minHold())
	if candidate > s.output {
		adv := Advance{Node: node, From: s.output, To: candidate}
		s.output = candidate
		update.Advances = append(update.Advances, adv)
		if m.onAdvance != nil {
			m.onAdvance(adv)
		}
		m.logger.Debug("watermark advanced",
			zap.String("node_id", string(node)),
			zap.Stringer("from", adv.From),
			zap.Stringer("watermark", adv.To))
	}

	return update, nil
}

// Refresh recomputes the watermarks of the given nodes and cascades to every
// downstream node whose upstream moved, in topological order.
func (m *Manager) Refresh(start ...domain.NodeID) (Update, error) {
	dirty := make(map[domain.NodeID]bool, len(start))
	first := len(m.order)
	for _, id := range start {
		idx, ok := m.index[id]
		if !ok {
			return Update{}, fmt.Errorf("%w: %s", domain.ErrUnknownNode, id)
		}
		dirty[id] = true
		if idx < first {
			first = idx
		}
	}

	var total Update
	moved := make(map[domain.NodeID]bool)
	for _, id := range m.order[min(first, len(m.order)):] {
		if !dirty[id] {
			for _, up := range m.upstream[id] {
				if moved[up] {
					dirty[id] = true
					break
				}
			}
		}
		if !dirty[id] {
			continue
		}

		update, err := m.advance(id)
		if err != nil {
			return total, err
		}
		if len(update.Advances) > 0 {
			moved[id] = true
		}
		total.merge(update)
	}

	return total, nil
}

// RefreshAll recomputes every node of the run.
func (m *Manager) RefreshAll() (Update, error) {
	return m.Refresh(m.order...)
}

// Watermark returns the current output watermark of the node, or EndOfTime
// for nodes outside the run.
func (m *Manager) Watermark(node domain.NodeID) domain.Instant {
	s, ok := m.nodes[node]
	if !ok {
		return domain.EndOfTime
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.output
}

// Holds returns the number of outstanding holds on the node.
func (m *Manager) Holds(node domain.NodeID) int {
	s, ok := m.nodes[node]
	if !ok {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.holds)
}

// Snapshot returns the output watermark of every run node.
func (m *Manager) Snapshot() map[domain.NodeID]domain.Instant {
	out := make(map[domain.NodeID]domain.Instant, len(m.order))
	for _, id := range m.order {
		out[id] = m.Watermark(id)
	}
	return out
}

// AllTerminal reports whether every run node reached EndOfTime.
func (m *Manager) AllTerminal() bool {
	for _, id := range m.order {
		if m.Watermark(id) != domain.EndOfTime {
			return false
		}
	}
	return true
}

// HasOpenSources reports whether any unbounded root can still receive input.
func (m *Manager) HasOpenSources() bool {
	for _, id := range m.order {
		if _, open := m.SourceWatermark(id); open {
			return true
		}
	}
	return false
}

// Nodes returns the run nodes in topological order.
func (m *Manager) Nodes() []domain.NodeID {
	return append([]domain.NodeID(nil), m.order...)
}

package evaluation

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aescanero/dago-direct/internal/application/watermarks"
	"github.com/aescanero/dago-direct/pkg/domain"
	"go.uber.org/zap"
)

// Hooks are optional callbacks fired by the context. They run on worker
// goroutines and must not block.
type Hooks struct {
	// OnCommit fires for every committed output bundle.
	OnCommit func(producer domain.NodeID, bundle *domain.CommittedBundle)
	// OnFailure fires for every recorded failure; first is true for the authoritative one.
	OnFailure func(failure *domain.Failure, first bool)
	// OnIdle fires whenever the pending-work count drops to zero.
	OnIdle func()
}

// Context is the coordination state of one run.
type Context struct {
	runID      string
	graph      *domain.Graph
	watermarks *watermarks.Manager
	registry   *Registry
	hooks      Hooks
	logger     *zap.Logger

	inflight sync.Map // map[domain.WorkKey]struct{}
	pending  atomic.Int64
	stopped  atomic.Bool

	failMu      sync.Mutex
	failure     *domain.Failure
	diagnostics []*domain.Failure
}

// NewContext creates the context for a run over the nodes tracked by wm.
func NewContext(runID string, graph *domain.Graph, wm *watermarks.Manager, hooks Hooks, logger *zap.Logger) *Context {
	return &Context{
		runID:      runID,
		graph:      graph,
		watermarks: wm,
		registry:   NewRegistry(),
		hooks:      hooks,
		logger:     logger.With(zap.String("run_id", runID)),
	}
}

// RunID returns the run identity.
func (c *Context) RunID() string { return c.runID }

// Graph returns the graph being executed.
func (c *Context) Graph() *domain.Graph { return c.graph }

// Watermarks returns the run's watermark manager.
func (c *Context) Watermarks() *watermarks.Manager { return c.watermarks }

// Registry returns the committed-bundle registry.
func (c *Context) Registry() *Registry { return c.registry }

// Guard counts as pending work until the returned function is called. It
// keeps the run from looking idle while work is being seeded.
func (c *Context) Guard() func() {
	c.pending.Add(1)
	var once sync.Once
	return func() {
		once.Do(c.decrement)
	}
}

func (c *Context) decrement() {
	remaining := c.pending.Add(-1)
	if remaining < 0 {
		c.logger.Error("pending work count went negative", zap.Int64("pending", remaining))
	}
	if remaining == 0 && c.hooks.OnIdle != nil {
		c.hooks.OnIdle()
	}
}

// admit marks the work pending and in flight. It returns false when the run
// no longer accepts work.
func (c *Context) admit(w *domain.PendingWork) (bool, error) {
	if c.stopped.Load() {
		return false, nil
	}
	if _, loaded := c.inflight.LoadOrStore(w.Key(), struct{}{}); loaded {
		return false, &domain.SchedulingError{
			Node:   w.Node,
			Reason: fmt.Sprintf("work %s is already pending", w.Key()),
		}
	}
	w.EnqueuedAt = time.Now()
	c.pending.Add(1)
	return true, nil
}

// Schedule registers the bundle's hold on the consuming node and admits the
// resulting work. It returns nil when the run no longer accepts work.
func (c *Context) Schedule(node domain.NodeID, bundle *domain.CommittedBundle) (*domain.PendingWork, error) {
	if c.stopped.Load() {
		return nil, nil
	}
	if err := c.watermarks.RegisterHold(node, bundle); err != nil {
		return nil, err
	}
	w := &domain.PendingWork{Node: node, Bundle: bundle}
	ok, err := c.admit(w)
	if err != nil || !ok {
		return nil, err
	}
	return w, nil
}

// SeedRoot commits root input for the node and schedules it.
func (c *Context) SeedRoot(node domain.NodeID, bundle *domain.Bundle) (*domain.PendingWork, error) {
	if want := domain.RootInput(node); bundle.Collection() != want {
		return nil, fmt.Errorf("root bundle %s belongs to %s, want %s", bundle.ID(), bundle.Collection(), want)
	}
	committed := c.registry.Append("", domain.MinInstant, bundle)
	return c.Schedule(node, committed)
}

// AdmitFlushes admits flush work for the nodes whose flush became due.
func (c *Context) AdmitFlushes(update watermarks.Update) ([]*domain.PendingWork, error) {
	var out []*domain.PendingWork
	for _, node := range update.Flushes {
		w := &domain.PendingWork{Node: node}
		ok, err := c.admit(w)
		if err != nil {
			return out, err
		}
		if ok {
			out = append(out, w)
		}
	}
	return out, nil
}

// Commit makes the outputs of finished work visible: each output bundle is
// appended to the registry and scheduled on its consumers, then the work's
// hold is released and watermarks are advanced. Downstream holds are always
// registered before the producer's hold is released. The returned work must
// be dispatched by the caller; Done must still be called for w.
func (c *Context) Commit(w *domain.PendingWork, outputs []*domain.Bundle) ([]*domain.PendingWork, error) {
	producerWatermark := c.watermarks.Watermark(w.Node)

	var next []*domain.PendingWork
	for _, out := range outputs {
		committed := c.registry.Append(w.Node, producerWatermark, out)
		if c.hooks.OnCommit != nil {
			c.hooks.OnCommit(w.Node, committed)
		}

		for _, consumer := range c.graph.Consumers(out.Collection()) {
			work, err := c.Schedule(consumer, committed)
			if err != nil {
				return next, err
			}
			if work != nil {
				next = append(next, work)
			}
		}
	}

	var err error
	if w.IsFlush() {
		err = c.watermarks.ReleaseFlushHold(w.Node)
	} else {
		err = c.watermarks.ReleaseHold(w.Node, w.Bundle)
	}
	if err != nil {
		return next, err
	}

	update, err := c.watermarks.Refresh(w.Node)
	if err != nil {
		return next, err
	}

	flushes, err := c.AdmitFlushes(update)
	next = append(next, flushes...)
	return next, err
}

// Done marks the work finished, whether it was executed, committed or discarded.
func (c *Context) Done(w *domain.PendingWork) {
	if _, existed := c.inflight.LoadAndDelete(w.Key()); !existed {
		c.logger.Error("finished work was not in flight", zap.String("work", w.Key().String()))
		return
	}
	c.decrement()
}

// RecordFailure stores the first failure as authoritative and stops the run
// from admitting work. Later failures are kept for diagnostics only. It
// reports whether f became the authoritative failure.
func (c *Context) RecordFailure(f *domain.Failure) bool {
	if f.At.IsZero() {
		f.At = time.Now()
	}

	c.failMu.Lock()
	first := c.failure == nil
	if first {
		c.failure = f
	} else {
		c.diagnostics = append(c.diagnostics, f)
	}
	c.failMu.Unlock()

	c.stopped.Store(true)

	if first {
		c.logger.Error("run failed",
			zap.String("node_id", string(f.Node)),
			zap.String("bundle_id", f.BundleID),
			zap.String("kind", string(f.Kind)),
			zap.Error(f.Err))
	} else {
		c.logger.Warn("additional failure recorded",
			zap.String("node_id", string(f.Node)),
			zap.String("bundle_id", f.BundleID),
			zap.Error(f.Err))
	}

	if c.hooks.OnFailure != nil {
		c.hooks.OnFailure(f, first)
	}
	return first
}

// Failure returns the authoritative failure, if any.
func (c *Context) Failure() *domain.Failure {
	c.failMu.Lock()
	defer c.failMu.Unlock()
	return c.failure
}

// Diagnostics returns the failures recorded after the authoritative one.
func (c *Context) Diagnostics() []*domain.Failure {
	c.failMu.Lock()
	defer c.failMu.Unlock()
	return append([]*domain.Failure(nil), c.diagnostics...)
}

// Stop prevents any further work from being admitted.
func (c *Context) Stop() {
	c.stopped.Store(true)
}

// Stopped reports whether the run stopped admitting work.
func (c *Context) Stopped() bool {
	return c.stopped.Load()
}

// Pending returns the number of pending or running work items.
func (c *Context) Pending() int {
	return int(c.pending.Load())
}

// InFlight reports whether the work value is currently pending or running.
func (c *Context) InFlight(key domain.WorkKey) bool {
	_, ok := c.inflight.Load(key)
	return ok
}

// IsComplete reports whether no work remains and every watermark is terminal.
func (c *Context) IsComplete() bool {
	return c.pending.Load() == 0 && c.watermarks.AllTerminal()
}

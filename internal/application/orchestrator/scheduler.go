package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aescanero/dago-direct/internal/application/evaluation"
	"github.com/aescanero/dago-direct/internal/application/executor"
	"github.com/aescanero/dago-direct/internal/application/watermarks"
	"github.com/aescanero/dago-direct/internal/application/workers"
	"github.com/aescanero/dago-direct/pkg/domain"
	"github.com/aescanero/dago-direct/pkg/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Options configures the scheduler.
type Options struct {
	Workers  workers.Options
	Executor executor.Config
	// EventBuffer bounds the observability side channel.
	EventBuffer int
	// ReportTimeout bounds saving the run report on the terminal transition.
	ReportTimeout time.Duration
	// ShutdownTimeout bounds draining the worker pool after a run ends.
	ShutdownTimeout time.Duration
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		Workers: workers.Options{
			Size:           4,
			QueueCapacity:  1024,
			EnqueueTimeout: 30 * time.Second,
		},
		Executor:        executor.DefaultConfig(),
		EventBuffer:     1024,
		ReportTimeout:   5 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Dependencies are the optional collaborators of a scheduler.
type Dependencies struct {
	EventBus ports.EventBus
	Reports  ports.ReportStore
	Metrics  ports.MetricsCollector
}

// Scheduler executes a graph in process. A scheduler runs one graph at a
// time: Idle -> Running -> {Completed, Failed}. A terminal scheduler must be
// Reset before it can Start again.
type Scheduler struct {
	graph     *domain.Graph
	roots     RootProvider
	opts      Options
	deps      Dependencies
	validator *Validator
	logger    *zap.Logger

	mu    sync.Mutex
	state domain.RunState
	run   *run
}

// run holds state for a single graph execution
type run struct {
	id        string
	startedAt time.Time
	eval      *evaluation.Context
	pool      *workers.Pool
	exec      *executor.Executor
	notifier  *notifier
	logger    *zap.Logger

	// sourceMu serializes feeding unbounded roots with advancing their source watermark.
	sourceMu      sync.Mutex
	stopRequested atomic.Bool

	finishOnce sync.Once
	done       chan struct{}
	state      domain.RunState
	err        error
	report     *domain.RunReport
}

// NewScheduler creates a scheduler for the graph.
func NewScheduler(graph *domain.Graph, roots RootProvider, opts Options, deps Dependencies, logger *zap.Logger) *Scheduler {
	if roots == nil {
		roots = StaticRoots{}
	}
	if deps.Metrics == nil {
		deps.Metrics = ports.NopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		graph:     graph,
		roots:     roots,
		opts:      opts,
		deps:      deps,
		validator: NewValidator(),
		logger:    logger,
		state:     domain.RunStateIdle,
	}
}

// State returns the current state.
func (s *Scheduler) State() domain.RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) current() *run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run
}

// Start begins a run seeded from the given root nodes. It returns an error
// wrapping domain.ErrInvalidState unless the scheduler is Idle.
func (s *Scheduler) Start(ctx context.Context, rootNodes []domain.NodeID) error {
	s.mu.Lock()
	if s.state != domain.RunStateIdle {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot start while %s", domain.ErrInvalidState, state)
	}

	runNodes, err := s.validator.Validate(s.graph, rootNodes)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("validation failed: %w", err)
	}

	seeds := make(map[domain.NodeID][]*domain.Bundle, len(rootNodes))
	for _, id := range rootNodes {
		bundles, err := s.roots.InitialBundles(ctx, id)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("failed to get initial bundles for %s: %w", id, err)
		}
		if err := s.validator.ValidateBundles(id, bundles); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("validation failed: %w", err)
		}
		seeds[id] = bundles
	}

	r, err := s.newRun(runNodes)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	// guarded before s.mu is released so a concurrent Stop cannot see the
	// run idle while it is still being seeded
	release := r.eval.Guard()
	defer release()
	s.run = r
	s.state = domain.RunStateRunning
	s.mu.Unlock()

	r.notifier.start()
	if err := r.pool.Start(); err != nil {
		r.eval.RecordFailure(&domain.Failure{Kind: domain.FailureKindScheduling, Err: err})
		return nil
	}

	s.deps.Metrics.RecordRunStarted()
	r.notifier.publish(domain.EventTypeRunStarted, "", "", map[string]interface{}{
		"roots": len(rootNodes),
		"nodes": len(runNodes),
	})
	r.logger.Info("run started",
		zap.Int("roots", len(rootNodes)),
		zap.Int("nodes", len(runNodes)),
		zap.Int("workers", s.opts.Workers.Size))

	for _, id := range rootNodes {
		for _, b := range seeds[id] {
			w, err := r.eval.SeedRoot(id, b)
			if err != nil {
				s.fail(r, id, b.ID(), err)
				return nil
			}
			if w == nil {
				return nil
			}
			s.dispatch(r, w)
		}
	}

	update, err := r.eval.Watermarks().RefreshAll()
	if err != nil {
		s.fail(r, "", "", err)
		return nil
	}
	s.dispatchFlushes(r, update)
	return nil
}

func (s *Scheduler) newRun(runNodes []domain.NodeID) (*run, error) {
	id := uuid.New().String()
	r := &run{
		id:        id,
		startedAt: time.Now(),
		done:      make(chan struct{}),
		logger:    s.logger.With(zap.String("run_id", id)),
	}

	r.notifier = newNotifier(s.deps.EventBus, id, s.opts.EventBuffer, s.deps.Metrics, r.logger)

	wm, err := watermarks.NewManager(s.graph, runNodes, func(adv watermarks.Advance) {
		s.deps.Metrics.RecordWatermark(adv.Node, adv.To)
		r.notifier.publish(domain.EventTypeWatermarkAdvanced, adv.Node, "", map[string]interface{}{
			"from":      adv.From.String(),
			"watermark": adv.To.String(),
		})
	}, r.logger)
	if err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	r.eval = evaluation.NewContext(id, s.graph, wm, evaluation.Hooks{
		OnCommit: func(producer domain.NodeID, b *domain.CommittedBundle) {
			s.deps.Metrics.RecordBundleCommitted(producer, b.Len())
			r.notifier.publish(domain.EventTypeBundleCommitted, producer, b.ID(), map[string]interface{}{
				"collection": string(b.Collection()),
				"elements":   b.Len(),
				"watermark":  b.ProducerWatermark.String(),
			})
		},
		OnFailure: func(f *domain.Failure, first bool) {
			r.notifier.publish(domain.EventTypeWorkFailed, f.Node, f.BundleID, map[string]interface{}{
				"kind":          string(f.Kind),
				"error":         f.Err.Error(),
				"authoritative": first,
			})
		},
		OnIdle: func() {
			s.onIdle(r)
		},
	}, r.logger)

	r.exec = executor.NewExecutor(s.graph, s.opts.Executor, s.deps.Metrics,
		func(w *domain.PendingWork, attempt int, err error, delay time.Duration) {
			r.notifier.publish(domain.EventTypeWorkRetried, w.Node, w.BundleID(), map[string]interface{}{
				"attempt": attempt,
				"backoff": delay.String(),
				"error":   err.Error(),
			})
		}, r.logger)

	r.pool = workers.NewPool(s.opts.Workers, func(ctx context.Context, workerID string, w *domain.PendingWork) {
		s.handle(ctx, r, workerID, w)
	}, s.deps.Metrics, r.logger)

	return r, nil
}

// handle executes and commits one work item on a worker goroutine.
func (s *Scheduler) handle(ctx context.Context, r *run, workerID string, w *domain.PendingWork) {
	defer r.eval.Done(w)

	if r.eval.Stopped() {
		r.logger.Debug("discarding work after stop",
			zap.String("worker_id", workerID),
			zap.String("node_id", string(w.Node)),
			zap.String("bundle_id", w.BundleID()))
		return
	}

	result := r.exec.Execute(ctx, w)
	if result.Err != nil {
		r.eval.RecordFailure(&domain.Failure{
			Kind:     domain.KindOf(result.Err),
			Node:     w.Node,
			BundleID: w.BundleID(),
			Attempts: result.Attempts,
			Err:      result.Err,
		})
		return
	}

	next, err := r.eval.Commit(w, result.Outputs)
	for _, n := range next {
		s.dispatch(r, n)
	}
	if err != nil {
		s.fail(r, w.Node, w.BundleID(), err)
	}
	s.deps.Metrics.SetPendingWork(r.eval.Pending())
}

// dispatch hands admitted work to the pool. Work that cannot be enqueued, or
// that was admitted before the run stopped, is finished without running.
func (s *Scheduler) dispatch(r *run, w *domain.PendingWork) {
	if r.eval.Stopped() {
		r.eval.Done(w)
		return
	}
	if err := r.pool.Submit(w); err != nil {
		if !errors.Is(err, workers.ErrPoolStopped) {
			s.fail(r, w.Node, w.BundleID(), err)
		}
		r.eval.Done(w)
	}
}

func (s *Scheduler) dispatchFlushes(r *run, update watermarks.Update) {
	flushes, err := r.eval.AdmitFlushes(update)
	for _, w := range flushes {
		s.dispatch(r, w)
	}
	if err != nil {
		s.fail(r, "", "", err)
	}
}

func (s *Scheduler) fail(r *run, node domain.NodeID, bundleID string, err error) {
	r.eval.RecordFailure(&domain.Failure{
		Kind:     domain.KindOf(err),
		Node:     node,
		BundleID: bundleID,
		Err:      err,
	})
}

// onIdle decides whether a run with no pending work has reached a terminal state.
func (s *Scheduler) onIdle(r *run) {
	if f := r.eval.Failure(); f != nil {
		s.finish(r, domain.RunStateFailed, f.Err)
		return
	}
	if r.stopRequested.Load() {
		s.finish(r, domain.RunStateCompleted, nil)
		return
	}

	wm := r.eval.Watermarks()
	if wm.AllTerminal() {
		s.finish(r, domain.RunStateCompleted, nil)
		return
	}
	if wm.HasOpenSources() {
		return
	}

	err := &domain.SchedulingError{Reason: "no pending work but watermarks are not terminal"}
	r.eval.RecordFailure(&domain.Failure{Kind: domain.FailureKindScheduling, Err: err})
	s.finish(r, domain.RunStateFailed, r.eval.Failure().Err)
}

// finish performs the terminal transition exactly once and releases every waiter.
func (s *Scheduler) finish(r *run, state domain.RunState, err error) {
	r.finishOnce.Do(func() {
		r.state = state
		r.err = err
		r.report = s.buildReport(r, state)

		s.mu.Lock()
		if s.run == r {
			s.state = state
		}
		s.mu.Unlock()

		duration := r.report.Duration()
		s.deps.Metrics.RecordRunFinished(state, duration)

		if state == domain.RunStateCompleted {
			r.notifier.publish(domain.EventTypeRunCompleted, "", "", map[string]interface{}{
				"duration": duration.String(),
			})
			r.logger.Info("run completed", zap.Duration("duration", duration))
		} else {
			r.notifier.publish(domain.EventTypeRunFailed, r.report.Failure.Node, r.report.Failure.BundleID, map[string]interface{}{
				"error": r.report.Failure.Message,
				"kind":  string(r.report.Failure.Kind),
			})
			r.logger.Info("run failed",
				zap.Duration("duration", duration),
				zap.String("node_id", string(r.report.Failure.Node)),
				zap.Error(err))
		}

		if s.deps.Reports != nil {
			ctx, cancel := context.WithTimeout(context.Background(), s.opts.ReportTimeout)
			if err := s.deps.Reports.SaveReport(ctx, r.report); err != nil {
				r.logger.Error("failed to save run report", zap.Error(err))
			}
			cancel()
		}

		close(r.done)

		// finish runs on a worker goroutine, so the pool is drained elsewhere.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
			defer cancel()
			if err := r.pool.Shutdown(ctx); err != nil {
				r.logger.Error("worker pool shutdown error", zap.Error(err))
			}
			r.notifier.close(ctx)
		}()
	})
}

func (s *Scheduler) buildReport(r *run, state domain.RunState) *domain.RunReport {
	report := &domain.RunReport{
		RunID:       r.id,
		State:       state,
		StartedAt:   r.startedAt,
		CompletedAt: time.Now(),
		Watermarks:  make(map[domain.NodeID]string),
		Collections: r.eval.Registry().Stats(),
	}
	for node, wm := range r.eval.Watermarks().Snapshot() {
		report.Watermarks[node] = wm.String()
	}
	if f := r.eval.Failure(); f != nil {
		summary := f.Summarize()
		report.Failure = &summary
	}
	for _, d := range r.eval.Diagnostics() {
		report.Diagnostics = append(report.Diagnostics, d.Summarize())
	}
	return report
}

// AwaitCompletion blocks until the run reaches Completed or Failed, or ctx
// ends. On failure it returns the captured error exactly as it was raised.
// Any number of callers may wait at once.
func (s *Scheduler) AwaitCompletion(ctx context.Context) error {
	r := s.current()
	if r == nil {
		return domain.ErrNotStarted
	}

	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed on the terminal transition of the current
// run, or nil before Start.
func (s *Scheduler) Done() <-chan struct{} {
	r := s.current()
	if r == nil {
		return nil
	}
	return r.done
}

// Reset returns a terminal scheduler to Idle so it can Start a fresh run.
func (s *Scheduler) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case domain.RunStateIdle:
		return nil
	case domain.RunStateRunning:
		return fmt.Errorf("%w: cannot reset while running", domain.ErrInvalidState)
	}
	s.state = domain.RunStateIdle
	s.run = nil
	return nil
}

// Stop is the external stop condition for unbounded runs: no further work is
// admitted, in-flight work drains, and the run completes.
func (s *Scheduler) Stop() error {
	r, err := s.running()
	if err != nil {
		return err
	}

	release := r.eval.Guard()
	r.stopRequested.Store(true)
	r.eval.Stop()
	r.logger.Info("stop requested", zap.Int("pending", r.eval.Pending()))
	release()
	return nil
}

func (s *Scheduler) running() (*run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.RunStateRunning {
		return nil, fmt.Errorf("%w: run is %s", domain.ErrInvalidState, s.state)
	}
	return s.run, nil
}

func (s *Scheduler) unboundedRoot(r *run, node domain.NodeID) error {
	n, ok := s.graph.Node(node)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownNode, node)
	}
	if !n.IsRoot() || !n.IsUnbounded() {
		return fmt.Errorf("%w: %s is not an unbounded root", domain.ErrNotRoot, node)
	}
	if _, open := r.eval.Watermarks().SourceWatermark(node); !open {
		return fmt.Errorf("%w: %s", domain.ErrSourceClosed, node)
	}
	return nil
}

// Inject feeds a bundle of elements to an unbounded root while the run is in
// progress. Elements behind the root's source watermark are rejected.
func (s *Scheduler) Inject(node domain.NodeID, elements ...domain.Element) error {
	r, err := s.running()
	if err != nil {
		return err
	}

	r.sourceMu.Lock()
	defer r.sourceMu.Unlock()

	if err := s.unboundedRoot(r, node); err != nil {
		return err
	}
	source, _ := r.eval.Watermarks().SourceWatermark(node)
	for _, e := range elements {
		if e.Timestamp < source || e.Timestamp > domain.MaxInstant {
			return fmt.Errorf("%w: element at %s, source watermark of %s is %s", domain.ErrTimestampBehindInput, e.Timestamp, node, source)
		}
	}

	release := r.eval.Guard()
	defer release()

	w, err := r.eval.SeedRoot(node, domain.NewRootBundle(node, elements...))
	if err != nil {
		s.fail(r, node, "", err)
		return err
	}
	if w == nil {
		return fmt.Errorf("%w: run is stopping", domain.ErrInvalidState)
	}
	s.dispatch(r, w)
	return nil
}

// AdvanceSource moves the source watermark of an unbounded root. Advancing to
// domain.EndOfTime closes the source.
func (s *Scheduler) AdvanceSource(node domain.NodeID, ts domain.Instant) error {
	r, err := s.running()
	if err != nil {
		return err
	}

	r.sourceMu.Lock()
	defer r.sourceMu.Unlock()

	if err := s.unboundedRoot(r, node); err != nil {
		return err
	}

	release := r.eval.Guard()
	defer release()

	update, err := r.eval.Watermarks().AdvanceSource(node, ts)
	if err != nil {
		var se *domain.SchedulingError
		if errors.As(err, &se) {
			s.fail(r, node, "", err)
		}
		return err
	}
	s.dispatchFlushes(r, update)
	return nil
}

// Failure returns the authoritative failure of the current run, if any.
func (s *Scheduler) Failure() *domain.Failure {
	r := s.current()
	if r == nil {
		return nil
	}
	return r.eval.Failure()
}

// Report returns the report of the current run once it is terminal.
func (s *Scheduler) Report() *domain.RunReport {
	r := s.current()
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return r.report
	default:
		return nil
	}
}

// Committed returns the committed bundles of a collection in the current run.
func (s *Scheduler) Committed(collection domain.CollectionID) []*domain.CommittedBundle {
	r := s.current()
	if r == nil {
		return nil
	}
	return r.eval.Registry().Bundles(collection)
}

// Elements returns every committed element of a collection in the current run.
func (s *Scheduler) Elements(collection domain.CollectionID) []domain.Element {
	r := s.current()
	if r == nil {
		return nil
	}
	return r.eval.Registry().Elements(collection)
}

// Watermark returns a node's output watermark in the current run.
func (s *Scheduler) Watermark(node domain.NodeID) domain.Instant {
	r := s.current()
	if r == nil {
		return domain.MinInstant
	}
	return r.eval.Watermarks().Watermark(node)
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	RunID      string              `json:"run_id,omitempty"`
	State      domain.RunState     `json:"state"`
	StartedAt  *time.Time          `json:"started_at,omitempty"`
	Pending    int                 `json:"pending"`
	QueueDepth int                 `json:"queue_depth"`
	Watermarks map[string]string   `json:"watermarks,omitempty"`
	Workers    *workers.PoolHealth `json:"workers,omitempty"`
}

// Status returns the current status.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	r, state := s.run, s.state
	s.mu.Unlock()

	status := Status{State: state}
	if r == nil {
		return status
	}
	started := r.startedAt
	status.RunID = r.id
	status.StartedAt = &started
	status.Pending = r.eval.Pending()
	status.QueueDepth = r.pool.QueueDepth()
	health := r.pool.Health().Snapshot()
	status.Workers = &health
	status.Watermarks = make(map[string]string)
	for node, wm := range r.eval.Watermarks().Snapshot() {
		status.Watermarks[string(node)] = wm.String()
	}
	return status
}

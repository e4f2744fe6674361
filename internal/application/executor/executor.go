package executor

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/aescanero/dago-direct/pkg/domain"
	"github.com/aescanero/dago-direct/pkg/ports"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// Config holds the default retry behavior. Nodes may override MaxRetries and
// the classifier through their RetryPolicy.
type Config struct {
	MaxRetries          int
	Classify            domain.Classifier
	InitialBackoff      time.Duration
	MaxBackoff          time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:          3,
		Classify:            domain.DefaultClassifier,
		InitialBackoff:      50 * time.Millisecond,
		MaxBackoff:          2 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.1,
	}
}

// RetryFunc is called before a retry is attempted.
type RetryFunc func(w *domain.PendingWork, attempt int, err error, delay time.Duration)

// Result is the outcome of executing one work item.
type Result struct {
	Outputs  []*domain.Bundle
	Attempts int
	// Err is the terminal error exactly as the processor returned it, or nil.
	Err      error
	Duration time.Duration
}

// Executor runs work items against the nodes of a graph.
type Executor struct {
	graph   *domain.Graph
	cfg     Config
	metrics ports.MetricsCollector
	onRetry RetryFunc
	logger  *zap.Logger
}

// NewExecutor creates an executor.
func NewExecutor(graph *domain.Graph, cfg Config, metrics ports.MetricsCollector, onRetry RetryFunc, logger *zap.Logger) *Executor {
	if cfg.Classify == nil {
		cfg.Classify = domain.DefaultClassifier
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Executor{
		graph:   graph,
		cfg:     cfg,
		metrics: metrics,
		onRetry: onRetry,
		logger:  logger,
	}
}

// policy resolves the retry bound and classifier for a node.
func (e *Executor) policy(node *domain.TransformNode) (int, domain.Classifier) {
	maxRetries, classify := e.cfg.MaxRetries, e.cfg.Classify
	if p, ok := node.RetryPolicy(); ok {
		maxRetries = p.MaxRetries
		if p.Classify != nil {
			classify = p.Classify
		}
	}
	return maxRetries, classify
}

func (e *Executor) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.InitialBackoff
	b.MaxInterval = e.cfg.MaxBackoff
	if e.cfg.Multiplier > 0 {
		b.Multiplier = e.cfg.Multiplier
	}
	b.RandomizationFactor = e.cfg.RandomizationFactor
	b.Reset()
	return b
}

// Execute runs the work to completion, retrying retryable errors. It never
// commits anything itself; the caller commits Result.Outputs on success.
func (e *Executor) Execute(ctx context.Context, w *domain.PendingWork) Result {
	start := time.Now()

	node, ok := e.graph.Node(w.Node)
	if !ok {
		return Result{Err: &domain.SchedulingError{Node: w.Node, Reason: "work scheduled for a node outside the graph"}}
	}
	if w.IsFlush() {
		if _, ok := node.Processor().(domain.Flusher); !ok {
			return Result{Err: &domain.SchedulingError{Node: w.Node, Reason: "flush scheduled for a node that cannot flush"}}
		}
	}

	maxRetries, classify := e.policy(node)
	logger := e.logger.With(
		zap.String("node_id", string(w.Node)),
		zap.String("bundle_id", w.BundleID()))

	var b *backoff.ExponentialBackOff
	result := Result{}
	for attempt := 1; ; attempt++ {
		result.Attempts = attempt

		outputs, err := e.attempt(ctx, node, w)
		if err == nil {
			result.Outputs = outputs
			result.Duration = time.Since(start)
			e.metrics.RecordWorkExecuted(w.Node, "succeeded", result.Duration)
			logger.Debug("work executed",
				zap.Int("attempts", attempt),
				zap.Int("outputs", len(outputs)),
				zap.Duration("duration", result.Duration))
			return result
		}

		if classify(err) != domain.Retry || attempt > maxRetries {
			result.Err = err
			result.Duration = time.Since(start)
			e.metrics.RecordWorkExecuted(w.Node, "failed", result.Duration)
			logger.Warn("work failed",
				zap.Int("attempts", attempt),
				zap.Error(err))
			return result
		}

		if b == nil {
			b = e.newBackOff()
		}
		delay := b.NextBackOff()
		e.metrics.RecordRetry(w.Node)
		if e.onRetry != nil {
			e.onRetry(w, attempt, err, delay)
		}
		logger.Warn("retrying work",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				result.Err = err
				result.Duration = time.Since(start)
				e.metrics.RecordWorkExecuted(w.Node, "failed", result.Duration)
				return result
			case <-timer.C:
			}
		}
	}
}

// attempt runs the processor once with a fresh output buffer.
func (e *Executor) attempt(ctx context.Context, node *domain.TransformNode, w *domain.PendingWork) (outputs []*domain.Bundle, err error) {
	floor := domain.MaxInstant
	if !w.IsFlush() {
		floor = w.Bundle.MinTimestamp()
	}
	buf := newOutputBuffer(node, floor)

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("processor panicked",
				zap.String("node_id", string(node.ID())),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			outputs, err = nil, &domain.PanicError{Value: r}
		}
	}()

	if w.IsFlush() {
		err = node.Processor().(domain.Flusher).Flush(ctx, buf)
	} else {
		err = node.Processor().Process(ctx, w.Bundle, buf)
	}
	if err != nil {
		return nil, err
	}
	if err := buf.firstErr(); err != nil {
		return nil, err
	}
	return buf.bundles(), nil
}

// String describes the executor configuration.
func (c Config) String() string {
	return fmt.Sprintf("max_retries=%d initial_backoff=%s max_backoff=%s", c.MaxRetries, c.InitialBackoff, c.MaxBackoff)
}

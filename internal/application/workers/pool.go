package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/dago-direct/pkg/domain"
	"github.com/aescanero/dago-direct/pkg/ports"
	"go.uber.org/zap"
)

// ErrPoolStopped is returned when submitting to a pool that is not running.
var ErrPoolStopped = errors.New("worker pool stopped")

// Handler executes one work item on a worker goroutine.
type Handler func(ctx context.Context, workerID string, w *domain.PendingWork)

// Pool manages a pool of worker goroutines
type Pool struct {
	size           int
	queue          chan *domain.PendingWork
	enqueueTimeout time.Duration
	handler        Handler
	metrics        ports.MetricsCollector
	logger         *zap.Logger
	health         *HealthMonitor

	workers []*worker
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	started bool
}

// worker represents a single worker goroutine
type worker struct {
	id      string
	pool    *Pool
	status  WorkerStatus
	mu      sync.RWMutex
	lastJob time.Time
}

// WorkerStatus represents worker status
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusBusy    WorkerStatus = "busy"
	WorkerStatusStopped WorkerStatus = "stopped"
)

// Options configures a pool.
type Options struct {
	Size           int
	QueueCapacity  int
	EnqueueTimeout time.Duration
	HealthInterval time.Duration
}

// NewPool creates a new worker pool
func NewPool(opts Options, handler Handler, metrics ports.MetricsCollector, logger *zap.Logger) *Pool {
	if opts.Size < 1 {
		opts.Size = 1
	}
	if opts.QueueCapacity < 1 {
		opts.QueueCapacity = 1
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	pool := &Pool{
		size:           opts.Size,
		queue:          make(chan *domain.PendingWork, opts.QueueCapacity),
		enqueueTimeout: opts.EnqueueTimeout,
		handler:        handler,
		metrics:        metrics,
		logger:         logger,
		workers:        make([]*worker, opts.Size),
		ctx:            ctx,
		cancel:         cancel,
	}

	pool.health = NewHealthMonitor(pool, opts.HealthInterval, logger)

	return pool
}

// Start starts the worker pool
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return fmt.Errorf("worker pool already started")
	}
	if p.ctx.Err() != nil {
		return ErrPoolStopped
	}
	p.started = true

	p.logger.Debug("starting worker pool", zap.Int("size", p.size), zap.Int("queue_capacity", cap(p.queue)))

	for i := 0; i < p.size; i++ {
		w := &worker{
			id:      fmt.Sprintf("worker-%d", i),
			pool:    p,
			status:  WorkerStatusIdle,
			lastJob: time.Now(),
		}
		p.workers[i] = w

		p.wg.Add(1)
		go w.run(p.ctx)
	}

	p.health.Start()
	return nil
}

// Submit enqueues work, blocking while the queue is full. It fails with a
// BackpressureTimeoutError once the enqueue deadline passes.
func (p *Pool) Submit(w *domain.PendingWork) error {
	select {
	case <-p.ctx.Done():
		return ErrPoolStopped
	default:
	}

	select {
	case p.queue <- w:
		p.metrics.SetQueueDepth(len(p.queue))
		return nil
	default:
	}

	p.logger.Debug("pending-work queue full, waiting",
		zap.String("node_id", string(w.Node)),
		zap.Int("queue_capacity", cap(p.queue)))

	var timeout <-chan time.Time
	if p.enqueueTimeout > 0 {
		timer := time.NewTimer(p.enqueueTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case p.queue <- w:
		p.metrics.SetQueueDepth(len(p.queue))
		return nil
	case <-timeout:
		return &domain.BackpressureTimeoutError{Node: w.Node, Timeout: p.enqueueTimeout}
	case <-p.ctx.Done():
		return ErrPoolStopped
	}
}

// QueueDepth returns the number of queued items.
func (p *Pool) QueueDepth() int {
	return len(p.queue)
}

// Shutdown gracefully shuts down the worker pool
func (p *Pool) Shutdown(ctx context.Context) error {
	p.health.Stop()
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Debug("worker pool shut down complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout")
	}
}

// GetStatus returns the status of all workers
func (p *Pool) GetStatus() map[string]WorkerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	status := make(map[string]WorkerStatus)
	for _, w := range p.workers {
		if w == nil {
			continue
		}
		w.mu.RLock()
		status[w.id] = w.status
		w.mu.RUnlock()
	}
	return status
}

// run is the main worker loop
func (w *worker) run(ctx context.Context) {
	defer w.pool.wg.Done()

	for {
		select {
		case <-ctx.Done():
			w.setStatus(WorkerStatusStopped)
			return
		case work := <-w.pool.queue:
			w.pool.metrics.SetQueueDepth(len(w.pool.queue))
			w.setStatus(WorkerStatusBusy)
			w.pool.handler(ctx, w.id, work)
			w.setStatus(WorkerStatusIdle)
		}
	}
}

func (w *worker) setStatus(status WorkerStatus) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	if status == WorkerStatusBusy {
		w.lastJob = time.Now()
	}
}

// Health returns the pool's health monitor.
func (p *Pool) Health() *HealthMonitor {
	return p.health
}

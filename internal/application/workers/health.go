package workers

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// PoolHealth is a point-in-time view of the pool. The pool is saturated
// when every worker is busy and the pending-work queue is full: the next
// Submit blocks and counts against the enqueue deadline.
type PoolHealth struct {
	Workers       int       `json:"workers"`
	Idle          int       `json:"idle"`
	Busy          int       `json:"busy"`
	Stopped       int       `json:"stopped"`
	QueueDepth    int       `json:"queue_depth"`
	QueueCapacity int       `json:"queue_capacity"`
	Saturated     bool      `json:"saturated"`
	Healthy       bool      `json:"healthy"`
	CheckedAt     time.Time `json:"checked_at"`
}

// HealthMonitor periodically samples the pool, records worker metrics and
// logs transitions into and out of saturation.
type HealthMonitor struct {
	pool     *Pool
	interval time.Duration
	logger   *zap.Logger

	mu          sync.Mutex
	running     bool
	stopCh      chan struct{}
	saturated   bool
	saturations int
}

// NewHealthMonitor creates a monitor sampling pool every interval.
func NewHealthMonitor(pool *Pool, interval time.Duration, logger *zap.Logger) *HealthMonitor {
	return &HealthMonitor{
		pool:     pool,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start starts sampling. A non-positive interval disables it; Snapshot
// still works.
func (h *HealthMonitor) Start() {
	if h.interval <= 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}
	h.running = true
	go h.run()
}

// Stop stops sampling.
func (h *HealthMonitor) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	h.running = false
	close(h.stopCh)
}

func (h *HealthMonitor) run() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.check()
		}
	}
}

// check samples the pool once.
func (h *HealthMonitor) check() PoolHealth {
	status := h.Snapshot()
	h.pool.metrics.RecordWorkerPoolStatus(status.Idle, status.Busy, status.Stopped)
	h.pool.metrics.SetQueueDepth(status.QueueDepth)

	h.mu.Lock()
	entered := status.Saturated && !h.saturated
	left := !status.Saturated && h.saturated
	h.saturated = status.Saturated
	if entered {
		h.saturations++
	}
	h.mu.Unlock()

	switch {
	case entered:
		h.logger.Warn("worker pool saturated, submits are blocking",
			zap.Int("workers", status.Workers),
			zap.Int("queue_depth", status.QueueDepth),
			zap.Duration("enqueue_timeout", h.pool.enqueueTimeout))
	case left:
		h.logger.Info("worker pool no longer saturated",
			zap.Int("busy", status.Busy),
			zap.Int("queue_depth", status.QueueDepth))
	default:
		h.logger.Debug("worker pool health check",
			zap.Int("idle", status.Idle),
			zap.Int("busy", status.Busy),
			zap.Int("queue_depth", status.QueueDepth))
	}
	return status
}

// Saturations returns how many times sampling found the pool entering saturation.
func (h *HealthMonitor) Saturations() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.saturations
}

// Snapshot computes the current pool health. A pool is healthy while it has
// workers and none of them stopped.
func (h *HealthMonitor) Snapshot() PoolHealth {
	status := PoolHealth{
		QueueDepth:    h.pool.QueueDepth(),
		QueueCapacity: cap(h.pool.queue),
		CheckedAt:     time.Now(),
	}
	for _, ws := range h.pool.GetStatus() {
		status.Workers++
		switch ws {
		case WorkerStatusIdle:
			status.Idle++
		case WorkerStatusBusy:
			status.Busy++
		case WorkerStatusStopped:
			status.Stopped++
		}
	}

	status.Healthy = status.Workers > 0 && status.Stopped == 0
	status.Saturated = status.Workers > 0 && status.Busy == status.Workers && status.QueueDepth == status.QueueCapacity
	return status
}

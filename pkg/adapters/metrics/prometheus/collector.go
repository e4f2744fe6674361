package prometheus

import (
	"math"
	"time"

	"github.com/aescanero/dago-direct/pkg/domain"
	"github.com/aescanero/dago-direct/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements MetricsCollector using Prometheus
type Collector struct {
	runsStarted       prometheus.Counter
	runsFinished      *prometheus.CounterVec
	runDuration       *prometheus.HistogramVec
	workExecuted      *prometheus.CounterVec
	workDuration      *prometheus.HistogramVec
	retries           *prometheus.CounterVec
	bundlesCommitted  *prometheus.CounterVec
	elementsCommitted *prometheus.CounterVec
	watermark         *prometheus.GaugeVec
	eventsDropped     prometheus.Counter
	queueDepth        prometheus.Gauge
	pendingWork       prometheus.Gauge
	workerPoolIdle    prometheus.Gauge
	workerPoolBusy    prometheus.Gauge
	workerPoolStopped prometheus.Gauge
}

// NewCollector creates a new Prometheus metrics collector registered with
// reg. A nil reg uses the default registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		runsStarted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dago_runs_started_total",
				Help: "Total number of runs started",
			},
		),
		runsFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dago_runs_finished_total",
				Help: "Total number of runs that reached a terminal state",
			},
			[]string{"state"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dago_run_duration_seconds",
				Help:    "Run duration in seconds",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"state"},
		),
		workExecuted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dago_work_executed_total",
				Help: "Total number of work items executed",
			},
			[]string{"node", "status"},
		),
		workDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dago_work_duration_seconds",
				Help:    "Work item execution duration in seconds, retries included",
				Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"node"},
		),
		retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dago_work_retries_total",
				Help: "Total number of retried work attempts",
			},
			[]string{"node"},
		),
		bundlesCommitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dago_bundles_committed_total",
				Help: "Total number of committed output bundles",
			},
			[]string{"node"},
		),
		elementsCommitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dago_elements_committed_total",
				Help: "Total number of committed output elements",
			},
			[]string{"node"},
		),
		watermark: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dago_watermark_seconds",
				Help: "Output watermark per node as unix seconds, +Inf once terminal",
			},
			[]string{"node"},
		),
		eventsDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dago_events_dropped_total",
				Help: "Total number of engine events dropped by the notifier",
			},
		),
		queueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dago_queue_depth",
				Help: "Current depth of the pending work queue",
			},
		),
		pendingWork: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dago_pending_work",
				Help: "Work items pending or running",
			},
		),
		workerPoolIdle: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dago_worker_pool_idle",
				Help: "Number of idle workers",
			},
		),
		workerPoolBusy: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dago_worker_pool_busy",
				Help: "Number of busy workers",
			},
		),
		workerPoolStopped: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dago_worker_pool_stopped",
				Help: "Number of stopped workers",
			},
		),
	}
}

// RecordRunStarted counts a started run
func (c *Collector) RecordRunStarted() {
	c.runsStarted.Inc()
}

// RecordRunFinished records a terminal transition
func (c *Collector) RecordRunFinished(state domain.RunState, duration time.Duration) {
	c.runsFinished.WithLabelValues(string(state)).Inc()
	c.runDuration.WithLabelValues(string(state)).Observe(duration.Seconds())
}

// RecordWorkExecuted records one executed work item
func (c *Collector) RecordWorkExecuted(node domain.NodeID, status string, duration time.Duration) {
	c.workExecuted.WithLabelValues(string(node), status).Inc()
	c.workDuration.WithLabelValues(string(node)).Observe(duration.Seconds())
}

// RecordRetry counts a retried attempt
func (c *Collector) RecordRetry(node domain.NodeID) {
	c.retries.WithLabelValues(string(node)).Inc()
}

// RecordBundleCommitted counts a committed bundle and its elements
func (c *Collector) RecordBundleCommitted(node domain.NodeID, elements int) {
	c.bundlesCommitted.WithLabelValues(string(node)).Inc()
	c.elementsCommitted.WithLabelValues(string(node)).Add(float64(elements))
}

// RecordWatermark sets the node's watermark gauge
func (c *Collector) RecordWatermark(node domain.NodeID, watermark domain.Instant) {
	var v float64
	switch {
	case watermark.IsTerminal():
		v = math.Inf(1)
	case watermark == domain.MinInstant:
		v = math.Inf(-1)
	default:
		v = float64(watermark) / 1e6
	}
	c.watermark.WithLabelValues(string(node)).Set(v)
}

// RecordEventDropped counts an event dropped by the notifier
func (c *Collector) RecordEventDropped() {
	c.eventsDropped.Inc()
}

// SetQueueDepth sets the current depth of the work queue
func (c *Collector) SetQueueDepth(depth int) {
	c.queueDepth.Set(float64(depth))
}

// SetPendingWork sets the number of pending work items
func (c *Collector) SetPendingWork(count int) {
	c.pendingWork.Set(float64(count))
}

// RecordWorkerPoolStatus records worker pool status
func (c *Collector) RecordWorkerPoolStatus(idle, busy, stopped int) {
	c.workerPoolIdle.Set(float64(idle))
	c.workerPoolBusy.Set(float64(busy))
	c.workerPoolStopped.Set(float64(stopped))
}

var _ ports.MetricsCollector = (*Collector)(nil)

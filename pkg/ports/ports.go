// Package ports declares the interfaces the engine uses to talk to its
// collaborators: the observability side channel, run report storage and
// metrics.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/aescanero/dago-direct/pkg/domain"
)

// EventHandler consumes an event delivered by an EventBus.
type EventHandler func(ctx context.Context, event domain.Event) error

// EventBus carries engine events to observers.
type EventBus interface {
	Publish(ctx context.Context, topic string, event domain.Event) error
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Close() error
}

// ErrReportNotFound is returned by a ReportStore for an unknown run.
var ErrReportNotFound = errors.New("report not found")

// ReportStore persists reports of finished runs.
type ReportStore interface {
	SaveReport(ctx context.Context, report *domain.RunReport) error
	GetReport(ctx context.Context, runID string) (*domain.RunReport, error)
	ListReports(ctx context.Context) ([]string, error)
}

// MetricsCollector records engine metrics.
type MetricsCollector interface {
	RecordRunStarted()
	RecordRunFinished(state domain.RunState, duration time.Duration)
	RecordWorkExecuted(node domain.NodeID, status string, duration time.Duration)
	RecordRetry(node domain.NodeID)
	RecordBundleCommitted(node domain.NodeID, elements int)
	RecordWatermark(node domain.NodeID, watermark domain.Instant)
	RecordEventDropped()
	SetQueueDepth(depth int)
	SetPendingWork(count int)
	RecordWorkerPoolStatus(idle, busy, stopped int)
}

// NopMetrics discards all metrics.
type NopMetrics struct{}

var _ MetricsCollector = NopMetrics{}

func (NopMetrics) RecordRunStarted() {}
func (NopMetrics) RecordRunFinished(domain.RunState, time.Duration) {}
func (NopMetrics) RecordWorkExecuted(domain.NodeID, string, time.Duration) {}
func (NopMetrics) RecordRetry(domain.NodeID) {}
func (NopMetrics) RecordBundleCommitted(domain.NodeID, int) {}
func (NopMetrics) RecordWatermark(domain.NodeID, domain.Instant) {}
func (NopMetrics) RecordEventDropped() {}
func (NopMetrics) SetQueueDepth(int) {}
func (NopMetrics) SetPendingWork(int) {}
func (NopMetrics) RecordWorkerPoolStatus(int, int, int) {}

package prometheus

import (
	"math"
	"testing"
	"time"

	"github.com/aescanero/dago-direct/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Runs(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRunStarted()
	c.RecordRunStarted()
	c.RecordRunFinished(domain.RunStateCompleted, time.Second)
	c.RecordRunFinished(domain.RunStateFailed, 2*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.runsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsFinished.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsFinished.WithLabelValues("failed")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.runDuration))
}

func TestCollector_Work(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RecordWorkExecuted("sum", "success", time.Millisecond)
	c.RecordWorkExecuted("sum", "error", time.Millisecond)
	c.RecordRetry("sum")
	c.RecordBundleCommitted("sum", 3)
	c.RecordBundleCommitted("sum", 4)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.workExecuted.WithLabelValues("sum", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.workExecuted.WithLabelValues("sum", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.retries.WithLabelValues("sum")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.bundlesCommitted.WithLabelValues("sum")))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.elementsCommitted.WithLabelValues("sum")))
}

func TestCollector_Watermark(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RecordWatermark("a", domain.MinInstant)
	assert.True(t, math.IsInf(testutil.ToFloat64(c.watermark.WithLabelValues("a")), -1))

	c.RecordWatermark("a", domain.Instant(2_500_000))
	assert.Equal(t, 2.5, testutil.ToFloat64(c.watermark.WithLabelValues("a")))

	c.RecordWatermark("a", domain.EndOfTime)
	assert.True(t, math.IsInf(testutil.ToFloat64(c.watermark.WithLabelValues("a")), 1))
}

func TestCollector_Gauges(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RecordEventDropped()
	c.SetQueueDepth(5)
	c.SetPendingWork(9)
	c.RecordWorkerPoolStatus(1, 2, 3)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.eventsDropped))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.queueDepth))
	assert.Equal(t, 9.0, testutil.ToFloat64(c.pendingWork))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.workerPoolIdle))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.workerPoolBusy))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.workerPoolStopped))
}

func TestNewCollector_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
	assert.Panics(t, func() { NewCollector(reg) }, "metric names are unique per registry")
}

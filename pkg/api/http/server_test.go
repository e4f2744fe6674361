package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aescanero/dago-direct/internal/application/orchestrator"
	"github.com/aescanero/dago-direct/internal/application/workers"
	memstorage "github.com/aescanero/dago-direct/pkg/adapters/storage/memory"
	"github.com/aescanero/dago-direct/pkg/domain"
	"github.com/aescanero/dago-direct/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fixedStatus orchestrator.Status

func (f fixedStatus) Status() orchestrator.Status { return orchestrator.Status(f) }

type brokenStore struct{ ports.ReportStore }

func (brokenStore) GetReport(context.Context, string) (*domain.RunReport, error) {
	return nil, errors.New("connection refused")
}

func (brokenStore) ListReports(context.Context) ([]string, error) {
	return nil, errors.New("connection refused")
}

func newTestServer(t *testing.T, status orchestrator.Status, reports ports.ReportStore) *Server {
	t.Helper()
	return NewServer(&Config{
		Engine:   fixedStatus(status),
		Reports:  reports,
		Gatherer: prometheus.NewRegistry(),
		Logger:   zaptest.NewLogger(t),
	})
}

func get(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	tests := []struct {
		state  domain.RunState
		code   int
		health string
	}{
		{domain.RunStateIdle, http.StatusOK, "healthy"},
		{domain.RunStateRunning, http.StatusOK, "healthy"},
		{domain.RunStateCompleted, http.StatusOK, "healthy"},
		{domain.RunStateFailed, http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			s := newTestServer(t, orchestrator.Status{State: tt.state}, nil)
			rec, body := get(t, s, "/health")

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.health, body["status"])
			assert.Equal(t, string(tt.state), body["checks"].(map[string]any)["engine"])
		})
	}
}

func TestHealth_WorkerPool(t *testing.T) {
	tests := []struct {
		name    string
		pool    workers.PoolHealth
		code    int
		workers string
	}{
		{"healthy", workers.PoolHealth{Workers: 2, Idle: 2, QueueCapacity: 4, Healthy: true}, http.StatusOK, "healthy"},
		{"saturated", workers.PoolHealth{Workers: 2, Busy: 2, QueueDepth: 4, QueueCapacity: 4, Healthy: true, Saturated: true}, http.StatusOK, "saturated"},
		{"stopped workers", workers.PoolHealth{Workers: 2, Idle: 1, Stopped: 1, QueueCapacity: 4}, http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := tt.pool
			s := newTestServer(t, orchestrator.Status{State: domain.RunStateRunning, Workers: &pool}, nil)
			rec, body := get(t, s, "/health")

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.workers, body["checks"].(map[string]any)["workers"])
		})
	}
}

func TestHealth_FinishedRunIgnoresDrainedPool(t *testing.T) {
	pool := workers.PoolHealth{Workers: 2, Stopped: 2, QueueCapacity: 4}
	s := newTestServer(t, orchestrator.Status{State: domain.RunStateCompleted, Workers: &pool}, nil)

	rec, body := get(t, s, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "idle", body["checks"].(map[string]any)["workers"])
}

func TestGetStatus(t *testing.T) {
	s := newTestServer(t, orchestrator.Status{
		RunID:      "run-1",
		State:      domain.RunStateRunning,
		Pending:    3,
		Watermarks: map[string]string{"sum": "-inf"},
		Workers:    &workers.PoolHealth{Workers: 4, Busy: 1, Idle: 3, QueueDepth: 2, QueueCapacity: 64, Healthy: true},
	}, nil)

	rec, body := get(t, s, "/api/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "run-1", body["run_id"])
	assert.Equal(t, "running", body["state"])
	assert.Equal(t, 3.0, body["pending"])
	assert.Equal(t, "-inf", body["watermarks"].(map[string]any)["sum"])

	pool := body["workers"].(map[string]any)
	assert.Equal(t, 4.0, pool["workers"])
	assert.Equal(t, 1.0, pool["busy"])
	assert.Equal(t, 64.0, pool["queue_capacity"])
	assert.Equal(t, false, pool["saturated"])
}

func TestReports(t *testing.T) {
	store := memstorage.NewInMemoryReportStore()
	require.NoError(t, store.SaveReport(context.Background(), &domain.RunReport{RunID: "run-1", State: domain.RunStateCompleted}))
	s := newTestServer(t, orchestrator.Status{}, store)

	rec, body := get(t, s, "/api/v1/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"run-1"}, body["runs"])
	assert.Equal(t, 1.0, body["total"])

	rec, body = get(t, s, "/api/v1/runs/run-1/report")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", body["state"])

	rec, body = get(t, s, "/api/v1/runs/nope/report")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", body["error"].(map[string]any)["code"])
}

func TestReports_StorageErrors(t *testing.T) {
	s := newTestServer(t, orchestrator.Status{}, brokenStore{})

	rec, body := get(t, s, "/api/v1/runs")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "STORAGE_ERROR", body["error"].(map[string]any)["code"])

	rec, _ = get(t, s, "/api/v1/runs/run-1/report")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestReports_NotConfigured(t *testing.T) {
	s := newTestServer(t, orchestrator.Status{}, nil)

	for _, path := range []string{"/api/v1/runs", "/api/v1/runs/run-1/report"} {
		rec, body := get(t, s, path)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		assert.Equal(t, "REPORTS_NOT_AVAILABLE", body["error"].(map[string]any)["code"], path)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, orchestrator.Status{}, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/status", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "dago_test_total", Help: "test"}))

	s := NewServer(&Config{Engine: fixedStatus{}, Gatherer: reg, Logger: zaptest.NewLogger(t)})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dago_test_total 0")
}

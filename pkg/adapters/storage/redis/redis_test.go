package redis

import (
	"context"
	"testing"
	"time"

	"github.com/aescanero/dago-direct/pkg/domain"
	"github.com/aescanero/dago-direct/pkg/ports"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newStore(t *testing.T, ttl time.Duration) (*ReportStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewReportStore(client, ttl, zaptest.NewLogger(t)), mr
}

func TestReportStore_SaveAndGet(t *testing.T) {
	store, mr := newStore(t, time.Hour)
	ctx := context.Background()

	report := &domain.RunReport{
		RunID:       "run-1",
		State:       domain.RunStateFailed,
		StartedAt:   time.Unix(100, 0).UTC(),
		CompletedAt: time.Unix(160, 0).UTC(),
		Watermarks:  map[domain.NodeID]string{"sum": "end-of-time"},
		Collections: map[domain.CollectionID]domain.CollectionStats{"out": {Bundles: 2, Elements: 7}},
		Failure:     &domain.FailureSummary{Kind: domain.FailureKindUser, Node: "sum", Message: "boom"},
	}
	require.NoError(t, store.SaveReport(ctx, report))

	assert.True(t, mr.Exists("dago-direct:report:run-1"))
	assert.Equal(t, time.Hour, mr.TTL("dago-direct:report:run-1"))

	got, err := store.GetReport(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, report.State, got.State)
	assert.Equal(t, time.Minute, got.Duration())
	assert.Equal(t, report.Collections, got.Collections)
	require.NotNil(t, got.Failure)
	assert.Equal(t, "boom", got.Failure.Message)
}

func TestReportStore_Expiry(t *testing.T) {
	store, mr := newStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.SaveReport(ctx, &domain.RunReport{RunID: "run-1"}))
	mr.FastForward(2 * time.Minute)

	_, err := store.GetReport(ctx, "run-1")
	assert.ErrorIs(t, err, ports.ErrReportNotFound)
}

func TestReportStore_ListAndDelete(t *testing.T) {
	store, _ := newStore(t, 0)
	ctx := context.Background()

	assert.Error(t, store.SaveReport(ctx, &domain.RunReport{}))
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, store.SaveReport(ctx, &domain.RunReport{RunID: id}))
	}

	ids, err := store.ListReports(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	require.NoError(t, store.DeleteReport(ctx, "b"))
	ids, err = store.ListReports(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids)

	_, err = store.GetReport(ctx, "b")
	assert.ErrorIs(t, err, ports.ErrReportNotFound)
}

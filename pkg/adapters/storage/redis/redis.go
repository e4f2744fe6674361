package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aescanero/dago-direct/pkg/domain"
	"github.com/aescanero/dago-direct/pkg/ports"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const reportKeyPrefix = "dago-direct:report:"

// ReportStore implements ports.ReportStore using Redis
type ReportStore struct {
	client redis.UniversalClient
	logger *zap.Logger
	ttl    time.Duration
}

// NewReportStore creates a new Redis report store. A zero ttl keeps reports
// until they are deleted.
func NewReportStore(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *ReportStore {
	return &ReportStore{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// SaveReport persists a run report with the configured TTL
func (s *ReportStore) SaveReport(ctx context.Context, report *domain.RunReport) error {
	if report == nil || report.RunID == "" {
		return fmt.Errorf("report with a run id is required")
	}
	key := getReportKey(report.RunID)

	// Serialize report
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	// Save to Redis with TTL
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	s.logger.Debug("report saved",
		zap.String("run_id", report.RunID),
		zap.String("state", string(report.State)))

	return nil
}

// GetReport retrieves the report of a run
func (s *ReportStore) GetReport(ctx context.Context, runID string) (*domain.RunReport, error) {
	key := getReportKey(runID)

	// Get from Redis
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ports.ErrReportNotFound, runID)
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	// Deserialize report
	var report domain.RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}

	return &report, nil
}

// DeleteReport removes the report of a run
func (s *ReportStore) DeleteReport(ctx context.Context, runID string) error {
	if err := s.client.Del(ctx, getReportKey(runID)).Err(); err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	return nil
}

// ListReports returns all run ids that have a stored report, sorted
func (s *ReportStore) ListReports(ctx context.Context) ([]string, error) {
	pattern := reportKeyPrefix + "*"

	var cursor uint64
	var keys []string

	for {
		var batch []string
		var err error

		batch, cursor, err = s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}

		keys = append(keys, batch...)

		if cursor == 0 {
			break
		}
	}

	// Extract run IDs from keys
	runIDs := make([]string, 0, len(keys))
	for _, key := range keys {
		if len(key) > len(reportKeyPrefix) {
			runIDs = append(runIDs, key[len(reportKeyPrefix):])
		}
	}
	sort.Strings(runIDs)

	return runIDs, nil
}

// getReportKey returns the Redis key for a run report
func getReportKey(runID string) string {
	return reportKeyPrefix + runID
}

var _ ports.ReportStore = (*ReportStore)(nil)

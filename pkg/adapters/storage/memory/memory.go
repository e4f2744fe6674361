package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aescanero/dago-direct/pkg/domain"
	"github.com/aescanero/dago-direct/pkg/ports"
)

// InMemoryReportStore implements ReportStore using an in-memory map
type InMemoryReportStore struct {
	reports map[string]*domain.RunReport
	mu      sync.RWMutex
}

// NewInMemoryReportStore creates a new in-memory report store
func NewInMemoryReportStore() *InMemoryReportStore {
	return &InMemoryReportStore{
		reports: make(map[string]*domain.RunReport),
	}
}

// SaveReport stores a copy of the report
func (s *InMemoryReportStore) SaveReport(ctx context.Context, report *domain.RunReport) error {
	if report == nil || report.RunID == "" {
		return fmt.Errorf("report with a run id is required")
	}
	cp := *report

	s.mu.Lock()
	defer s.mu.Unlock()

	s.reports[report.RunID] = &cp
	return nil
}

// GetReport retrieves the report of a run
func (s *InMemoryReportStore) GetReport(ctx context.Context, runID string) (*domain.RunReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report, ok := s.reports[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrReportNotFound, runID)
	}
	cp := *report
	return &cp, nil
}

// ListReports returns the stored run ids, sorted
func (s *InMemoryReportStore) ListReports(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.reports))
	for id := range s.reports {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

var _ ports.ReportStore = (*InMemoryReportStore)(nil)

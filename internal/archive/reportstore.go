package archive

import (
	"context"
	"fmt"
	"sync"

	"github.com/andresuchdata/frameio-archiver/internal/domain"
)

// MemoryReportStore keeps reports for the lifetime of the process.
type MemoryReportStore struct {
	mu      sync.RWMutex
	reports map[string]domain.JobReport
}

func NewMemoryReportStore() *MemoryReportStore {
	return &MemoryReportStore{reports: make(map[string]domain.JobReport)}
}

func (s *MemoryReportStore) Save(_ context.Context, report *domain.JobReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[report.ID] = cloneReport(report)
	return nil
}

func (s *MemoryReportStore) Get(_ context.Context, id string) (*domain.JobReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	report, ok := s.reports[id]
	if !ok {
		return nil, domain.NewNotFound("get_report", id, fmt.Errorf("job %s", id))
	}
	out := cloneReport(&report)
	return &out, nil
}

func cloneReport(r *domain.JobReport) domain.JobReport {
	out := *r
	out.Outcomes = append([]domain.BackupOutcome(nil), r.Outcomes...)
	out.FetchFailures = append([]domain.FetchFailure(nil), r.FetchFailures...)
	if r.StartedAt != nil {
		t := *r.StartedAt
		out.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

var _ ReportStore = (*MemoryReportStore)(nil)

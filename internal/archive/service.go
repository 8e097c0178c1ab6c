package archive

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/frameio-archiver/internal/domain"
	"github.com/andresuchdata/frameio-archiver/internal/storage"
)

// ErrShuttingDown is returned by Submit once Shutdown has started.
var ErrShuttingDown = errors.New("archive service is shutting down")

// Service coordinates archive jobs: resolve, build paths, transfer, report.
type Service struct {
	source        Source
	store         storage.ObjectStorage
	reports       ReportStore
	cfg           Config
	destinations  map[string]string
	defaultBucket string

	resolver *Resolver
	paths    PathBuilder
	runner   *Runner

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running map[string]context.CancelFunc
	closed  bool

	newID func() string
	now   func() time.Time
}

// Destinations configures where jobs may write: named aliases and the
// bucket used when a request names none.
type Destinations struct {
	Default string
	Aliases map[string]string
}

// NewService creates a new Service.
func NewService(source Source, store storage.ObjectStorage, reports ReportStore, dest Destinations, cfg Config) *Service {
	cfg = cfg.withDefaults()
	if reports == nil {
		reports = NewMemoryReportStore()
	}
	aliases := make(map[string]string, len(dest.Aliases))
	for k, v := range dest.Aliases {
		aliases[k] = v
	}

	baseCtx, stop := context.WithCancel(context.Background())
	return &Service{
		source:        source,
		store:         store,
		reports:       reports,
		cfg:           cfg,
		destinations:  aliases,
		defaultBucket: dest.Default,
		resolver:      NewResolver(source, cfg),
		paths:         NewPathBuilder(cfg.PathPolicy).WithPrefix(cfg.KeyPrefix),
		runner:        NewRunner(cfg),
		baseCtx:       baseCtx,
		stop:          stop,
		running:       make(map[string]context.CancelFunc),
		newID:         func() string { return uuid.New().String() },
		now:           time.Now,
	}
}

// DestinationNames lists the configured aliases, sorted.
func (s *Service) DestinationNames() []string {
	names := make([]string, 0, len(s.destinations))
	for name := range s.destinations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bucket maps a destination alias to a bucket. An empty destination uses the
// default bucket; a bucket name that is configured as a target is accepted
// as is.
func (s *Service) Bucket(destination string) (string, error) {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		if s.defaultBucket == "" {
			return "", domain.NewValidation("destination is required")
		}
		return s.defaultBucket, nil
	}
	if bucket, ok := s.destinations[destination]; ok {
		return bucket, nil
	}
	if destination == s.defaultBucket {
		return destination, nil
	}
	for _, bucket := range s.destinations {
		if bucket == destination {
			return bucket, nil
		}
	}
	return "", domain.NewValidation(fmt.Sprintf("unknown destination %q", destination))
}

// Plan resolves a resource and computes destination paths without
// transferring anything.
func (s *Service) Plan(ctx context.Context, resourceID string) (*domain.Manifest, []Entry, error) {
	m, err := s.resolver.Resolve(ctx, resourceID)
	if err != nil {
		return nil, nil, err
	}
	return m, s.paths.Build(m), nil
}

// Submit validates the request, records a pending report and runs the job in
// the background. The job is bound to the service lifetime, not to ctx.
func (s *Service) Submit(ctx context.Context, req Request) (*domain.JobReport, error) {
	report, err := s.newReport(req)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrShuttingDown
	}
	jobCtx, cancel := context.WithCancel(s.baseCtx)
	s.running[report.ID] = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	if err := s.reports.Save(ctx, report); err != nil {
		log.Warn().Err(err).Str("job_id", report.ID).Msg("failed to save pending report")
	}

	snapshot := *report
	go func() {
		defer s.wg.Done()
		defer s.forget(report.ID)
		defer cancel()
		_ = s.execute(jobCtx, report)
	}()

	return &snapshot, nil
}

// Run executes a job synchronously and returns its final report. The report
// is returned even when the job fails.
func (s *Service) Run(ctx context.Context, req Request) (*domain.JobReport, error) {
	report, err := s.newReport(req)
	if err != nil {
		return nil, err
	}
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.running[report.ID] = cancel
	s.mu.Unlock()
	defer s.forget(report.ID)

	err = s.execute(jobCtx, report)
	return report, err
}

// Cancel stops a running job. It reports whether the job was running.
func (s *Service) Cancel(id string) bool {
	s.mu.Lock()
	cancel, ok := s.running[id]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Report returns the latest saved report for a job.
func (s *Service) Report(ctx context.Context, id string) (*domain.JobReport, error) {
	return s.reports.Get(ctx, id)
}

// Shutdown cancels running jobs and waits for them to record their reports.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) newReport(req Request) (*domain.JobReport, error) {
	resourceID := strings.TrimSpace(req.ResourceID)
	if resourceID == "" {
		return nil, domain.NewValidation("resource id is required")
	}
	bucket, err := s.Bucket(req.Destination)
	if err != nil {
		return nil, err
	}
	return &domain.JobReport{
		ID:          s.newID(),
		ResourceID:  resourceID,
		Destination: req.Destination,
		Bucket:      bucket,
		Status:      domain.JobPending,
		CreatedAt:   s.now(),
	}, nil
}

func (s *Service) forget(id string) {
	s.mu.Lock()
	delete(s.running, id)
	s.mu.Unlock()
}

// execute runs one job to completion and keeps the report store current.
func (s *Service) execute(ctx context.Context, report *domain.JobReport) error {
	logger := log.With().Str("job_id", report.ID).Str("resource_id", report.ResourceID).Logger()
	ctx = logger.WithContext(ctx)

	if s.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.JobTimeout)
		defer cancel()
	}

	// reports are written even after the job context is cancelled
	saveCtx := context.WithoutCancel(ctx)
	save := func() {
		if err := s.reports.Save(saveCtx, report); err != nil {
			logger.Warn().Err(err).Msg("failed to save job report")
		}
	}

	started := s.now()
	report.StartedAt = &started
	report.Status = domain.JobResolving
	save()
	logger.Info().Str("bucket", report.Bucket).Msg("archive job started")

	manifest, err := s.resolver.Resolve(ctx, report.ResourceID)
	if err != nil {
		report.ErrorKind = domain.KindOf(err)
		report.Error = err.Error()
		if report.ErrorKind == domain.ErrorKindCancelled {
			report.Status = domain.JobCancelled
		} else {
			report.Status = domain.JobFailed
		}
		report.Finish(s.now())
		save()
		logger.Error().Err(err).Str("error_kind", string(report.ErrorKind)).Msg("archive job aborted")
		return err
	}

	entries := s.paths.Build(manifest)
	report.ProjectID = manifest.Project.ID
	report.ProjectName = manifest.Project.Name
	report.TotalLeaves = len(entries)
	report.FetchFailures = manifest.Failures
	report.Status = domain.JobRunning
	save()
	logger.Info().
		Str("project", manifest.Project.Name).
		Int("leaves", len(entries)).
		Int("fetch_failures", len(manifest.Failures)).
		Msg("manifest resolved")

	exec := NewExecutor(s.source, s.store, report.Bucket, s.cfg)
	for _, outcome := range s.runner.Transfer(ctx, exec, entries) {
		report.Record(outcome)
	}

	if err := ctx.Err(); err != nil {
		report.Status = domain.JobCancelled
		report.ErrorKind = domain.ErrorKindCancelled
		report.Error = err.Error()
	}
	report.Finish(s.now())
	save()

	logger.Info().Object("report", report).Msg("archive job finished")
	for _, failed := range report.FailedOutcomes() {
		logger.Warn().Object("outcome", failed).Msg("leaf not archived")
	}

	if report.Status == domain.JobCancelled {
		return ctx.Err()
	}
	return nil
}

package domain

import (
	"time"

	"github.com/rs/zerolog"
)

// OutcomeStatus is the per-leaf result of a backup attempt.
type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeSkipped   OutcomeStatus = "skipped"
)

// BackupOutcome is the result of streaming one leaf to the destination store.
type BackupOutcome struct {
	LeafID    string        `json:"leaf_id" yaml:"leaf_id"`
	Name      string        `json:"name" yaml:"name"`
	Path      string        `json:"path" yaml:"path"`
	Status    OutcomeStatus `json:"status" yaml:"status"`
	ETag      string        `json:"etag,omitempty" yaml:"etag,omitempty"`
	VersionID string        `json:"version_id,omitempty" yaml:"version_id,omitempty"`
	Bytes     int64         `json:"bytes" yaml:"bytes"`
	Attempts  int           `json:"attempts" yaml:"attempts"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
	ErrorKind ErrorKind     `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Error     string        `json:"error,omitempty" yaml:"error,omitempty"`
}

func (o BackupOutcome) MarshalZerologObject(e *zerolog.Event) {
	e.Str("leaf_id", o.LeafID).
		Str("path", o.Path).
		Str("status", string(o.Status)).
		Int64("bytes", o.Bytes).
		Int("attempts", o.Attempts).
		Dur("duration", o.Duration)
	if o.Error != "" {
		e.Str("error_kind", string(o.ErrorKind)).Str("error", o.Error)
	}
}

// JobStatus represents the current state of an archive job
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobResolving JobStatus = "resolving"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	// JobPartial means the job finished but some leaves or subtrees failed.
	JobPartial   JobStatus = "partial"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transitions will happen.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobPartial, JobFailed, JobCancelled:
		return true
	}
	return false
}

// JobReport is the completion report of one archive job.
type JobReport struct {
	ID            string          `json:"id" yaml:"id"`
	ResourceID    string          `json:"resource_id" yaml:"resource_id"`
	Destination   string          `json:"destination" yaml:"destination"`
	Bucket        string          `json:"bucket" yaml:"bucket"`
	ProjectID     string          `json:"project_id,omitempty" yaml:"project_id,omitempty"`
	ProjectName   string          `json:"project_name,omitempty" yaml:"project_name,omitempty"`
	Status        JobStatus       `json:"status" yaml:"status"`
	TotalLeaves   int             `json:"total_leaves" yaml:"total_leaves"`
	Succeeded     int             `json:"succeeded" yaml:"succeeded"`
	Failed        int             `json:"failed" yaml:"failed"`
	Skipped       int             `json:"skipped" yaml:"skipped"`
	BytesTotal    int64           `json:"bytes_total" yaml:"bytes_total"`
	Outcomes      []BackupOutcome `json:"outcomes,omitempty" yaml:"outcomes,omitempty"`
	FetchFailures []FetchFailure  `json:"fetch_failures,omitempty" yaml:"fetch_failures,omitempty"`
	ErrorKind     ErrorKind       `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Error         string          `json:"error,omitempty" yaml:"error,omitempty"`
	CreatedAt     time.Time       `json:"created_at" yaml:"created_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// Record adds a leaf outcome to the counters.
func (r *JobReport) Record(o BackupOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Status {
	case OutcomeSucceeded:
		r.Succeeded++
		r.BytesTotal += o.Bytes
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeFailed:
		r.Failed++
	}
}

// FailedOutcomes lists the leaves that did not make it.
func (r *JobReport) FailedOutcomes() []BackupOutcome {
	var out []BackupOutcome
	for _, o := range r.Outcomes {
		if o.Status == OutcomeFailed {
			out = append(out, o)
		}
	}
	return out
}

// Finish settles the terminal status from the counters.
func (r *JobReport) Finish(now time.Time) {
	r.CompletedAt = &now
	if r.Status.Terminal() {
		return
	}
	if r.Failed > 0 || len(r.FetchFailures) > 0 {
		r.Status = JobPartial
		return
	}
	r.Status = JobCompleted
}

func (r *JobReport) MarshalZerologObject(e *zerolog.Event) {
	e.Str("job_id", r.ID).
		Str("resource_id", r.ResourceID).
		Str("bucket", r.Bucket).
		Str("project", r.ProjectName).
		Str("status", string(r.Status)).
		Int("total", r.TotalLeaves).
		Int("succeeded", r.Succeeded).
		Int("failed", r.Failed).
		Int("skipped", r.Skipped).
		Int("fetch_failures", len(r.FetchFailures)).
		Str("bytes", FormatBytes(r.BytesTotal, FormatSize))
}

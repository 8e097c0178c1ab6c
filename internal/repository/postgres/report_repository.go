package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/andresuchdata/frameio-archiver/internal/domain"
)

const reportSchema = `
CREATE TABLE IF NOT EXISTS archive_jobs (
	id            TEXT PRIMARY KEY,
	resource_id   TEXT NOT NULL,
	bucket        TEXT NOT NULL,
	project_name  TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	total_leaves  INTEGER NOT NULL DEFAULT 0,
	succeeded     INTEGER NOT NULL DEFAULT 0,
	failed        INTEGER NOT NULL DEFAULT 0,
	skipped       INTEGER NOT NULL DEFAULT 0,
	bytes_total   BIGINT NOT NULL DEFAULT 0,
	report        JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_archive_jobs_resource ON archive_jobs (resource_id, created_at DESC);
`

// ReportRepository persists archive job reports. Summary counters are kept
// in columns for ad-hoc queries; the full report is stored as JSONB.
type ReportRepository struct {
	db *DB
}

func NewReportRepository(db *DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Migrate creates the report table if it does not exist.
func (r *ReportRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, reportSchema); err != nil {
		return fmt.Errorf("create archive_jobs: %w", err)
	}
	return nil
}

func (r *ReportRepository) Save(ctx context.Context, report *domain.JobReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode job report: %w", err)
	}

	query := `
		INSERT INTO archive_jobs (
			id, resource_id, bucket, project_name, status,
			total_leaves, succeeded, failed, skipped, bytes_total,
			report, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			project_name = EXCLUDED.project_name,
			status       = EXCLUDED.status,
			total_leaves = EXCLUDED.total_leaves,
			succeeded    = EXCLUDED.succeeded,
			failed       = EXCLUDED.failed,
			skipped      = EXCLUDED.skipped,
			bytes_total  = EXCLUDED.bytes_total,
			report       = EXCLUDED.report,
			updated_at   = EXCLUDED.updated_at
	`

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			report.ID, report.ResourceID, report.Bucket, report.ProjectName, string(report.Status),
			report.TotalLeaves, report.Succeeded, report.Failed, report.Skipped, report.BytesTotal,
			string(payload), report.CreatedAt, time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("upsert archive job %s: %w", report.ID, err)
		}
		return nil
	})
}

func (r *ReportRepository) Get(ctx context.Context, id string) (*domain.JobReport, error) {
	var payload []byte
	err := r.db.GetContext(ctx, &payload, `SELECT report FROM archive_jobs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound("get_report", id, fmt.Errorf("job %s", id))
	}
	if err != nil {
		return nil, fmt.Errorf("select archive job %s: %w", id, err)
	}

	var report domain.JobReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("decode archive job %s: %w", id, err)
	}
	return &report, nil
}

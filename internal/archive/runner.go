package archive

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/andresuchdata/frameio-archiver/internal/domain"
)

// Runner transfers the leaves of a job with a bounded worker pool. The
// transfer slots are shared by every job using the same Runner.
type Runner struct {
	workerCount int
	slots       *semaphore.Weighted
}

func NewRunner(cfg Config) *Runner {
	cfg = cfg.withDefaults()
	return &Runner{
		workerCount: cfg.WorkerCount,
		slots:       semaphore.NewWeighted(int64(cfg.MaxTransfers)),
	}
}

// Transfer backs up every entry and returns the outcomes in entry order.
// A failed leaf never stops its siblings. Once ctx is done, entries not
// yet started are reported as cancelled.
func (r *Runner) Transfer(ctx context.Context, exec *Executor, entries []Entry) []domain.BackupOutcome {
	outcomes := make([]domain.BackupOutcome, len(entries))

	var g errgroup.Group
	g.SetLimit(r.workerCount)

	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			outcomes[i] = cancelledOutcome(entry, err)
			continue
		}

		g.Go(func() error {
			if err := r.slots.Acquire(ctx, 1); err != nil {
				outcomes[i] = cancelledOutcome(entry, err)
				return nil
			}
			defer r.slots.Release(1)

			outcome := exec.Backup(ctx, entry.Leaf, entry.Path)
			if outcome.Status == domain.OutcomeFailed {
				loggerFrom(ctx).Error().Object("outcome", outcome).Msg("backup failed")
			}
			outcomes[i] = outcome
			return nil
		})
	}

	// workers never return errors; failures live in the outcomes
	_ = g.Wait()
	return outcomes
}

func cancelledOutcome(entry Entry, err error) domain.BackupOutcome {
	return domain.BackupOutcome{
		LeafID:    entry.Leaf.ID,
		Name:      entry.Leaf.Name,
		Path:      entry.Key(),
		Status:    domain.OutcomeFailed,
		ErrorKind: domain.ErrorKindCancelled,
		Error:     err.Error(),
	}
}

package archive

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/andresuchdata/frameio-archiver/internal/domain"
)

const maxBackoff = 30 * time.Second

type retrier struct {
	attempts int
	backoff  time.Duration
}

func newRetrier(cfg Config) retrier {
	return retrier{attempts: cfg.RetryAttempts, backoff: cfg.RetryBackoff}
}

// policy doubles the wait from the configured backoff up to maxBackoff, with
// no jitter and no elapsed-time limit.
func (r retrier) policy() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.backoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = maxBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// do runs fn until it succeeds, returns a non-retryable error, or the
// attempts are used up. It returns the number of attempts made.
func (r retrier) do(ctx context.Context, op string, fn func(ctx context.Context) error) (int, error) {
	attempts := r.attempts
	if attempts < 1 {
		attempts = 1
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	made := 0
	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		made++
		err := fn(ctx)
		if err != nil && !domain.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		loggerFrom(ctx).Debug().
			Err(err).
			Str("op", op).
			Int("attempt", made).
			Dur("backoff", wait).
			Msg("retrying")
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(r.policy(), uint64(attempts-1)), ctx)
	err := backoff.RetryNotify(operation, policy, notify)
	return made, err
}

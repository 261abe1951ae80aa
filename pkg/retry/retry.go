package retry

import (
	"context"
	"errors"
	"time"
)

// ErrAttemptsExhausted is joined with the last error when every attempt failed.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// Policy bounds a retry loop.
type Policy struct {
	MaxAttempts int
	Backoff     BackoffStrategy
	// Retryable reports whether err warrants another attempt.
	Retryable func(err error) bool
	// OnRetry, when set, is called before sleeping ahead of attempt+1.
	OnRetry func(attempt int, err error)
}

// Do calls fn until it succeeds, returns a non-retryable error, the context is
// done, or MaxAttempts is reached.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := max(p.MaxAttempts, 1)
	backoff := p.Backoff
	if backoff == nil {
		backoff = DefaultBackoff()
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}

		timer := time.NewTimer(backoff.NextInterval(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}

	return errors.Join(ErrAttemptsExhausted, err)
}

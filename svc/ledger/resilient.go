package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/coachkit/creditledger/pkg/retry"
)

// DefaultMaxAttempts bounds WithRetry.
const DefaultMaxAttempts = 5

// RetryOption configures WithRetry.
type RetryOption func(*RetryStore)

// WithMaxAttempts sets the total number of attempts, including the first.
func WithMaxAttempts(n int) RetryOption {
	return func(s *RetryStore) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithBackoff sets the delay strategy between attempts.
func WithBackoff(b retry.BackoffStrategy) RetryOption {
	return func(s *RetryStore) {
		if b != nil {
			s.backoff = b
		}
	}
}

// WithOnRetry registers a callback invoked before each retry.
func WithOnRetry(fn func(attempt int, err error)) RetryOption {
	return func(s *RetryStore) { s.onRetry = fn }
}

// RetryStore retries AtomicUpdate on ErrConflict.
type RetryStore struct {
	next        Store
	maxAttempts int
	backoff     retry.BackoffStrategy
	onRetry     func(attempt int, err error)
}

// WithRetry wraps next so version conflicts are retried with jittered
// exponential backoff. When attempts run out the error is
// ErrStorageUnavailable joined with the last conflict. Other errors,
// including ErrOutcomeUnknown and business errors from fn, are returned
// immediately.
func WithRetry(next Store, opts ...RetryOption) *RetryStore {
	s := &RetryStore{
		next:        next,
		maxAttempts: DefaultMaxAttempts,
		backoff:     retry.DefaultBackoff(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RetryStore) Get(ctx context.Context, id string) (*Account, error) {
	return s.next.Get(ctx, id)
}

func (s *RetryStore) AtomicUpdate(ctx context.Context, id string, fn UpdateFunc) (*Account, *Transaction, error) {
	var (
		account *Account
		tx      *Transaction
	)

	err := retry.Do(ctx, retry.Policy{
		MaxAttempts: s.maxAttempts,
		Backoff:     s.backoff,
		Retryable:   func(err error) bool { return errors.Is(err, ErrConflict) },
		OnRetry:     s.onRetry,
	}, func(ctx context.Context) error {
		var err error
		account, tx, err = s.next.AtomicUpdate(ctx, id, fn)
		return err
	})
	if err != nil {
		if errors.Is(err, retry.ErrAttemptsExhausted) {
			return nil, nil, errors.Join(ErrStorageUnavailable, err)
		}
		return nil, nil, err
	}

	return account, tx, nil
}

// TimeoutStore bounds every call with a deadline.
type TimeoutStore struct {
	next    Store
	timeout time.Duration
}

// WithTimeout wraps next so each call runs under timeout.
func WithTimeout(next Store, timeout time.Duration) *TimeoutStore {
	return &TimeoutStore{next: next, timeout: timeout}
}

func (s *TimeoutStore) Get(ctx context.Context, id string) (*Account, error) {
	if s.timeout <= 0 {
		return s.next.Get(ctx, id)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.next.Get(ctx, id)
}

func (s *TimeoutStore) AtomicUpdate(ctx context.Context, id string, fn UpdateFunc) (*Account, *Transaction, error) {
	if s.timeout <= 0 {
		return s.next.AtomicUpdate(ctx, id, fn)
	}

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	account, tx, err := s.next.AtomicUpdate(opCtx, id, fn)
	if err != nil && errors.Is(opCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, nil, errors.Join(ErrOutcomeUnknown, err)
	}
	return account, tx, err
}

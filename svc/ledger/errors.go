package ledger

import "errors"

var (
	ErrNotFound      = errors.New("ledger: account not found")
	ErrAlreadyExists = errors.New("ledger: account already exists")
	// ErrConflict means a concurrent writer committed between read and write.
	// The whole read-modify-write may be retried.
	ErrConflict = errors.New("ledger: concurrent update conflict")
	// ErrStorageUnavailable is transient; callers may retry with backoff.
	ErrStorageUnavailable = errors.New("ledger: storage unavailable")
	// ErrOutcomeUnknown means the call timed out and the write may or may not
	// have committed. Re-read the account before deciding what to do.
	ErrOutcomeUnknown = errors.New("ledger: write outcome unknown")

	ErrInvalidAccountID   = errors.New("ledger: invalid account id")
	ErrInvalidTransaction = errors.New("ledger: transaction does not match balance change")
	ErrInvariantViolated  = errors.New("ledger: balance invariant violated")
)

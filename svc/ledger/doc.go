// Package ledger stores per-account credit balances together with a capped,
// append-only transaction history.
//
// All writes go through Store.AtomicUpdate, an optimistic read-modify-write:
// the store reads the account, hands a copy to the caller's UpdateFunc and
// commits the result only if no other writer committed in between (version
// compare-and-swap). A lost race returns ErrConflict; WithRetry retries those
// with jittered backoff before giving up with ErrStorageUnavailable.
//
// The store, not the caller, owns the history: it fills in BalanceBefore,
// BalanceAfter, sequence number, ID and timestamp of the appended Transaction,
// rejects writes whose delta does not match the balance change, and trims the
// oldest entries beyond the history cap. Deltas that fall out of the window
// are folded into Account.TrimmedDelta so that
//
//	Balance == TrimmedDelta + sum(retained deltas)
//
// holds for every committed account. Verify checks this and the per-entry
// chain.
//
// Backends: NewMemoryStore (tests, single process), NewPostgresStore (pgx) and
// NewMongoStore (mongo-driver v2). WithTimeout bounds each call; a deadline
// hit during AtomicUpdate is reported as ErrOutcomeUnknown because the commit
// may or may not have landed.
package ledger

package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultHistoryCap is the number of transactions kept per account.
const DefaultHistoryCap = 100

// UpdateFunc computes the next state of an account from its current state.
//
// current is a private copy and nil when the account does not exist. Return
// next == nil to leave the account untouched. A non-nil tx describes the
// balance change and is appended to history; the store fills in its ID, Seq,
// BalanceBefore, BalanceAfter and CreatedAt. Any error aborts the update and is
// returned to the caller unchanged.
//
// fn may run more than once when the update is retried and must not have side
// effects.
type UpdateFunc func(current *Account) (next *Account, tx *Transaction, err error)

// Store is the durable ledger.
type Store interface {
	// Get returns the account or ErrNotFound.
	Get(ctx context.Context, id string) (*Account, error)
	// AtomicUpdate applies fn under optimistic concurrency control. It
	// returns the committed account and the appended transaction (nil when
	// fn wrote none). When fn returns next == nil, the current account (which
	// may be nil) is returned and nothing is written.
	AtomicUpdate(ctx context.Context, id string, fn UpdateFunc) (*Account, *Transaction, error)
}

// prepare turns fn's output into the record to persist. History, version and
// timestamps are taken from current, never from next.
func prepare(id string, current, next *Account, tx *Transaction, historyCap int, now time.Time) (*Account, *Transaction, error) {
	committed := next.Clone()
	committed.ID = id
	committed.UpdatedAt = now

	var prevBalance int64
	if current != nil {
		prevBalance = current.Balance
		committed.CreatedAt = current.CreatedAt
		committed.Version = current.Version + 1
		committed.TrimmedDelta = current.TrimmedDelta
		committed.Transactions = current.Clone().Transactions
	} else {
		committed.CreatedAt = now
		committed.Version = 1
		committed.TrimmedDelta = 0
		committed.Transactions = nil
	}

	if tx == nil {
		if committed.Balance != prevBalance {
			return nil, nil, ErrInvalidTransaction
		}
		return committed, nil, nil
	}

	if !tx.Kind.Valid() || committed.Balance-prevBalance != tx.Delta {
		return nil, nil, ErrInvalidTransaction
	}

	appended := *tx
	appended.Metadata = tx.Metadata.clone()
	appended.BalanceBefore = prevBalance
	appended.BalanceAfter = committed.Balance
	appended.CreatedAt = now
	if appended.ID == "" {
		appended.ID = uuid.NewString()
	}
	appended.Seq = 1
	if last := committed.LastTransaction(); last != nil {
		appended.Seq = last.Seq + 1
	}

	committed.Transactions = append(committed.Transactions, appended)
	if historyCap > 0 && len(committed.Transactions) > historyCap {
		drop := len(committed.Transactions) - historyCap
		for _, t := range committed.Transactions[:drop] {
			committed.TrimmedDelta += t.Delta
		}
		committed.Transactions = append([]Transaction(nil), committed.Transactions[drop:]...)
	}

	return committed, &appended, nil
}

package ledger

import "fmt"

// Verify checks that a committed account satisfies the ledger invariants:
// every entry's BalanceAfter equals BalanceBefore plus Delta, entries chain
// without gaps, the newest entry ends at the current balance, the balance
// equals TrimmedDelta plus the retained deltas, and the balance is not
// negative.
func Verify(a *Account) error {
	if a == nil {
		return ErrNotFound
	}
	if a.Balance < 0 {
		return fmt.Errorf("%w: negative balance %d", ErrInvariantViolated, a.Balance)
	}

	sum := a.TrimmedDelta
	for i, t := range a.Transactions {
		if t.BalanceAfter != t.BalanceBefore+t.Delta {
			return fmt.Errorf("%w: transaction %d: %d + %d != %d",
				ErrInvariantViolated, t.Seq, t.BalanceBefore, t.Delta, t.BalanceAfter)
		}
		if i > 0 {
			prev := a.Transactions[i-1]
			if t.Seq != prev.Seq+1 {
				return fmt.Errorf("%w: sequence gap between %d and %d", ErrInvariantViolated, prev.Seq, t.Seq)
			}
			if t.BalanceBefore != prev.BalanceAfter {
				return fmt.Errorf("%w: transaction %d starts at %d, previous ended at %d",
					ErrInvariantViolated, t.Seq, t.BalanceBefore, prev.BalanceAfter)
			}
		}
		sum += t.Delta
	}

	if last := a.LastTransaction(); last != nil && last.BalanceAfter != a.Balance {
		return fmt.Errorf("%w: last transaction ends at %d, balance is %d", ErrInvariantViolated, last.BalanceAfter, a.Balance)
	}
	if sum != a.Balance {
		return fmt.Errorf("%w: trimmed %d + retained deltas = %d, balance is %d", ErrInvariantViolated, a.TrimmedDelta, sum, a.Balance)
	}
	return nil
}

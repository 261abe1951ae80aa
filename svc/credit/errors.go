package credit

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount       = errors.New("credit: amount must be positive")
	ErrInsufficientCredits = errors.New("credit: insufficient credits")
	ErrNotEligible         = errors.New("credit: account tier has no recurring grant")
	ErrInvalidTier         = errors.New("credit: unknown tier")
	ErrInvalidKind         = errors.New("credit: transaction kind not allowed for this operation")
	ErrInvalidGrants       = errors.New("credit: invalid grant configuration")
	ErrStaleEvent          = errors.New("credit: tier already changed by a newer billing event")
)

// InsufficientCreditsError is returned by Deduct when the balance does not
// cover the amount. errors.Is(err, ErrInsufficientCredits) holds.
type InsufficientCreditsError struct {
	Balance  int64
	Required int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("credit: insufficient credits: balance %d, required %d", e.Balance, e.Required)
}

func (e *InsufficientCreditsError) Is(target error) bool {
	return target == ErrInsufficientCredits
}

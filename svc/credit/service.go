package credit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/coachkit/creditledger/pkg/logger"
	"github.com/coachkit/creditledger/pkg/metrics"
	"github.com/coachkit/creditledger/svc/ledger"
)

// Result is returned by every mutating operation.
type Result struct {
	Success        bool   `json:"success"`
	BalanceAfter   int64  `json:"balance_after"`
	Delta          int64  `json:"delta"`
	Message        string `json:"message,omitempty"`
	TransactionRef string `json:"transaction_ref,omitempty"`
}

// NewAccount describes an account to initialize.
type NewAccount struct {
	ID                     string
	DisplayName            string
	Email                  string
	Tier                   ledger.Tier
	ExternalSubscriptionID string
	ExternalCustomerID     string
}

// Service performs credit operations against a ledger store. Wrap the store
// with ledger.WithRetry so version conflicts are retried.
type Service struct {
	store   ledger.Store
	grants  Grants
	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewService(store ledger.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		grants: DefaultGrants(),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("credit"))
	return s
}

// Grant returns the configured grant for tier.
func (s *Service) Grant(tier ledger.Tier) (Grant, bool) {
	g, ok := s.grants[tier]
	return g, ok
}

// Initialize creates the account with its tier's initial grant. It is
// create-only and fails with ledger.ErrAlreadyExists on a second call.
func (s *Service) Initialize(ctx context.Context, in NewAccount) (Result, error) {
	grant, ok := s.grants[in.Tier]
	if !ok {
		return Result{}, ErrInvalidTier
	}

	acc, tx, err := s.update(ctx, "initialize", in.ID, func(current *ledger.Account) (*ledger.Account, *ledger.Transaction, error) {
		if current != nil {
			return nil, nil, ledger.ErrAlreadyExists
		}
		next := &ledger.Account{
			DisplayName:            in.DisplayName,
			Email:                  in.Email,
			Tier:                   in.Tier,
			Balance:                grant.Initial,
			ExternalSubscriptionID: in.ExternalSubscriptionID,
			ExternalCustomerID:     in.ExternalCustomerID,
		}
		return next, &ledger.Transaction{
			Kind:     ledger.KindInitialization,
			Delta:    grant.Initial,
			Metadata: ledger.Metadata{Reason: "initial " + string(in.Tier) + " grant"},
		}, nil
	})
	if err != nil {
		return Result{}, err
	}

	s.log.InfoContext(ctx, "account initialized",
		logger.AccountID(in.ID),
		slog.String("tier", string(in.Tier)),
		logger.Balance(acc.Balance),
	)
	return result(acc, tx, "account initialized"), nil
}

// Deduct removes amount credits for feature. It fails with
// *InsufficientCreditsError when the balance does not cover amount.
func (s *Service) Deduct(ctx context.Context, id string, amount int64, feature string, meta ledger.Metadata) (Result, error) {
	if amount <= 0 {
		return Result{}, ErrInvalidAmount
	}
	if feature != "" {
		meta.Feature = feature
	}

	var prior *ledger.Transaction
	acc, tx, err := s.update(ctx, "deduct", id, func(current *ledger.Account) (*ledger.Account, *ledger.Transaction, error) {
		if current == nil {
			return nil, nil, ledger.ErrNotFound
		}
		if prior = current.FindByReference(ledger.KindDeduction, meta.Reference); prior != nil {
			return nil, nil, nil
		}
		if current.Balance < amount {
			return nil, nil, &InsufficientCreditsError{Balance: current.Balance, Required: amount}
		}
		current.Balance -= amount
		return current, &ledger.Transaction{Kind: ledger.KindDeduction, Delta: -amount, Metadata: meta}, nil
	})
	if err != nil {
		return Result{}, err
	}
	if prior != nil {
		return replayed(acc, prior), nil
	}

	return result(acc, tx, "credits deducted"), nil
}

// Add credits amount with the given kind (addition when empty).
func (s *Service) Add(ctx context.Context, id string, amount int64, kind ledger.Kind, meta ledger.Metadata) (Result, error) {
	if amount <= 0 {
		return Result{}, ErrInvalidAmount
	}
	if kind == "" {
		kind = ledger.KindAddition
	}
	switch kind {
	case ledger.KindAddition, ledger.KindRefund, ledger.KindRenewal:
	default:
		return Result{}, ErrInvalidKind
	}

	return s.credit(ctx, "add", id, amount, kind, meta, nil)
}

// RenewalTopUp adds a recurring grant as a renewal transaction. amount zero
// means the tier's configured renewal grant. Tiers without a recurring grant
// fail with ErrNotEligible.
func (s *Service) RenewalTopUp(ctx context.Context, id string, amount int64, meta ledger.Metadata) (Result, error) {
	if amount < 0 {
		return Result{}, ErrInvalidAmount
	}

	return s.credit(ctx, "renewal", id, amount, ledger.KindRenewal, meta, func(a *ledger.Account) (int64, error) {
		grant := s.grants[a.Tier]
		if grant.Renewal <= 0 {
			return 0, ErrNotEligible
		}
		if amount == 0 {
			return grant.Renewal, nil
		}
		return amount, nil
	})
}

// credit adds a positive delta. resolve, when set, may veto the operation or
// pick the amount from the current account.
func (s *Service) credit(ctx context.Context, op, id string, amount int64, kind ledger.Kind, meta ledger.Metadata, resolve func(*ledger.Account) (int64, error)) (Result, error) {
	var prior *ledger.Transaction
	acc, tx, err := s.update(ctx, op, id, func(current *ledger.Account) (*ledger.Account, *ledger.Transaction, error) {
		if current == nil {
			return nil, nil, ledger.ErrNotFound
		}
		if prior = current.FindByReference(kind, meta.Reference); prior != nil {
			return nil, nil, nil
		}
		delta := amount
		if resolve != nil {
			var err error
			if delta, err = resolve(current); err != nil {
				return nil, nil, err
			}
		}
		current.Balance += delta
		return current, &ledger.Transaction{Kind: kind, Delta: delta, Metadata: meta}, nil
	})
	if err != nil {
		return Result{}, err
	}
	if prior != nil {
		return replayed(acc, prior), nil
	}

	s.log.InfoContext(ctx, "credits added",
		logger.AccountID(id),
		slog.String("kind", string(kind)),
		logger.Amount(tx.Delta),
		logger.Balance(acc.Balance),
		logger.EventID(meta.EventID),
	)
	return result(acc, tx, "credits added"), nil
}

// HasEnough reports whether the balance currently covers amount. The answer
// is advisory: a later Deduct can still fail.
func (s *Service) HasEnough(ctx context.Context, id string, amount int64) (bool, error) {
	if amount <= 0 {
		return false, ErrInvalidAmount
	}
	acc, err := s.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return acc.Balance >= amount, nil
}

// Balance returns the account with its retained history.
func (s *Service) Balance(ctx context.Context, id string) (*ledger.Account, error) {
	return s.store.Get(ctx, id)
}

// UpgradeTier moves the account to tier. Only a real tier change tops the
// balance up to the tier's initial grant, in the same write; an account
// already on tier never receives another grant. Non-empty external ids
// replace the stored ones.
//
// When meta.OccurredAt is set, a tier change older than the account's
// TierEventAt fails with ErrStaleEvent. The check and the write are one
// AtomicUpdate, so concurrent billing events cannot reorder tiers.
func (s *Service) UpgradeTier(ctx context.Context, id string, tier ledger.Tier, subscriptionID, customerID string, meta ledger.Metadata) (Result, error) {
	grant, ok := s.grants[tier]
	if !ok {
		return Result{}, ErrInvalidTier
	}
	if meta.SubscriptionID == "" {
		meta.SubscriptionID = subscriptionID
	}

	acc, tx, err := s.update(ctx, "upgrade_tier", id, func(current *ledger.Account) (*ledger.Account, *ledger.Transaction, error) {
		if current == nil {
			return nil, nil, ledger.ErrNotFound
		}
		next, changed, err := tierChange(current, tier, meta.OccurredAt)
		if err != nil || next == nil {
			return nil, nil, err
		}
		if subscriptionID != "" {
			next.ExternalSubscriptionID = subscriptionID
		}
		if customerID != "" {
			next.ExternalCustomerID = customerID
		}

		var txn *ledger.Transaction
		if topUp := grant.Initial - current.Balance; changed && topUp > 0 {
			next.Balance += topUp
			txn = &ledger.Transaction{Kind: ledger.KindTierUpgrade, Delta: topUp, Metadata: meta}
		}

		if txn == nil && !changed && next.TierEventAt.Equal(current.TierEventAt) &&
			next.ExternalSubscriptionID == current.ExternalSubscriptionID &&
			next.ExternalCustomerID == current.ExternalCustomerID {
			return nil, nil, nil
		}
		return next, txn, nil
	})
	if err != nil {
		return Result{}, err
	}

	s.log.InfoContext(ctx, "tier upgraded",
		logger.AccountID(id),
		slog.String("tier", string(tier)),
		logger.SubscriptionID(subscriptionID),
		logger.Balance(acc.Balance),
	)
	return result(acc, tx, "tier upgraded"), nil
}

// DowngradeTier reverts the account to the free tier. Already-granted
// credits are kept and no transaction is written. meta.OccurredAt orders it
// against other tier changes like UpgradeTier.
func (s *Service) DowngradeTier(ctx context.Context, id string, meta ledger.Metadata) (Result, error) {
	acc, _, err := s.update(ctx, "downgrade_tier", id, func(current *ledger.Account) (*ledger.Account, *ledger.Transaction, error) {
		if current == nil {
			return nil, nil, ledger.ErrNotFound
		}
		next, changed, err := tierChange(current, ledger.TierFree, meta.OccurredAt)
		if err != nil || next == nil || !changed && next.TierEventAt.Equal(current.TierEventAt) {
			return nil, nil, err
		}
		return next, nil, nil
	})
	if err != nil {
		return Result{}, err
	}

	s.log.InfoContext(ctx, "tier downgraded",
		logger.AccountID(id),
		logger.SubscriptionID(meta.SubscriptionID),
		logger.EventID(meta.EventID),
		logger.Balance(acc.Balance),
	)
	return result(acc, nil, "tier downgraded"), nil
}

// tierChange orders a move to tier at time at against current.TierEventAt.
// A stale event is a no-op when the account is already on tier and
// ErrStaleEvent otherwise. next is nil when nothing may be written.
func tierChange(current *ledger.Account, tier ledger.Tier, at time.Time) (next *ledger.Account, changed bool, err error) {
	changed = current.Tier != tier
	if !at.IsZero() && at.Before(current.TierEventAt) {
		if changed {
			return nil, false, ErrStaleEvent
		}
		return nil, false, nil
	}
	next = current.Clone()
	next.Tier = tier
	if at.After(next.TierEventAt) {
		next.TierEventAt = at.UTC()
	}
	return next, changed, nil
}

// UpdateContact replaces the email and external customer id when non-empty.
func (s *Service) UpdateContact(ctx context.Context, id, email, customerID string) (Result, error) {
	acc, _, err := s.update(ctx, "update_contact", id, func(current *ledger.Account) (*ledger.Account, *ledger.Transaction, error) {
		if current == nil {
			return nil, nil, ledger.ErrNotFound
		}
		changed := false
		if email != "" && email != current.Email {
			current.Email = email
			changed = true
		}
		if customerID != "" && customerID != current.ExternalCustomerID {
			current.ExternalCustomerID = customerID
			changed = true
		}
		if !changed {
			return nil, nil, nil
		}
		return current, nil, nil
	})
	if err != nil {
		return Result{}, err
	}
	return result(acc, nil, "contact updated"), nil
}

func (s *Service) update(ctx context.Context, op, id string, fn ledger.UpdateFunc) (*ledger.Account, *ledger.Transaction, error) {
	acc, tx, err := s.store.AtomicUpdate(ctx, id, fn)
	s.metrics.CreditOperation(op, outcome(err))

	if err != nil && isSystemError(err) {
		s.log.ErrorContext(ctx, "credit operation failed",
			slog.String("operation", op),
			logger.AccountID(id),
			logger.Error(err),
		)
	}
	return acc, tx, err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInsufficientCredits):
		return "insufficient_credits"
	case errors.Is(err, ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, ErrStaleEvent):
		return "stale_event"
	case errors.Is(err, ledger.ErrNotFound):
		return "not_found"
	case errors.Is(err, ledger.ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ledger.ErrOutcomeUnknown):
		return "outcome_unknown"
	default:
		return "error"
	}
}

func isSystemError(err error) bool {
	return errors.Is(err, ledger.ErrStorageUnavailable) ||
		errors.Is(err, ledger.ErrOutcomeUnknown) ||
		errors.Is(err, ledger.ErrInvalidTransaction) ||
		errors.Is(err, context.DeadlineExceeded)
}

func result(acc *ledger.Account, tx *ledger.Transaction, msg string) Result {
	r := Result{Success: true, BalanceAfter: acc.Balance, Message: msg}
	if tx != nil {
		r.Delta = tx.Delta
		r.TransactionRef = tx.ID
	}
	return r
}

func replayed(acc *ledger.Account, prior *ledger.Transaction) Result {
	r := Result{Success: true, Delta: prior.Delta, Message: "already applied", TransactionRef: prior.ID}
	if acc != nil {
		r.BalanceAfter = acc.Balance
	}
	return r
}

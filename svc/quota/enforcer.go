package quota

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/coachkit/creditledger/pkg/logger"
	"github.com/coachkit/creditledger/pkg/metrics"
	"github.com/coachkit/creditledger/svc/ledger"
)

// Option configures an Enforcer.
type Option func(*Enforcer)

func WithLogger(l *slog.Logger) Option {
	return func(e *Enforcer) {
		if l != nil {
			e.log = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Enforcer) { e.metrics = m }
}

// WithClock overrides time.Now, mainly for tests that cross month boundaries.
func WithClock(now func() time.Time) Option {
	return func(e *Enforcer) {
		if now != nil {
			e.now = now
		}
	}
}

// Enforcer applies tier plans to usage counters.
type Enforcer struct {
	plans   map[ledger.Tier]Plan
	store   CounterStore
	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewEnforcer loads plans from src and validates them.
func NewEnforcer(ctx context.Context, src Source, store CounterStore, opts ...Option) (*Enforcer, error) {
	plans, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	if err := ValidatePlans(plans); err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	e := &Enforcer{
		plans: plans,
		store: store,
		log:   slog.Default(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With(logger.Component("quota"))
	return e, nil
}

// Plans returns a copy of the loaded plans.
func (e *Enforcer) Plans() map[ledger.Tier]Plan {
	return clonePlans(e.plans)
}

// Limit returns the plan limit for feature on tier.
func (e *Enforcer) Limit(tier ledger.Tier, feature Feature) (int64, error) {
	p, ok := e.plans[tier]
	if !ok {
		return 0, ErrUnknownTier
	}
	limit, ok := p.Limits[feature]
	if !ok {
		return 0, ErrUnknownFeature
	}
	return limit, nil
}

// CheckAndIncrement counts one invocation of feature if the tier's limit
// allows it. A denial is a normal Decision, not an error.
func (e *Enforcer) CheckAndIncrement(ctx context.Context, accountID string, feature Feature, tier ledger.Tier) (Decision, error) {
	if accountID == "" {
		return Decision{}, ErrInvalidAccountID
	}
	limit, err := e.Limit(tier, feature)
	if err != nil {
		return Decision{}, err
	}

	c, allowed, err := e.store.CheckAndIncrement(ctx, accountID, feature, limit, e.now())
	if err != nil {
		e.log.ErrorContext(ctx, "quota check failed",
			logger.AccountID(accountID), logger.Feature(string(feature)), logger.Error(err))
		return Decision{}, err
	}
	e.metrics.QuotaDecision(string(feature), allowed)
	if !allowed {
		e.log.DebugContext(ctx, "quota exhausted",
			logger.AccountID(accountID), logger.Feature(string(feature)), slog.Int64("limit", limit))
	}
	return Decision{
		Allowed:   allowed,
		Used:      c.Used,
		Limit:     limit,
		Remaining: remaining(limit, c.Used),
		ResetAt:   c.ResetAt,
	}, nil
}

// Usage reports every feature configured for tier. Counters whose period has
// elapsed read as zero without being written.
func (e *Enforcer) Usage(ctx context.Context, accountID string, tier ledger.Tier) ([]Usage, error) {
	if accountID == "" {
		return nil, ErrInvalidAccountID
	}
	p, ok := e.plans[tier]
	if !ok {
		return nil, ErrUnknownTier
	}

	now := e.now()
	features := make([]Feature, 0, len(p.Limits))
	for f := range p.Limits {
		features = append(features, f)
	}
	slices.Sort(features)

	out := make([]Usage, 0, len(features))
	for _, f := range features {
		limit := p.Limits[f]
		c, ok, err := e.store.Get(ctx, accountID, f)
		if err != nil {
			return nil, err
		}
		if !ok || !now.Before(c.ResetAt) {
			c = Counter{ResetAt: NextPeriodStart(now)}
		}
		out = append(out, Usage{
			Feature:   f,
			Used:      c.Used,
			Limit:     limit,
			Remaining: remaining(limit, c.Used),
			ResetAt:   c.ResetAt,
		})
	}
	return out, nil
}

// Reset zeroes the account's counters.
func (e *Enforcer) Reset(ctx context.Context, accountID string) (int, error) {
	if accountID == "" {
		return 0, ErrInvalidAccountID
	}
	n, err := e.store.Reset(ctx, accountID, e.now())
	if err != nil {
		return n, err
	}
	e.metrics.QuotaReset(n)
	e.log.InfoContext(ctx, "quota counters reset", logger.AccountID(accountID), slog.Int("counters", n))
	return n, nil
}

// ResetAll zeroes every counter. It is safe alongside live traffic: both
// paths converge on a zero counter for the new period.
func (e *Enforcer) ResetAll(ctx context.Context) (int, error) {
	n, err := e.store.ResetAll(ctx, e.now())
	if err != nil {
		e.log.ErrorContext(ctx, "quota sweep failed", slog.Int("counters", n), logger.Error(err))
		return n, err
	}
	e.metrics.QuotaReset(n)
	e.log.InfoContext(ctx, "quota sweep complete", slog.Int("counters", n))
	return n, nil
}

package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/coachkit/creditledger/pkg/logger"
	"github.com/coachkit/creditledger/pkg/statemachine"
	"github.com/coachkit/creditledger/svc/billing"
	"github.com/coachkit/creditledger/svc/credit"
	"github.com/coachkit/creditledger/svc/ledger"
)

// Credits is the part of *credit.Service the sync engine drives.
type Credits interface {
	UpgradeTier(ctx context.Context, id string, tier ledger.Tier, subscriptionID, customerID string, meta ledger.Metadata) (credit.Result, error)
	DowngradeTier(ctx context.Context, id string, meta ledger.Metadata) (credit.Result, error)
	RenewalTopUp(ctx context.Context, id string, amount int64, meta ledger.Metadata) (credit.Result, error)
	UpdateContact(ctx context.Context, id, email, customerID string) (credit.Result, error)
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service applies billing events to subscriptions and the ledger. It
// implements billing.EventHandler.
type Service struct {
	store   Store
	credits Credits
	machine *statemachine.Machine
	log     *slog.Logger
	now     func() time.Time
}

// transition is the data passed to guards and actions.
type transition struct {
	ev        billing.Event
	accountID string
}

func NewService(store Store, credits Credits, opts ...Option) (*Service, error) {
	s := &Service{
		store:   store,
		credits: credits,
		log:     slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("subscription"))

	m, err := s.buildMachine()
	if err != nil {
		return nil, err
	}
	s.machine = m
	return s, nil
}

func (s *Service) buildMachine() (*statemachine.Machine, error) {
	b := statemachine.NewBuilder()
	every := []Status{StatusNone, StatusTrialing, StatusActive, StatusPastDue, StatusCanceled}
	live := []Status{StatusNone, StatusTrialing, StatusActive, StatusPastDue}

	for _, from := range []Status{StatusNone, StatusTrialing} {
		b.From(from).When(signalTrial).To(StatusTrialing).Add()
	}
	for _, from := range every {
		b.From(from).When(signalActivate).To(StatusActive).WithAction(s.upgrade).Add()
		b.From(from).When(signalCancel).To(StatusCanceled).WithAction(s.downgrade).Add()
	}
	for _, from := range live {
		b.From(from).When(signalPaid).To(StatusActive).
			WithGuard(isCycleInvoice).
			WithAction(s.upgrade).
			WithAction(s.renew).
			Add()
		b.From(from).When(signalPaid).To(StatusActive).WithAction(s.upgrade).Add()
		b.From(from).When(signalPastDue).To(StatusPastDue).Add()
	}
	return b.Build()
}

// Handle implements billing.EventHandler.
func (s *Service) Handle(ctx context.Context, ev billing.Event) (billing.Outcome, error) {
	switch ev.Type {
	case billing.EventCustomerUpdated:
		return s.updateContact(ctx, ev)
	case billing.EventTrialEnding:
		s.log.InfoContext(ctx, "trial ending",
			logger.SubscriptionID(ev.SubscriptionID), logger.EventID(ev.ID))
		return billing.OutcomeIgnored, nil
	}

	sig, ok := signalFor(ev)
	if !ok || ev.SubscriptionID == "" {
		return billing.OutcomeIgnored, nil
	}

	current, err := s.store.Get(ctx, ev.SubscriptionID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return billing.OutcomeFailed, err
	}

	accountID := ev.AccountID
	if accountID == "" && current != nil {
		accountID = current.AccountID
	}
	if accountID == "" {
		return billing.OutcomeFailed, fmt.Errorf("%w: subscription %s", ErrAccountUnresolved, ev.SubscriptionID)
	}
	data := &transition{ev: ev, accountID: accountID}

	if current != nil && ev.OccurredAt.Before(current.LastEventAt) {
		return s.handleStale(ctx, sig, data)
	}

	from := StatusNone
	if current != nil {
		from = current.Status
	}

	to, err := s.machine.Fire(ctx, from, sig, data)
	if statemachine.IsNoTransitionAvailableError(err) {
		s.log.InfoContext(ctx, "no transition for event",
			logger.SubscriptionID(ev.SubscriptionID),
			slog.String("from", string(from)),
			slog.String("signal", string(sig)),
		)
		return billing.OutcomeIgnored, nil
	}
	if errors.Is(err, credit.ErrStaleEvent) {
		// A newer event for this account won the ledger update concurrently.
		return s.handleStale(ctx, sig, data)
	}
	if err != nil {
		return billing.OutcomeFailed, err
	}

	next := s.project(current, ev, accountID, to.(Status))
	saved, err := s.store.Save(ctx, next)
	if err != nil {
		return billing.OutcomeFailed, err
	}
	if !saved {
		return billing.OutcomeSkipped, nil
	}

	s.log.InfoContext(ctx, "subscription synced",
		logger.AccountID(accountID),
		logger.SubscriptionID(ev.SubscriptionID),
		slog.String("from", string(from)),
		slog.String("to", string(next.Status)),
	)
	return billing.OutcomeApplied, nil
}

// handleStale applies the renewal of an out-of-order cycle invoice and skips
// everything else. A renewal arriving after the account left the paid tier
// is skipped too.
func (s *Service) handleStale(ctx context.Context, sig signal, data *transition) (billing.Outcome, error) {
	if sig != signalPaid || !isCycleInvoice(ctx, nil, sig, data) {
		s.log.InfoContext(ctx, "skipping out-of-order event",
			logger.SubscriptionID(data.ev.SubscriptionID), logger.EventID(data.ev.ID))
		return billing.OutcomeSkipped, nil
	}
	err := s.renew(ctx, nil, nil, sig, data)
	if errors.Is(err, credit.ErrNotEligible) {
		s.log.InfoContext(ctx, "skipping out-of-order renewal for unpaid tier",
			logger.AccountID(data.accountID),
			logger.SubscriptionID(data.ev.SubscriptionID),
			logger.EventID(data.ev.ID),
		)
		return billing.OutcomeSkipped, nil
	}
	if err != nil {
		return billing.OutcomeFailed, err
	}
	return billing.OutcomeApplied, nil
}

func (s *Service) project(current *Subscription, ev billing.Event, accountID string, to Status) *Subscription {
	next := &Subscription{ID: ev.SubscriptionID}
	if current != nil {
		*next = *current
	}
	next.AccountID = accountID
	next.Status = to
	next.Tier = to.Tier()
	if ev.CustomerID != "" {
		next.CustomerID = ev.CustomerID
	}
	// Invoice periods describe the invoice, not the subscription.
	if !ev.Type.IsInvoice() {
		if !ev.PeriodStart.IsZero() {
			next.CurrentPeriodStart = ev.PeriodStart
		}
		if !ev.PeriodEnd.IsZero() {
			next.CurrentPeriodEnd = ev.PeriodEnd
		}
		next.CancelAtPeriodEnd = ev.CancelAtPeriodEnd
	}
	next.LastEventID = ev.ID
	next.LastEventAt = ev.OccurredAt
	next.UpdatedAt = s.now().UTC()
	return next
}

func (s *Service) updateContact(ctx context.Context, ev billing.Event) (billing.Outcome, error) {
	accountID := ev.AccountID
	if accountID == "" {
		sub, err := s.store.FindByCustomer(ctx, ev.CustomerID)
		if errors.Is(err, ErrNotFound) {
			return billing.OutcomeIgnored, nil
		}
		if err != nil {
			return billing.OutcomeFailed, err
		}
		accountID = sub.AccountID
	}
	if _, err := s.credits.UpdateContact(ctx, accountID, ev.Email, ev.CustomerID); err != nil {
		return billing.OutcomeFailed, err
	}
	return billing.OutcomeApplied, nil
}

func (s *Service) upgrade(ctx context.Context, _, _ statemachine.State, _ statemachine.Event, data any) error {
	t := data.(*transition)
	_, err := s.credits.UpgradeTier(ctx, t.accountID, ledger.TierPro, t.ev.SubscriptionID, t.ev.CustomerID, ledger.Metadata{
		EventID:        t.ev.ID,
		Reference:      t.ev.SubscriptionID,
		SubscriptionID: t.ev.SubscriptionID,
		Reason:         string(t.ev.Type),
		OccurredAt:     t.ev.OccurredAt,
	})
	return err
}

func (s *Service) renew(ctx context.Context, _, _ statemachine.State, _ statemachine.Event, data any) error {
	t := data.(*transition)
	_, err := s.credits.RenewalTopUp(ctx, t.accountID, 0, ledger.Metadata{
		EventID:        t.ev.ID,
		Reference:      t.ev.InvoiceID,
		SubscriptionID: t.ev.SubscriptionID,
		Reason:         t.ev.BillingReason,
		OccurredAt:     t.ev.OccurredAt,
	})
	return err
}

func (s *Service) downgrade(ctx context.Context, _, _ statemachine.State, _ statemachine.Event, data any) error {
	t := data.(*transition)
	_, err := s.credits.DowngradeTier(ctx, t.accountID, ledger.Metadata{
		EventID:        t.ev.ID,
		SubscriptionID: t.ev.SubscriptionID,
		Reason:         string(t.ev.Type),
		OccurredAt:     t.ev.OccurredAt,
	})
	return err
}

func isCycleInvoice(_ context.Context, _ statemachine.State, _ statemachine.Event, data any) bool {
	t := data.(*transition)
	return t.ev.BillingReason == billing.ReasonSubscriptionCycle && t.ev.InvoiceID != ""
}

func signalFor(ev billing.Event) (signal, bool) {
	switch ev.Type {
	case billing.EventSubscriptionCreated, billing.EventSubscriptionUpdated:
		switch ev.Status {
		case billing.StatusActive:
			return signalActivate, true
		case billing.StatusTrialing:
			return signalTrial, true
		case billing.StatusPastDue:
			return signalPastDue, true
		case billing.StatusCanceled, billing.StatusUnpaid:
			return signalCancel, true
		}
	case billing.EventSubscriptionDeleted:
		return signalCancel, true
	case billing.EventInvoicePaid, billing.EventInvoicePaymentSucceeded:
		return signalPaid, true
	case billing.EventInvoicePaymentFailed:
		return signalPastDue, true
	}
	return "", false
}

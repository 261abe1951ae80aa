package subscription_test

import (
	"context"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachkit/creditledger/pkg/logger"
	"github.com/coachkit/creditledger/svc/billing"
	"github.com/coachkit/creditledger/svc/credit"
	"github.com/coachkit/creditledger/svc/ledger"
	"github.com/coachkit/creditledger/svc/subscription"
)

var t0 = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *subscription.Service
	credits *credit.Service
	ledger  *ledger.MemoryStore
	subs    *subscription.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := ledger.NewMemoryStore()
	credits := credit.NewService(ledger.WithRetry(store), credit.WithLogger(logger.Discard()))
	subs := subscription.NewMemoryStore()
	svc, err := subscription.NewService(subs, credits, subscription.WithLogger(logger.Discard()))
	require.NoError(t, err)

	_, err = credits.Initialize(context.Background(), credit.NewAccount{ID: "acc_1", Tier: ledger.TierFree, Email: "old@example.com"})
	require.NoError(t, err)
	return &fixture{svc: svc, credits: credits, ledger: store, subs: subs}
}

func (f *fixture) account(t *testing.T) *ledger.Account {
	t.Helper()
	acc, err := f.ledger.Get(context.Background(), "acc_1")
	require.NoError(t, err)
	require.NoError(t, ledger.Verify(acc))
	return acc
}

func (f *fixture) handle(t *testing.T, ev billing.Event) billing.Outcome {
	t.Helper()
	out, err := f.svc.Handle(context.Background(), ev)
	require.NoError(t, err)
	return out
}

func countKind(acc *ledger.Account, kind ledger.Kind) int {
	n := 0
	for _, tx := range acc.Transactions {
		if tx.Kind == kind {
			n++
		}
	}
	return n
}

func subEvent(id string, typ billing.EventType, status string, at time.Time) billing.Event {
	return billing.Event{
		ID:             id,
		Provider:       "stripe",
		Type:           typ,
		OccurredAt:     at,
		AccountID:      "acc_1",
		SubscriptionID: "sub_1",
		CustomerID:     "cus_1",
		Status:         status,
		PeriodStart:    t0,
		PeriodEnd:      t0.AddDate(0, 1, 0),
	}
}

func invoiceEvent(id string, typ billing.EventType, invoiceID, reason string, at time.Time) billing.Event {
	return billing.Event{
		ID:             id,
		Provider:       "stripe",
		Type:           typ,
		OccurredAt:     at,
		SubscriptionID: "sub_1",
		CustomerID:     "cus_1",
		InvoiceID:      invoiceID,
		BillingReason:  reason,
	}
}

func TestHandle_CreatedActiveUpgradesOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	ev := subEvent("evt_1", billing.EventSubscriptionCreated, billing.StatusActive, t0)
	assert.Equal(t, billing.OutcomeApplied, f.handle(t, ev))

	acc := f.account(t)
	assert.Equal(t, ledger.TierPro, acc.Tier)
	assert.Equal(t, int64(5000), acc.Balance)
	assert.Equal(t, "sub_1", acc.ExternalSubscriptionID)
	assert.Equal(t, "cus_1", acc.ExternalCustomerID)
	assert.Equal(t, 1, countKind(acc, ledger.KindTierUpgrade))

	// Redelivery without the dedup layer still grants nothing new.
	f.handle(t, ev)
	f.handle(t, subEvent("evt_2", billing.EventSubscriptionUpdated, billing.StatusActive, t0.Add(time.Minute)))

	acc = f.account(t)
	assert.Equal(t, int64(5000), acc.Balance)
	assert.Equal(t, 1, countKind(acc, ledger.KindTierUpgrade))

	sub, err := f.subs.Get(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.True(t, sub.IsActive())
	assert.Equal(t, ledger.TierPro, sub.Tier)
	assert.Equal(t, "evt_2", sub.LastEventID)
	assert.Equal(t, t0.AddDate(0, 1, 0), sub.CurrentPeriodEnd)
}

func TestHandle_PaymentFailedThenSucceeded(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.handle(t, subEvent("evt_1", billing.EventSubscriptionCreated, billing.StatusActive, t0))

	next := t0.AddDate(0, 1, 0)
	out := f.handle(t, invoiceEvent("evt_2", billing.EventInvoicePaymentFailed, "in_2", billing.ReasonSubscriptionCycle, next))
	assert.Equal(t, billing.OutcomeApplied, out)

	sub, err := f.subs.Get(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.True(t, sub.IsPastDue())
	assert.Equal(t, int64(5000), f.account(t).Balance)

	out = f.handle(t, invoiceEvent("evt_3", billing.EventInvoicePaymentSucceeded, "in_2", billing.ReasonSubscriptionCycle, next.Add(time.Hour)))
	assert.Equal(t, billing.OutcomeApplied, out)

	// invoice.paid for the same invoice must not grant again.
	f.handle(t, invoiceEvent("evt_4", billing.EventInvoicePaid, "in_2", billing.ReasonSubscriptionCycle, next.Add(time.Hour)))

	sub, err = f.subs.Get(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.True(t, sub.IsActive())

	acc := f.account(t)
	assert.Equal(t, 1, countKind(acc, ledger.KindRenewal))
	assert.Equal(t, int64(10000), acc.Balance)
	assert.Equal(t, "in_2", acc.LastTransaction().Metadata.Reference)
}

func TestHandle_OutOfOrderDoesNotRevert(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.handle(t, subEvent("evt_new", billing.EventSubscriptionUpdated, billing.StatusActive, t0.Add(time.Hour)))
	out := f.handle(t, subEvent("evt_old", billing.EventSubscriptionUpdated, billing.StatusCanceled, t0))
	assert.Equal(t, billing.OutcomeSkipped, out)

	sub, err := f.subs.Get(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.True(t, sub.IsActive())
	assert.Equal(t, "evt_new", sub.LastEventID)
	assert.Equal(t, ledger.TierPro, f.account(t).Tier)
}

func TestHandle_StaleCycleInvoiceStillRenews(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.handle(t, subEvent("evt_1", billing.EventSubscriptionUpdated, billing.StatusActive, t0.Add(2*time.Hour)))
	out := f.handle(t, invoiceEvent("evt_inv", billing.EventInvoicePaid, "in_9", billing.ReasonSubscriptionCycle, t0.Add(time.Hour)))
	assert.Equal(t, billing.OutcomeApplied, out)

	acc := f.account(t)
	assert.Equal(t, 1, countKind(acc, ledger.KindRenewal))

	sub, err := f.subs.Get(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "evt_1", sub.LastEventID)

	// A stale status change is skipped.
	out = f.handle(t, invoiceEvent("evt_fail", billing.EventInvoicePaymentFailed, "in_8", billing.ReasonSubscriptionCycle, t0))
	assert.Equal(t, billing.OutcomeSkipped, out)
}

func TestHandle_DeletedDowngradesKeepingBalance(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.handle(t, subEvent("evt_1", billing.EventSubscriptionCreated, billing.StatusActive, t0))
	_, err := f.credits.Deduct(context.Background(), "acc_1", 1200, "chat", ledger.Metadata{})
	require.NoError(t, err)

	out := f.handle(t, subEvent("evt_2", billing.EventSubscriptionDeleted, billing.StatusCanceled, t0.Add(time.Hour)))
	assert.Equal(t, billing.OutcomeApplied, out)

	acc := f.account(t)
	assert.Equal(t, ledger.TierFree, acc.Tier)
	assert.Equal(t, int64(3800), acc.Balance)

	sub, err := f.subs.Get(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.True(t, sub.IsCanceled())
	assert.Equal(t, ledger.TierFree, sub.Tier)

	// Renewals for a canceled subscription have no transition.
	out = f.handle(t, invoiceEvent("evt_3", billing.EventInvoicePaid, "in_3", billing.ReasonSubscriptionCycle, t0.Add(2*time.Hour)))
	assert.Equal(t, billing.OutcomeIgnored, out)
	assert.Equal(t, 0, countKind(f.account(t), ledger.KindRenewal))
}

func TestHandle_FirstInvoiceBeforeSubscription(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	ev := invoiceEvent("evt_inv", billing.EventInvoicePaid, "in_1", billing.ReasonSubscriptionCreate, t0)
	ev.AccountID = "acc_1"
	assert.Equal(t, billing.OutcomeApplied, f.handle(t, ev))

	acc := f.account(t)
	assert.Equal(t, ledger.TierPro, acc.Tier)
	assert.Equal(t, 1, countKind(acc, ledger.KindTierUpgrade))
	assert.Equal(t, 0, countKind(acc, ledger.KindRenewal))

	f.handle(t, subEvent("evt_sub", billing.EventSubscriptionCreated, billing.StatusActive, t0.Add(time.Second)))
	assert.Equal(t, 1, countKind(f.account(t), ledger.KindTierUpgrade))
}

func TestHandle_TrialKeepsTier(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	out := f.handle(t, subEvent("evt_1", billing.EventSubscriptionCreated, billing.StatusTrialing, t0))
	assert.Equal(t, billing.OutcomeApplied, out)

	acc := f.account(t)
	assert.Equal(t, ledger.TierFree, acc.Tier)
	assert.Equal(t, int64(250), acc.Balance)

	sub, err := f.subs.Get(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusTrialing, sub.Status)

	f.handle(t, subEvent("evt_2", billing.EventSubscriptionUpdated, billing.StatusActive, t0.Add(time.Hour)))
	assert.Equal(t, ledger.TierPro, f.account(t).Tier)
}

func TestHandle_IgnoredAndFailed(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	out := f.handle(t, subEvent("evt_1", billing.EventSubscriptionCreated, billing.StatusIncomplete, t0))
	assert.Equal(t, billing.OutcomeIgnored, out)

	out = f.handle(t, billing.Event{ID: "evt_2", Type: billing.EventTrialEnding, SubscriptionID: "sub_1"})
	assert.Equal(t, billing.OutcomeIgnored, out)

	ev := subEvent("evt_3", billing.EventSubscriptionCreated, billing.StatusActive, t0)
	ev.AccountID = ""
	ev.SubscriptionID = "sub_unknown"
	out, err := f.svc.Handle(context.Background(), ev)
	assert.Equal(t, billing.OutcomeFailed, out)
	assert.ErrorIs(t, err, subscription.ErrAccountUnresolved)

	ev = subEvent("evt_4", billing.EventSubscriptionCreated, billing.StatusActive, t0)
	ev.AccountID = "acc_missing"
	ev.SubscriptionID = "sub_2"
	out, err = f.svc.Handle(context.Background(), ev)
	assert.Equal(t, billing.OutcomeFailed, out)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = f.subs.Get(context.Background(), "sub_2")
	assert.ErrorIs(t, err, subscription.ErrNotFound)
}

func TestHandle_CustomerUpdated(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	out := f.handle(t, billing.Event{ID: "evt_0", Type: billing.EventCustomerUpdated, CustomerID: "cus_1", Email: "new@example.com"})
	assert.Equal(t, billing.OutcomeIgnored, out)

	f.handle(t, subEvent("evt_1", billing.EventSubscriptionCreated, billing.StatusActive, t0))

	out = f.handle(t, billing.Event{ID: "evt_2", Type: billing.EventCustomerUpdated, CustomerID: "cus_1", Email: "new@example.com"})
	assert.Equal(t, billing.OutcomeApplied, out)
	assert.Equal(t, "new@example.com", f.account(t).Email)
}

// gatedCredits parks UpgradeTier until release is closed.
type gatedCredits struct {
	*credit.Service
	entered chan struct{}
	release chan struct{}
}

func (g *gatedCredits) UpgradeTier(ctx context.Context, id string, tier ledger.Tier, subscriptionID, customerID string, meta ledger.Metadata) (credit.Result, error) {
	close(g.entered)
	<-g.release
	return g.Service.UpgradeTier(ctx, id, tier, subscriptionID, customerID, meta)
}

func TestHandle_ConcurrentOlderActivationLosesToNewerCancel(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	gate := &gatedCredits{Service: f.credits, entered: make(chan struct{}), release: make(chan struct{})}
	svc, err := subscription.NewService(f.subs, gate, subscription.WithLogger(logger.Discard()))
	require.NoError(t, err)
	ctx := context.Background()

	var older billing.Outcome
	var g errgroup.Group
	g.Go(func() error {
		var err error
		older, err = svc.Handle(ctx, subEvent("evt_old", billing.EventSubscriptionUpdated, billing.StatusActive, t0))
		return err
	})

	<-gate.entered
	newer, err := svc.Handle(ctx, subEvent("evt_new", billing.EventSubscriptionDeleted, billing.StatusCanceled, t0.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeApplied, newer)

	close(gate.release)
	require.NoError(t, g.Wait())
	assert.Equal(t, billing.OutcomeSkipped, older)

	acc := f.account(t)
	assert.Equal(t, ledger.TierFree, acc.Tier)
	assert.Equal(t, int64(250), acc.Balance)
	assert.Equal(t, 0, countKind(acc, ledger.KindTierUpgrade))

	sub, err := f.subs.Get(ctx, "sub_1")
	require.NoError(t, err)
	assert.True(t, sub.IsCanceled())
	assert.Equal(t, "evt_new", sub.LastEventID)
}

func TestHandle_ActiveUpdateAfterHistoryTrimGrantsNothing(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.handle(t, subEvent("evt_1", billing.EventSubscriptionCreated, billing.StatusActive, t0))
	for range ledger.DefaultHistoryCap + 20 {
		_, err := f.credits.Deduct(ctx, "acc_1", 40, "chat", ledger.Metadata{})
		require.NoError(t, err)
	}
	acc := f.account(t)
	require.Equal(t, int64(200), acc.Balance)
	require.Zero(t, countKind(acc, ledger.KindTierUpgrade), "upgrade grant should be trimmed")

	out := f.handle(t, subEvent("evt_2", billing.EventSubscriptionUpdated, billing.StatusActive, t0.Add(time.Hour)))
	assert.Equal(t, billing.OutcomeApplied, out)

	acc = f.account(t)
	assert.Equal(t, ledger.TierPro, acc.Tier)
	assert.Equal(t, int64(200), acc.Balance)
	assert.Equal(t, ledger.KindDeduction, acc.LastTransaction().Kind)
}

func TestHandle_ReactivationAfterCancelGrantsAgain(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.handle(t, subEvent("evt_1", billing.EventSubscriptionCreated, billing.StatusActive, t0))
	_, err := f.credits.Deduct(context.Background(), "acc_1", 4000, "chat", ledger.Metadata{})
	require.NoError(t, err)
	f.handle(t, subEvent("evt_2", billing.EventSubscriptionUpdated, billing.StatusCanceled, t0.Add(time.Hour)))
	f.handle(t, subEvent("evt_3", billing.EventSubscriptionUpdated, billing.StatusActive, t0.Add(2*time.Hour)))

	acc := f.account(t)
	assert.Equal(t, ledger.TierPro, acc.Tier)
	assert.Equal(t, int64(5000), acc.Balance)
	assert.Equal(t, 2, countKind(acc, ledger.KindTierUpgrade))
}

func TestHandle_StaleCycleInvoiceAfterCancelIsSkipped(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.handle(t, subEvent("evt_1", billing.EventSubscriptionCreated, billing.StatusActive, t0))
	f.handle(t, subEvent("evt_2", billing.EventSubscriptionDeleted, billing.StatusCanceled, t0.Add(2*time.Hour)))

	out := f.handle(t, invoiceEvent("evt_inv", billing.EventInvoicePaid, "in_5", billing.ReasonSubscriptionCycle, t0.Add(time.Hour)))
	assert.Equal(t, billing.OutcomeSkipped, out)

	acc := f.account(t)
	assert.Equal(t, ledger.TierFree, acc.Tier)
	assert.Equal(t, 0, countKind(acc, ledger.KindRenewal))
}

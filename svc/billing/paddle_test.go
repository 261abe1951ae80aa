package billing_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachkit/creditledger/svc/billing"
)

func newPaddle(t *testing.T) *billing.PaddleProvider {
	t.Helper()
	p, err := billing.NewPaddleProvider(paddleSecret)
	require.NoError(t, err)
	return p
}

func TestPaddleProvider_Subscription(t *testing.T) {
	t.Parallel()
	p := newPaddle(t)
	occurred := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		providerType string
		status       string
		want         billing.EventType
		wantStatus   string
	}{
		{"subscription.created", "active", billing.EventSubscriptionCreated, billing.StatusActive},
		{"subscription.past_due", "past_due", billing.EventSubscriptionUpdated, billing.StatusPastDue},
		{"subscription.trialing", "trialing", billing.EventSubscriptionUpdated, billing.StatusTrialing},
		{"subscription.canceled", "canceled", billing.EventSubscriptionDeleted, billing.StatusCanceled},
	}
	for _, tt := range tests {
		t.Run(tt.providerType, func(t *testing.T) {
			t.Parallel()
			payload := paddlePayload("evt_"+tt.status, tt.providerType, occurred, `{
				"id": "sub_01",
				"status": "`+tt.status+`",
				"customer_id": "ctm_01",
				"custom_data": {"account_id": "acc_1"},
				"current_billing_period": {"starts_at": "2026-03-01T00:00:00Z", "ends_at": "2026-04-01T00:00:00Z"},
				"scheduled_change": {"action": "cancel"}
			}`)

			ev, err := p.Parse(context.Background(), payload, paddleHeader(payload, paddleSecret, time.Now()))
			require.NoError(t, err)
			assert.Equal(t, "paddle", ev.Provider)
			assert.Equal(t, tt.want, ev.Type)
			assert.Equal(t, tt.wantStatus, ev.Status)
			assert.Equal(t, occurred, ev.OccurredAt)
			assert.Equal(t, "acc_1", ev.AccountID)
			assert.Equal(t, "sub_01", ev.SubscriptionID)
			assert.Equal(t, "ctm_01", ev.CustomerID)
			assert.True(t, ev.CancelAtPeriodEnd)
			assert.Equal(t, time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC), ev.PeriodEnd)
		})
	}
}

func TestPaddleProvider_Transaction(t *testing.T) {
	t.Parallel()
	p := newPaddle(t)

	payload := paddlePayload("evt_t1", "transaction.completed", time.Now(), `{
		"id": "txn_01",
		"status": "completed",
		"customer_id": "ctm_01",
		"subscription_id": "sub_01",
		"origin": "subscription_recurring"
	}`)
	ev, err := p.Parse(context.Background(), payload, paddleHeader(payload, paddleSecret, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, billing.EventInvoicePaid, ev.Type)
	assert.Equal(t, "txn_01", ev.InvoiceID)
	assert.Equal(t, billing.ReasonSubscriptionCycle, ev.BillingReason)

	payload = paddlePayload("evt_t2", "transaction.payment_failed", time.Now(), `{
		"id": "txn_02", "subscription_id": "sub_01", "origin": "subscription_update"
	}`)
	ev, err = p.Parse(context.Background(), payload, paddleHeader(payload, paddleSecret, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, billing.EventInvoicePaymentFailed, ev.Type)
	assert.Equal(t, billing.ReasonSubscriptionUpdate, ev.BillingReason)

	// One-off purchases stay unrecognised.
	payload = paddlePayload("evt_t3", "transaction.completed", time.Now(), `{"id": "txn_03", "origin": "web"}`)
	ev, err = p.Parse(context.Background(), payload, paddleHeader(payload, paddleSecret, time.Now()))
	require.NoError(t, err)
	assert.False(t, ev.Type.Known())
}

func TestPaddleProvider_Customer(t *testing.T) {
	t.Parallel()
	p := newPaddle(t)

	payload := paddlePayload("evt_c1", "customer.updated", time.Now(), `{"id":"ctm_01","email":"c@example.com"}`)
	ev, err := p.Parse(context.Background(), payload, paddleHeader(payload, paddleSecret, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, billing.EventCustomerUpdated, ev.Type)
	assert.Equal(t, "ctm_01", ev.CustomerID)
	assert.Equal(t, "c@example.com", ev.Email)
}

func TestPaddleProvider_Rejects(t *testing.T) {
	t.Parallel()
	p := newPaddle(t)
	payload := paddlePayload("evt_1", "subscription.created", time.Now(), `{"id":"sub_01","status":"active"}`)

	_, err := p.Parse(context.Background(), payload, http.Header{})
	assert.ErrorIs(t, err, billing.ErrInvalidSignature)

	_, err = p.Parse(context.Background(), payload, paddleHeader(payload, "other", time.Now()))
	assert.ErrorIs(t, err, billing.ErrInvalidSignature)

	h := http.Header{}
	h.Set("Paddle-Signature", "garbage")
	_, err = p.Parse(context.Background(), payload, h)
	assert.ErrorIs(t, err, billing.ErrInvalidSignature)

	bad := []byte(`{"event_type":"subscription.created"}`)
	_, err = p.Parse(context.Background(), bad, paddleHeader(bad, paddleSecret, time.Now()))
	assert.ErrorIs(t, err, billing.ErrInvalidPayload)

	_, err = billing.NewPaddleProvider("")
	assert.ErrorIs(t, err, billing.ErrMissingWebhookSecret)
}

package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleProvider verifies Paddle-Signature headers with the SDK verifier and
// normalises subscription, transaction and customer notifications.
type PaddleProvider struct {
	verifier *paddle.WebhookVerifier
}

func NewPaddleProvider(secret string) (*PaddleProvider, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: paddle", ErrMissingWebhookSecret)
	}
	return &PaddleProvider{verifier: paddle.NewWebhookVerifier(secret)}, nil
}

func (p *PaddleProvider) Name() string { return "paddle" }

type paddleEnvelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

type paddlePeriod struct {
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

type paddleCustomData map[string]any

func (d paddleCustomData) accountID() string {
	s, _ := d[metaAccountID].(string)
	return s
}

type paddleSubscription struct {
	ID                   string           `json:"id"`
	Status               string           `json:"status"`
	CustomerID           string           `json:"customer_id"`
	CustomData           paddleCustomData `json:"custom_data"`
	CurrentBillingPeriod *paddlePeriod    `json:"current_billing_period"`
	ScheduledChange      *struct {
		Action string `json:"action"`
	} `json:"scheduled_change"`
}

type paddleTransaction struct {
	ID             string           `json:"id"`
	Status         string           `json:"status"`
	CustomerID     string           `json:"customer_id"`
	SubscriptionID string           `json:"subscription_id"`
	Origin         string           `json:"origin"`
	CustomData     paddleCustomData `json:"custom_data"`
	BillingPeriod  *paddlePeriod    `json:"billing_period"`
}

type paddleCustomer struct {
	ID         string           `json:"id"`
	Email      string           `json:"email"`
	CustomData paddleCustomData `json:"custom_data"`
}

func (p *PaddleProvider) Parse(ctx context.Context, payload []byte, header http.Header) (Event, error) {
	sig := header.Get("Paddle-Signature")
	if sig == "" {
		return Event{}, fmt.Errorf("%w: missing Paddle-Signature header", ErrInvalidSignature)
	}

	// The SDK verifier works on a request; it re-reads and restores the body.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhooks/paddle", bytes.NewReader(payload))
	if err != nil {
		return Event{}, errors.Join(ErrInvalidPayload, err)
	}
	req.Header.Set("Paddle-Signature", sig)

	ok, err := p.verifier.Verify(req)
	if err != nil {
		return Event{}, errors.Join(ErrInvalidSignature, err)
	}
	if !ok {
		return Event{}, ErrInvalidSignature
	}

	var env paddleEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Event{}, errors.Join(ErrInvalidPayload, err)
	}
	if env.EventID == "" || env.EventType == "" {
		return Event{}, fmt.Errorf("%w: event_id or event_type missing", ErrInvalidPayload)
	}

	ev := Event{
		ID:           env.EventID,
		Provider:     p.Name(),
		ProviderType: env.EventType,
		Type:         EventType(env.EventType),
		OccurredAt:   env.OccurredAt.UTC(),
		Raw:          bytes.Clone(payload),
	}

	switch {
	case strings.HasPrefix(env.EventType, "subscription."):
		err = decodePaddleSubscription(env.Data, &ev)
	case env.EventType == "transaction.completed" || env.EventType == "transaction.payment_failed":
		err = decodePaddleTransaction(env.Data, &ev)
	case env.EventType == "customer.updated":
		ev.Type = EventCustomerUpdated
		err = decodePaddleCustomer(env.Data, &ev)
	}
	if err != nil {
		return Event{}, errors.Join(ErrInvalidPayload, err)
	}
	return ev, nil
}

func decodePaddleSubscription(raw []byte, ev *Event) error {
	var sub paddleSubscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return err
	}
	if sub.ID == "" {
		return errors.New("subscription id missing")
	}

	switch ev.ProviderType {
	case "subscription.created":
		ev.Type = EventSubscriptionCreated
	case "subscription.canceled":
		ev.Type = EventSubscriptionDeleted
	case "subscription.updated", "subscription.activated", "subscription.past_due",
		"subscription.resumed", "subscription.paused", "subscription.trialing":
		ev.Type = EventSubscriptionUpdated
	}

	ev.SubscriptionID = sub.ID
	ev.CustomerID = sub.CustomerID
	ev.AccountID = sub.CustomData.accountID()
	ev.Status = paddleStatus(sub.Status)
	if sub.CurrentBillingPeriod != nil {
		ev.PeriodStart = sub.CurrentBillingPeriod.StartsAt.UTC()
		ev.PeriodEnd = sub.CurrentBillingPeriod.EndsAt.UTC()
	}
	ev.CancelAtPeriodEnd = sub.ScheduledChange != nil && sub.ScheduledChange.Action == "cancel"
	return nil
}

func decodePaddleTransaction(raw []byte, ev *Event) error {
	var txn paddleTransaction
	if err := json.Unmarshal(raw, &txn); err != nil {
		return err
	}
	if txn.ID == "" {
		return errors.New("transaction id missing")
	}
	// One-off purchases carry no subscription and stay unrecognised.
	if txn.SubscriptionID == "" {
		return nil
	}

	if ev.ProviderType == "transaction.completed" {
		ev.Type = EventInvoicePaid
	} else {
		ev.Type = EventInvoicePaymentFailed
	}
	ev.InvoiceID = txn.ID
	ev.SubscriptionID = txn.SubscriptionID
	ev.CustomerID = txn.CustomerID
	ev.AccountID = txn.CustomData.accountID()
	ev.BillingReason = paddleBillingReason(txn.Origin)
	if txn.BillingPeriod != nil {
		ev.PeriodStart = txn.BillingPeriod.StartsAt.UTC()
		ev.PeriodEnd = txn.BillingPeriod.EndsAt.UTC()
	}
	return nil
}

func decodePaddleCustomer(raw []byte, ev *Event) error {
	var c paddleCustomer
	if err := json.Unmarshal(raw, &c); err != nil {
		return err
	}
	if c.ID == "" {
		return errors.New("customer id missing")
	}
	ev.CustomerID = c.ID
	ev.Email = c.Email
	ev.AccountID = c.CustomData.accountID()
	return nil
}

func paddleStatus(s string) string {
	switch strings.ToLower(s) {
	case "active":
		return StatusActive
	case "trialing":
		return StatusTrialing
	case "past_due":
		return StatusPastDue
	case "canceled", "cancelled":
		return StatusCanceled
	case "paused":
		return StatusPaused
	default:
		return s
	}
}

func paddleBillingReason(origin string) string {
	switch origin {
	case "subscription_recurring":
		return ReasonSubscriptionCycle
	case "subscription_update", "subscription_charge", "subscription_payment_method_change":
		return ReasonSubscriptionUpdate
	case "web", "api":
		return ReasonSubscriptionCreate
	default:
		return origin
	}
}

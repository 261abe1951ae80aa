package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeProvider verifies Stripe-Signature headers and normalises
// subscription, invoice and customer events.
type StripeProvider struct {
	secret    string
	tolerance time.Duration
}

// StripeOption configures a StripeProvider.
type StripeOption func(*StripeProvider)

// WithStripeTolerance overrides the accepted signature age.
func WithStripeTolerance(d time.Duration) StripeOption {
	return func(p *StripeProvider) {
		if d > 0 {
			p.tolerance = d
		}
	}
}

func NewStripeProvider(secret string, opts ...StripeOption) (*StripeProvider, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: stripe", ErrMissingWebhookSecret)
	}
	p := &StripeProvider{secret: secret, tolerance: webhook.DefaultTolerance}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *StripeProvider) Name() string { return "stripe" }

func (p *StripeProvider) Parse(_ context.Context, payload []byte, header http.Header) (Event, error) {
	sig := header.Get("Stripe-Signature")
	if sig == "" {
		return Event{}, fmt.Errorf("%w: missing Stripe-Signature header", ErrInvalidSignature)
	}

	se, err := webhook.ConstructEventWithOptions(payload, sig, p.secret, webhook.ConstructEventOptions{
		Tolerance:                p.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if errors.Is(err, webhook.ErrNotSigned) || errors.Is(err, webhook.ErrInvalidHeader) ||
			errors.Is(err, webhook.ErrNoValidSignature) || errors.Is(err, webhook.ErrTooOld) {
			return Event{}, errors.Join(ErrInvalidSignature, err)
		}
		return Event{}, errors.Join(ErrInvalidPayload, err)
	}
	if se.ID == "" || se.Data == nil {
		return Event{}, fmt.Errorf("%w: event id or data missing", ErrInvalidPayload)
	}

	ev := Event{
		ID:           se.ID,
		Provider:     p.Name(),
		ProviderType: string(se.Type),
		Type:         EventType(se.Type),
		OccurredAt:   time.Unix(se.Created, 0).UTC(),
		Raw:          bytes.Clone(payload),
	}

	switch se.Type {
	case stripe.EventTypeCustomerSubscriptionCreated:
		ev.Type = EventSubscriptionCreated
		err = decodeStripeSubscription(se.Data.Raw, &ev)
	case stripe.EventTypeCustomerSubscriptionUpdated:
		ev.Type = EventSubscriptionUpdated
		err = decodeStripeSubscription(se.Data.Raw, &ev)
	case stripe.EventTypeCustomerSubscriptionDeleted:
		ev.Type = EventSubscriptionDeleted
		err = decodeStripeSubscription(se.Data.Raw, &ev)
	case stripe.EventTypeCustomerSubscriptionTrialWillEnd:
		ev.Type = EventTrialEnding
		err = decodeStripeSubscription(se.Data.Raw, &ev)
	case stripe.EventTypeInvoicePaid:
		ev.Type = EventInvoicePaid
		err = decodeStripeInvoice(se.Data.Raw, &ev)
	case stripe.EventTypeInvoicePaymentSucceeded:
		ev.Type = EventInvoicePaymentSucceeded
		err = decodeStripeInvoice(se.Data.Raw, &ev)
	case stripe.EventTypeInvoicePaymentFailed:
		ev.Type = EventInvoicePaymentFailed
		err = decodeStripeInvoice(se.Data.Raw, &ev)
	case stripe.EventTypeCustomerUpdated:
		ev.Type = EventCustomerUpdated
		err = decodeStripeCustomer(se.Data.Raw, &ev)
	}
	if err != nil {
		return Event{}, errors.Join(ErrInvalidPayload, err)
	}
	return ev, nil
}

// stripeRef decodes a field that is either an id or an expanded object.
type stripeRef struct {
	ID string
}

func (r *stripeRef) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &r.ID)
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	r.ID = obj.ID
	return nil
}

type stripePeriod struct {
	CurrentPeriodStart int64 `json:"current_period_start"`
	CurrentPeriodEnd   int64 `json:"current_period_end"`
}

type stripeSubscription struct {
	ID                string            `json:"id"`
	Status            string            `json:"status"`
	Customer          stripeRef         `json:"customer"`
	Metadata          map[string]string `json:"metadata"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	stripePeriod
	Items struct {
		Data []stripePeriod `json:"data"`
	} `json:"items"`
}

type stripeInvoice struct {
	ID            string            `json:"id"`
	BillingReason string            `json:"billing_reason"`
	CustomerEmail string            `json:"customer_email"`
	Customer      stripeRef         `json:"customer"`
	Subscription  *stripeRef        `json:"subscription"`
	Metadata      map[string]string `json:"metadata"`
	PeriodStart   int64             `json:"period_start"`
	PeriodEnd     int64             `json:"period_end"`
	Parent        *struct {
		SubscriptionDetails *struct {
			Subscription stripeRef         `json:"subscription"`
			Metadata     map[string]string `json:"metadata"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

type stripeCustomer struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Metadata map[string]string `json:"metadata"`
}

func decodeStripeSubscription(raw []byte, ev *Event) error {
	var sub stripeSubscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return err
	}
	if sub.ID == "" {
		return errors.New("subscription id missing")
	}

	// Newer API versions carry the period on the items only.
	period := sub.stripePeriod
	if period.CurrentPeriodEnd == 0 && len(sub.Items.Data) > 0 {
		period = sub.Items.Data[0]
	}

	ev.SubscriptionID = sub.ID
	ev.CustomerID = sub.Customer.ID
	ev.AccountID = sub.Metadata[metaAccountID]
	ev.Status = stripeStatus(stripe.SubscriptionStatus(sub.Status))
	ev.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	ev.PeriodStart = unixOrZero(period.CurrentPeriodStart)
	ev.PeriodEnd = unixOrZero(period.CurrentPeriodEnd)
	return nil
}

func decodeStripeInvoice(raw []byte, ev *Event) error {
	var inv stripeInvoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		return err
	}
	if inv.ID == "" {
		return errors.New("invoice id missing")
	}

	ev.InvoiceID = inv.ID
	ev.CustomerID = inv.Customer.ID
	ev.Email = inv.CustomerEmail
	ev.BillingReason = string(stripe.InvoiceBillingReason(inv.BillingReason))
	ev.PeriodStart = unixOrZero(inv.PeriodStart)
	ev.PeriodEnd = unixOrZero(inv.PeriodEnd)
	ev.AccountID = inv.Metadata[metaAccountID]

	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil {
		ev.SubscriptionID = inv.Parent.SubscriptionDetails.Subscription.ID
		if ev.AccountID == "" {
			ev.AccountID = inv.Parent.SubscriptionDetails.Metadata[metaAccountID]
		}
	}
	if ev.SubscriptionID == "" && inv.Subscription != nil {
		ev.SubscriptionID = inv.Subscription.ID
	}
	return nil
}

func decodeStripeCustomer(raw []byte, ev *Event) error {
	var c stripeCustomer
	if err := json.Unmarshal(raw, &c); err != nil {
		return err
	}
	if c.ID == "" {
		return errors.New("customer id missing")
	}
	ev.CustomerID = c.ID
	ev.Email = c.Email
	ev.AccountID = c.Metadata[metaAccountID]
	return nil
}

func stripeStatus(s stripe.SubscriptionStatus) string {
	switch s {
	case stripe.SubscriptionStatusActive:
		return StatusActive
	case stripe.SubscriptionStatusTrialing:
		return StatusTrialing
	case stripe.SubscriptionStatusPastDue:
		return StatusPastDue
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return StatusCanceled
	case stripe.SubscriptionStatusUnpaid:
		return StatusUnpaid
	case stripe.SubscriptionStatusIncomplete:
		return StatusIncomplete
	case stripe.SubscriptionStatusPaused:
		return StatusPaused
	default:
		return string(s)
	}
}

func unixOrZero(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

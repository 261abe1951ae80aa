package billing

import "time"

// EventType is the provider-neutral event name.
type EventType string

const (
	EventSubscriptionCreated     EventType = "subscription.created"
	EventSubscriptionUpdated     EventType = "subscription.updated"
	EventSubscriptionDeleted     EventType = "subscription.deleted"
	EventInvoicePaid             EventType = "invoice.paid"
	EventInvoicePaymentSucceeded EventType = "invoice.payment_succeeded"
	EventInvoicePaymentFailed    EventType = "invoice.payment_failed"
	EventCustomerUpdated         EventType = "customer.updated"
	EventTrialEnding             EventType = "trial.ending"
)

// Known reports whether t is one of the normalised types. Adapters pass
// unrecognised provider types through unchanged.
func (t EventType) Known() bool {
	switch t {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted,
		EventInvoicePaid, EventInvoicePaymentSucceeded, EventInvoicePaymentFailed,
		EventCustomerUpdated, EventTrialEnding:
		return true
	}
	return false
}

// IsInvoice reports whether t carries invoice fields.
func (t EventType) IsInvoice() bool {
	return t == EventInvoicePaid || t == EventInvoicePaymentSucceeded || t == EventInvoicePaymentFailed
}

// Provider-neutral subscription statuses carried in Event.Status.
const (
	StatusTrialing   = "trialing"
	StatusActive     = "active"
	StatusPastDue    = "past_due"
	StatusCanceled   = "canceled"
	StatusUnpaid     = "unpaid"
	StatusIncomplete = "incomplete"
	StatusPaused     = "paused"
)

// Billing reasons carried in Event.BillingReason.
const (
	ReasonSubscriptionCreate = "subscription_create"
	ReasonSubscriptionCycle  = "subscription_cycle"
	ReasonSubscriptionUpdate = "subscription_update"
	ReasonManual             = "manual"
)

// Event is a verified, normalised provider event.
type Event struct {
	ID                string    `json:"id"`
	Provider          string    `json:"provider"`
	Type              EventType `json:"type"`
	ProviderType      string    `json:"provider_type"`
	OccurredAt        time.Time `json:"occurred_at"`
	AccountID         string    `json:"account_id,omitempty"`
	SubscriptionID    string    `json:"subscription_id,omitempty"`
	CustomerID        string    `json:"customer_id,omitempty"`
	InvoiceID         string    `json:"invoice_id,omitempty"`
	Status            string    `json:"status,omitempty"`
	PeriodStart       time.Time `json:"period_start,omitzero"`
	PeriodEnd         time.Time `json:"period_end,omitzero"`
	CancelAtPeriodEnd bool      `json:"cancel_at_period_end,omitempty"`
	BillingReason     string    `json:"billing_reason,omitempty"`
	Email             string    `json:"email,omitempty"`
	Raw               []byte    `json:"-"`
}

// Outcome is what happened to a delivery. Every outcome is acknowledged.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeSkipped   Outcome = "skipped" // older than the stored state
	OutcomeFailed    Outcome = "failed"
)

package subscription

import (
	"time"

	"github.com/coachkit/creditledger/svc/ledger"
)

// Status is the local subscription status. It is a statemachine.State.
type Status string

const (
	StatusNone     Status = "none"
	StatusTrialing Status = "trialing"
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

func (s Status) Name() string { return string(s) }

// Tier is the account tier a subscription in status s entitles.
func (s Status) Tier() ledger.Tier {
	switch s {
	case StatusActive, StatusPastDue:
		return ledger.TierPro
	default:
		return ledger.TierFree
	}
}

// Subscription is the projection of one provider subscription.
type Subscription struct {
	ID                 string      `json:"id"`
	AccountID          string      `json:"account_id"`
	CustomerID         string      `json:"customer_id,omitempty"`
	Tier               ledger.Tier `json:"tier"`
	Status             Status      `json:"status"`
	CurrentPeriodStart time.Time   `json:"current_period_start,omitzero"`
	CurrentPeriodEnd   time.Time   `json:"current_period_end,omitzero"`
	CancelAtPeriodEnd  bool        `json:"cancel_at_period_end"`
	LastEventID        string      `json:"last_event_id"`
	LastEventAt        time.Time   `json:"last_event_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

func (s *Subscription) IsActive() bool   { return s.Status == StatusActive }
func (s *Subscription) IsPastDue() bool  { return s.Status == StatusPastDue }
func (s *Subscription) IsCanceled() bool { return s.Status == StatusCanceled }

// signal is a statemachine.Event derived from a billing event.
type signal string

const (
	signalTrial    signal = "trial"
	signalActivate signal = "activate"
	signalPaid     signal = "paid"
	signalPastDue  signal = "past_due"
	signalCancel   signal = "cancel"
)

func (s signal) Name() string { return string(s) }

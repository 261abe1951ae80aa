package ledger

import (
	"maps"
	"slices"
	"time"
)

// Tier is the subscription plan level of an account.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

func (t Tier) Valid() bool {
	return t == TierFree || t == TierPro
}

// Kind classifies a transaction.
type Kind string

const (
	KindInitialization Kind = "initialization"
	KindDeduction      Kind = "deduction"
	KindAddition       Kind = "addition"
	KindTierUpgrade    Kind = "tier_upgrade"
	KindRenewal        Kind = "renewal"
	KindRefund         Kind = "refund"
)

func (k Kind) Valid() bool {
	switch k {
	case KindInitialization, KindDeduction, KindAddition, KindTierUpgrade, KindRenewal, KindRefund:
		return true
	}
	return false
}

// Metadata is the audit context of a transaction. Well-known keys have their
// own fields; anything else goes to Extra.
type Metadata struct {
	Feature        string `json:"feature,omitempty" bson:"feature,omitempty"`
	EventID        string `json:"event_id,omitempty" bson:"event_id,omitempty"`
	Reference      string `json:"reference,omitempty" bson:"reference,omitempty"`
	Reason         string `json:"reason,omitempty" bson:"reason,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty" bson:"subscription_id,omitempty"`
	// OccurredAt is the provider ordering time of the billing event behind the write.
	OccurredAt time.Time         `json:"occurred_at,omitzero" bson:"occurred_at,omitempty"`
	Extra      map[string]string `json:"extra,omitempty" bson:"extra,omitempty"`
}

func (m Metadata) clone() Metadata {
	m.Extra = maps.Clone(m.Extra)
	return m
}

// Transaction is one immutable history entry.
type Transaction struct {
	ID            string    `json:"id"`
	Seq           int64     `json:"seq"`
	Kind          Kind      `json:"kind"`
	Delta         int64     `json:"delta"`
	BalanceBefore int64     `json:"balance_before"`
	BalanceAfter  int64     `json:"balance_after"`
	Metadata      Metadata  `json:"metadata"`
	CreatedAt     time.Time `json:"created_at"`
}

// Account is the ledger record of one billable user.
type Account struct {
	ID                     string `json:"id"`
	DisplayName            string `json:"display_name"`
	Email                  string `json:"email"`
	Tier                   Tier   `json:"tier"`
	Balance                int64  `json:"balance"`
	ExternalSubscriptionID string `json:"external_subscription_id,omitempty"`
	ExternalCustomerID     string `json:"external_customer_id,omitempty"`

	// TierEventAt is the OccurredAt of the newest billing event applied to Tier.
	// Tier changes carrying an older event are refused.
	TierEventAt time.Time `json:"tier_event_at,omitzero"`

	// TrimmedDelta is the sum of deltas dropped from Transactions by the history cap.
	TrimmedDelta int64         `json:"trimmed_delta"`
	Transactions []Transaction `json:"transactions"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy. A nil account clones to nil.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.Transactions = slices.Clone(a.Transactions)
	for i := range c.Transactions {
		c.Transactions[i].Metadata = c.Transactions[i].Metadata.clone()
	}
	return &c
}

// LastTransaction returns the newest retained transaction or nil.
func (a *Account) LastTransaction() *Transaction {
	if a == nil || len(a.Transactions) == 0 {
		return nil
	}
	t := a.Transactions[len(a.Transactions)-1]
	return &t
}

// FindByReference returns the newest retained transaction of kind carrying
// reference, or nil.
func (a *Account) FindByReference(kind Kind, reference string) *Transaction {
	if a == nil || reference == "" {
		return nil
	}
	for i := len(a.Transactions) - 1; i >= 0; i-- {
		t := a.Transactions[i]
		if t.Kind == kind && t.Metadata.Reference == reference {
			return &t
		}
	}
	return nil
}

package quota

import (
	"time"

	"github.com/coachkit/creditledger/svc/ledger"
)

// Feature is a metered capability such as "chat" or "replay_upload".
type Feature string

// Unlimited marks a feature without a cap.
const Unlimited int64 = -1

// Plan is a tier's feature limits. The grant amounts feed the credit
// service when plans come from a file.
type Plan struct {
	Tier         ledger.Tier       `yaml:"-"`
	Name         string            `yaml:"name"`
	Limits       map[Feature]int64 `yaml:"limits"`
	InitialGrant int64             `yaml:"initial_grant"`
	RenewalGrant int64             `yaml:"renewal_grant"`
}

// Counter is the stored state of one usage counter.
type Counter struct {
	Used    int64
	ResetAt time.Time
}

// Decision is the outcome of CheckAndIncrement.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Used      int64     `json:"used"`
	Limit     int64     `json:"limit"`
	Remaining int64     `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// Usage reports one feature's consumption in the current period.
type Usage struct {
	Feature   Feature   `json:"feature"`
	Used      int64     `json:"used"`
	Limit     int64     `json:"limit"`
	Remaining int64     `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// remaining is -1 for unlimited features.
func remaining(limit, used int64) int64 {
	if limit == Unlimited {
		return Unlimited
	}
	return max(limit-used, 0)
}

// NextPeriodStart returns the first instant of the month after t, in UTC.
func NextPeriodStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

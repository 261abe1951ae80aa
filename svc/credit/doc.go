// Package credit implements the credit operations applications call on
// every billable action and that billing events drive on tier changes.
//
// Each operation is a single ledger.Store.AtomicUpdate, so the balance check
// and the write happen against the same snapshot: two concurrent deductions
// can never both pass against a balance that only covers one of them. Denials
// are typed (InsufficientCreditsError carries the balance and the amount
// asked for) and every operation returns a Result so callers can present the
// new balance without a second read.
//
// Operations that carry Metadata.Reference are idempotent per reference: when
// a retained transaction of the same kind already has it, the earlier result
// is returned and nothing is written. Billing handlers key renewals by invoice
// id this way, and callers recovering from ledger.ErrOutcomeUnknown can retry
// safely with the same reference.
package credit

// Package subscription keeps a local projection of provider subscriptions and
// drives tier changes and renewal grants on the credit ledger.
//
// Billing events are mapped to signals and fed through a statemachine table:
//
//	none, trialing            --trial-->    trialing
//	any                       --activate--> active    (upgrade to pro)
//	none, trialing, active,
//	past_due                  --paid-->     active    (upgrade; renewal grant on cycle invoices)
//	none, trialing, active,
//	past_due                  --past_due--> past_due
//	any                       --cancel-->   canceled  (downgrade to free, balance kept)
//
// Each projection stores the OccurredAt of the last event applied to it. Older
// events are skipped, except that a cycle invoice still grants its renewal:
// renewals are keyed by invoice id on the ledger and cannot double-apply.
package subscription

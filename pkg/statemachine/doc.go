// Package statemachine provides a table-driven finite state machine whose
// current state is owned by the caller.
//
// A Machine holds transitions keyed by source state and event. Fire looks up
// the first transition whose guards all pass, runs its actions in order and
// returns the target state; the caller persists it. Because the machine holds
// no per-entity state, one Machine can serve any number of records and is safe
// for concurrent use once built.
//
//	m, err := statemachine.NewBuilder().
//		From(Active).When(PaymentFailed).To(PastDue).Add().
//		From(PastDue).When(PaymentSucceeded).To(Active).WithAction(grant).Add().
//		Build()
//
//	next, err := m.Fire(ctx, sub.Status, PaymentFailed, sub)
package statemachine

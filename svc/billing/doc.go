// Package billing turns signed provider webhooks into at-most-once calls on an
// EventHandler.
//
// Each delivery goes through four steps:
//
//  1. Verify: the provider adapter checks the signature and normalises the
//     payload into an Event. Failures are the only ones the HTTP layer
//     reports as 400.
//  2. Deduplicate: DedupStore.Claim is an atomic first-writer-wins marker on
//     the provider event id. A second delivery is acknowledged as
//     OutcomeDuplicate without side effects.
//  3. Dispatch: known event types go to the EventHandler. Unknown types are
//     acknowledged as OutcomeIgnored.
//  4. Record: the outcome is written back to the marker. Dispatch and
//     storage failures are logged with enough context to replay the event and
//     are still acknowledged, so the provider never enters a redelivery storm.
//
// Claims that are never completed (process crash mid-dispatch) lapse after the
// claim lease and the next delivery may take them over.
package billing

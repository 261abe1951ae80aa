// Package quota enforces per-feature monthly usage limits by tier.
//
// Counters are keyed by (account, feature) and live in a CounterStore
// (memory, Redis or Postgres). CheckAndIncrement is a single atomic step in
// every backend: the counter is lazily reset when its period has elapsed,
// compared against the plan limit and incremented only when allowed, so
// concurrent callers can never push usage past the limit.
//
// Periods are calendar months in UTC. A counter's ResetAt is the first instant
// of the month after the one it was last reset in. A limit of Unlimited (-1)
// always allows and still counts usage for reporting.
//
// Quota counters are independent of credit balances; neither is used to infer
// the other.
package quota

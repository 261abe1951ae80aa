// Package httpapi exposes the credit and quota services over JSON HTTP.
//
// Routes:
//
//	POST /v1/accounts                      initialize an account
//	GET  /v1/accounts/{id}                 balance, tier and retained history
//	POST /v1/accounts/{id}/deduct          charge credits for a feature
//	POST /v1/accounts/{id}/credits         add credits (addition or refund)
//	POST /v1/accounts/{id}/quota/{feature} count one metered invocation
//	GET  /v1/accounts/{id}/usage           per-feature usage this period
//
// NewRouter mounts these next to /healthz, /readyz, /metrics and the billing
// webhooks.
package httpapi

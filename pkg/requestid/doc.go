// Package requestid propagates a per-request identifier through the
// X-Request-ID header, the request context and log records.
package requestid

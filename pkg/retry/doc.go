// Package retry runs an operation a bounded number of times with a backoff
// delay between attempts. Only errors accepted by the caller's predicate are
// retried; anything else is returned immediately.
package retry

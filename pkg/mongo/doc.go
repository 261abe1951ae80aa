// Package mongo connects to MongoDB with mongo-driver/v2 for the document
// ledger backend. Driver-level retryable writes are disabled; the ledger store
// retries version conflicts itself.
package mongo

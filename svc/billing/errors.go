package billing

import "errors"

var (
	ErrInvalidSignature     = errors.New("billing: invalid webhook signature")
	ErrInvalidPayload       = errors.New("billing: invalid webhook payload")
	ErrUnknownProvider      = errors.New("billing: unknown provider")
	ErrMissingWebhookSecret = errors.New("billing: webhook secret is required")
	ErrDedupUnavailable     = errors.New("billing: dedup store unavailable")
	ErrArchiveFailed        = errors.New("billing: failed to archive event")
	ErrInvalidArchiveConfig = errors.New("billing: invalid archive configuration")
)

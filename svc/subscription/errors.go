package subscription

import "errors"

var (
	ErrNotFound           = errors.New("subscription: not found")
	ErrAccountUnresolved  = errors.New("subscription: event does not identify an account")
	ErrStorageUnavailable = errors.New("subscription: storage unavailable")
)

package logger

import (
	"log/slog"
	"strconv"
	"time"
)

// Attribute keys shared by every component so log queries stay stable.
const (
	KeyError          = "error"
	KeyErrors         = "errors"
	KeyAccountID      = "account_id"
	KeySubscriptionID = "subscription_id"
	KeyEventID        = "event_id"
	KeyEventType      = "event_type"
	KeyProvider       = "provider"
	KeyFeature        = "feature"
	KeyAmount         = "amount"
	KeyBalance        = "balance"
	KeyRequestID      = "request_id"
	KeyRetryCount     = "retry_count"
	KeyDuration       = "duration"
	KeyComponent      = "component"
)

func optionalString(key, v string) slog.Attr {
	if v == "" {
		return slog.Attr{}
	}
	return slog.String(key, v)
}

// Error returns an empty Attr for a nil error.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any(KeyError, err)
}

// Errors groups the non-nil errors by argument position.
func Errors(errs ...error) slog.Attr {
	var group []any
	for i, err := range errs {
		if err != nil {
			group = append(group, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(group) == 0 {
		return slog.Attr{}
	}
	return slog.Group(KeyErrors, group...)
}

func AccountID(id string) slog.Attr      { return optionalString(KeyAccountID, id) }
func SubscriptionID(id string) slog.Attr { return optionalString(KeySubscriptionID, id) }
func EventID(id string) slog.Attr        { return optionalString(KeyEventID, id) }
func RequestID(id string) slog.Attr      { return optionalString(KeyRequestID, id) }

func EventType(t string) slog.Attr       { return slog.String(KeyEventType, t) }
func Provider(name string) slog.Attr     { return slog.String(KeyProvider, name) }
func Feature(key string) slog.Attr       { return slog.String(KeyFeature, key) }
func Component(name string) slog.Attr    { return slog.String(KeyComponent, name) }
func Amount(n int64) slog.Attr           { return slog.Int64(KeyAmount, n) }
func Balance(n int64) slog.Attr          { return slog.Int64(KeyBalance, n) }
func RetryCount(n int) slog.Attr         { return slog.Int(KeyRetryCount, n) }
func Duration(d time.Duration) slog.Attr { return slog.Duration(KeyDuration, d) }

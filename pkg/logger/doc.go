// Package logger builds *slog.Logger instances for the credit ledger services and
// provides attribute constructors with stable key names.
//
// New assembles a text or JSON handler from functional options and wraps it with
// a handler that injects values pulled from context.Context on every record
// when extractors are registered.
//
//	log := logger.New(
//		logger.WithEnvironment(os.Getenv("APP_ENV"), "creditd"),
//		logger.WithContextValue("request_id", requestIDKey{}),
//	)
//	log.InfoContext(ctx, "credits deducted",
//		logger.AccountID(accountID),
//		logger.Feature("chat"),
//	)
//
// Helpers such as Error return an empty slog.Attr for nil input, so callers can
// pass them unconditionally.
package logger

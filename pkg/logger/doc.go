// Package logger builds the process slog.Logger and provides attribute helpers
// so every component logs the same keys.
//
//	log := logger.New(
//		logger.WithEnvironment("production", "membership"),
//		logger.WithContextExtractors(requestIDExtractor),
//	)
//	log.InfoContext(ctx, "event processed",
//		logger.EventID(ev.ID),
//		logger.SubscriptionID(sub.ID),
//	)
//
// Helpers return an empty slog.Attr for nil values, which handlers omit.
// Values under token, signature and secret keys are masked in the output.
package logger

// Package logger builds the structured loggers the scheduler service
// uses, on top of log/slog.
//
// Two capabilities are layered over a plain JSON handler: context
// extractors, which inject request-scoped attributes (request id, job
// id) into every record logged with that context, and optional Sentry
// fan-out for warnings and errors.
//
//	log := logger.New()
//
//	// or, with Sentry reporting when a DSN is configured:
//	log := logger.NewWithSentry(logger.SentryConfig{DSN: dsn})
//
// An empty DSN degrades gracefully to stdout-only logging, so local
// runs need no configuration.
package logger

package logger

import "log/slog"

// NewNope returns a logger that drops everything. Handy as the default
// in constructors that take an optional logger.
func NewNope() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

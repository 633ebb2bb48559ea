package logger

import (
	"log/slog"
	"os"
)

// New creates a JSON logger writing to stdout at Info level, with
// optional context extractors.
func New(extractors ...ContextExtractor) *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(newContextHandler(h, extractors...))
}

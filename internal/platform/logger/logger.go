package logger

import (
	"log/slog"
	"os"
)

// New returns a JSON slog logger tagged with the service name. Level defaults
// to info; set FREIGHTDESK_LOG_LEVEL=debug for verbose output.
func New() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("FREIGHTDESK_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("service", "freightdesk")
}

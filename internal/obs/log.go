// ABOUTME: Structured logging setup shared by the server and admin CLI
// ABOUTME: Builds a slog handler from the configured level and format

package obs

import (
	"log/slog"
	"os"
	"strings"
)

// SetupLogger installs the process-wide slog default from the configured
// level ("debug", "info", "warn", "error") and format ("text" or "json").
func SetupLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

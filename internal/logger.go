// Package internal holds the pieces shared by the efirma CLI and server:
// logging and configuration setup, passphrase loading, report formatting,
// and the certificate catalog built by scan.
package internal

import (
	"io"
	"log/slog"
	"os"
)

// ParseLogLevel converts a string log level name to a slog.Level.
// Recognized values: "debug", "info", "warning"/"warn", "error".
// Defaults to slog.LevelInfo for unrecognized values.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warning", "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		slog.Warn("unknown log level, defaulting to info", "level", level)
		return slog.LevelInfo
	}
}

// NewLogHandler returns a text handler, or a JSON handler when format is
// "json", writing to w at the given level.
func NewLogHandler(w io.Writer, level, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLogLevel(level)}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SetupLogger configures the default slog logger on stderr.
func SetupLogger(level, format string) {
	slog.SetDefault(slog.New(NewLogHandler(os.Stderr, level, format)))
}

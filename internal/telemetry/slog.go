package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// SetupLogger installs the process-wide slog default. format "json" selects
// the JSON handler; anything else logs as text. level accepts debug, info,
// warn, or error (case-insensitive) and falls back to info. Debug level also
// records source positions.
func SetupLogger(format, level string) {
	slog.SetDefault(slog.New(newLogHandler(os.Stdout, format, level)))
	slog.Info("logger configured", "format", format, "level", parseLevel(level).String())
}

func newLogHandler(w io.Writer, format, level string) slog.Handler {
	lvl := parseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

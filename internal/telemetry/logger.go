package telemetry

import (
	"io"
	"log/slog"
	"os"

	"github.com/librarease/catalog/internal/config"
)

// LogLevel reads LOG_LEVEL, defaulting to INFO.
func LogLevel() slog.Level {
	switch os.Getenv(config.ENV_KEY_LOG_LEVEL) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger returns a JSON logger on w that carries trace ids.
func NewLogger(w io.Writer) *slog.Logger {
	jsonHandler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: LogLevel(),
	})
	return slog.New(NewTraceHandler(jsonHandler))
}

package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"
)

// ParseLevel maps a config level name to a slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// SetupLogger creates a colored terminal logger and, when file is set, a JSON
// copy of every record appended to that file. "-" disables the file.
// Returns the logger and a cleanup function to close the file.
func SetupLogger(file string, level slog.Level) (*slog.Logger, func() error) {
	termHandler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	})
	if file == "" || file == "-" {
		return slog.New(termHandler), func() error { return nil }
	}

	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger := slog.New(termHandler)
		logger.Error("Failed to open log file, using stderr only", "error", err, "file", file)
		return logger, func() error { return nil }
	}

	return SetupLoggerWithWriters(os.Stderr, f, level), f.Close
}

// SetupLoggerWithWriters fans records out to a terminal writer and a JSON writer.
func SetupLoggerWithWriters(term, file io.Writer, level slog.Level) *slog.Logger {
	termHandler := tint.NewHandler(term, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
		NoColor:    term != os.Stderr,
	})
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	return slog.New(slogmulti.Fanout(termHandler, fileHandler))
}

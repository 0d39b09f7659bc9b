package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"

	"github.com/MrWong99/lorelens/internal/config"
)

// SlogLevel maps a config log level to its slog equivalent. Unknown levels
// map to info.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger: human-readable text to stderr and,
// when logFile is set, a JSON copy appended to that file. Both handlers
// read their level from level so config hot reload can change it.
//
// The returned cleanup closes the log file.
func NewLogger(stderr io.Writer, logFile string, level *slog.LevelVar) (*slog.Logger, func() error, error) {
	opts := &slog.HandlerOptions{Level: level}
	textHandler := slog.NewTextHandler(stderr, opts)
	if logFile == "" {
		return slog.New(textHandler), func() error { return nil }, nil
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return slog.New(textHandler), func() error { return nil }, fmt.Errorf("app: open log file %q: %w", logFile, err)
	}
	logger := slog.New(slogmulti.Fanout(textHandler, slog.NewJSONHandler(f, opts)))
	return logger, f.Close, nil
}

// NewLoggerWithWriters is [NewLogger] over arbitrary writers.
func NewLoggerWithWriters(stderr, file io.Writer, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	return slog.New(slogmulti.Fanout(slog.NewTextHandler(stderr, opts), slog.NewJSONHandler(file, opts)))
}

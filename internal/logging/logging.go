// Package logging configures structured JSON logging for indexmirror.
// File logging goes through a size-rotating writer so a long-running
// watch process cannot fill the disk.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Config contains logging configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string

	// FilePath receives JSON logs. Empty logs to stderr instead.
	FilePath string

	// MaxSizeMB is the rotation threshold per log file (default 10).
	MaxSizeMB int

	// MaxFiles is how many rotated files to keep (default 5).
	MaxFiles int
}

// Setup initializes logging, sets the default slog logger and returns a
// cleanup function that flushes and closes the log file.
func Setup(cfg Config) (func(), error) {
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 5
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	if cfg.FilePath == "" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, opts)))
		return func() {}, nil
	}

	writer, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(writer, opts)))

	cleanup := func() {
		_ = writer.Sync()
		_ = writer.Close()
	}
	return cleanup, nil
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

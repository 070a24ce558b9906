package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"VeilleScanner/internal/config"
)

// New creates a console slog.Logger with provided level string.
func New(level string) *slog.Logger {
	return newLogger(os.Stdout, level)
}

// NewFromConfig builds a logger honouring the optional rotating file sink.
// The returned closer flushes the file and must be called on shutdown.
func NewFromConfig(cfg config.LoggingConfig) (*slog.Logger, io.Closer) {
	if cfg.File == "" {
		return New(cfg.Level), nopCloser{}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		logger := New(cfg.Level)
		logger.Warn("log directory unavailable, using stdout", "file", cfg.File, "error", err)
		return logger, nopCloser{}
	}

	rotating := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}

	var out io.Writer = rotating
	if !cfg.FileOnly {
		out = io.MultiWriter(os.Stdout, rotating)
	}
	return newLogger(out, cfg.Level), rotating
}

func newLogger(w io.Writer, level string) *slog.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: levelFromString(level),
	})
	return slog.New(handler)
}

func levelFromString(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "error":
		return slog.LevelError
	case "warn", "warning":
		return slog.LevelWarn
	case "info":
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

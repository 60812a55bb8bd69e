package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/killallgit/chatstream/pkg/config"
	"github.com/pkg/errors"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Logger provides a unified structured logging interface. Arguments after
// the message are slog key/value pairs.
type Logger struct {
	slog   *slog.Logger
	closer io.Closer
}

var (
	mu            sync.RWMutex
	defaultLogger *Logger
	discard       = &Logger{slog: slog.New(slog.NewJSONHandler(io.Discard, nil))}
)

// Init installs the default logger from the logging configuration
func Init(cfg config.LoggingConfig) error {
	l, err := New(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to initialize logger")
	}

	mu.Lock()
	previous := defaultLogger
	defaultLogger = l
	mu.Unlock()

	slog.SetDefault(l.slog)
	if previous != nil {
		_ = previous.Close()
	}
	return nil
}

// New creates a Logger writing JSON records to a rotating file. An empty
// file name with Console set logs to stderr only.
func New(cfg config.LoggingConfig) (*Logger, error) {
	var writers []io.Writer
	var closer io.Closer

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, errors.Wrap(err, "failed to create log directory")
		}
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		writers = append(writers, rotating)
		closer = rotating
	}
	if cfg.Console {
		writers = append(writers, os.Stderr)
	}
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	return NewWithWriter(io.MultiWriter(writers...), ParseLevel(cfg.Level), closer), nil
}

// NewWithWriter builds a Logger over an arbitrary writer. closer may be nil.
func NewWithWriter(w io.Writer, level slog.Level, closer io.Closer) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return &Logger{slog: slog.New(handler), closer: closer}
}

// ParseLevel converts a string level to slog.Level
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// With returns a child logger carrying the given attributes
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...)}
}

// WithComponent tags every record with component=name
func (l *Logger) WithComponent(name string) *Logger {
	return l.With("component", name)
}

// Enabled reports whether records at level would be written
func (l *Logger) Enabled(level slog.Level) bool {
	return l.slog.Enabled(context.Background(), level)
}

func (l *Logger) Debug(msg string, args ...any) {
	l.slog.Debug(msg, args...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.slog.Info(msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.slog.Warn(msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.slog.Error(msg, args...)
}

// Close closes the log file, if any
func (l *Logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// Package-level convenience functions using the default logger

// Default returns the installed logger, or a discarding one before Init.
func Default() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	if defaultLogger == nil {
		return discard
	}
	return defaultLogger
}

// WithComponent returns a child of the default logger tagged with name.
func WithComponent(name string) *Logger {
	return Default().WithComponent(name)
}

func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}

// Close closes the default logger
func Close() error {
	mu.Lock()
	l := defaultLogger
	defaultLogger = nil
	mu.Unlock()
	if l != nil {
		return l.Close()
	}
	return nil
}

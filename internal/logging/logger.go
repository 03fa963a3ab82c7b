// Package logging wraps log/slog with the fields this service logs on every
// line.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Level represents log severity levels.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

var (
	defaultLogger *Logger
	once          sync.Once
	mu            sync.RWMutex
)

// Logger wraps slog with component scoping and a runtime-adjustable level.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

// Config holds logger configuration.
type Config struct {
	Level     Level
	Output    io.Writer
	JSON      bool
	AddSource bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// New creates a new Logger with the given configuration.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	levelVar := &slog.LevelVar{}
	levelVar.Set(cfg.Level)

	opts := &slog.HandlerOptions{
		Level:     levelVar,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = slog.NewTextHandler(cfg.Output, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
		level:  levelVar,
	}
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *Logger {
	return New(Config{Level: LevelError + 4, Output: io.Discard})
}

// ParseLevel converts a level name (debug, info, warn, error) to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Default returns the default logger, creating it if necessary.
func Default() *Logger {
	once.Do(func() {
		mu.Lock()
		if defaultLogger == nil {
			defaultLogger = New(DefaultConfig())
		}
		mu.Unlock()
	})
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// SetDefault sets the default logger.
func SetDefault(l *Logger) {
	once.Do(func() {})
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
}

// SetLevel changes the log level dynamically.
func (l *Logger) SetLevel(level Level) {
	l.level.Set(level)
}

// GetLevel returns the current log level.
func (l *Logger) GetLevel() Level {
	return l.level.Level()
}

// WithComponent returns a logger with a component field.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", name),
		level:  l.level,
	}
}

// With returns a logger with additional key/value pairs.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
		level:  l.level,
	}
}

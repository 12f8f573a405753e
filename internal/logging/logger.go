// Package logging provides the process-wide structured logger used by the
// storage engine.
//
// The logger wraps log/slog. Call Init once at program start; packages obtain
// the logger through GetLogger or one of the With helpers. When Init was never
// called, GetLogger lazily installs a WARN level text logger on stderr so the
// engine stays quiet when embedded.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Level names accepted by Config.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Config describes how the global logger writes.
type Config struct {
	Level  string
	Format string // "text" or "json"
	Output io.Writer
}

var (
	mu     sync.RWMutex
	logger *slog.Logger
)

// Init installs the global logger. It may be called again to reconfigure.
func Init(cfg Config) error {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		handler = slog.NewTextHandler(out, opts)
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		return fmt.Errorf("logging: unknown format %q", cfg.Format)
	}

	mu.Lock()
	logger = slog.New(handler)
	mu.Unlock()
	return nil
}

func parseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case LevelDebug:
		return slog.LevelDebug, nil
	case LevelInfo:
		return slog.LevelInfo, nil
	case "", LevelWarn:
		return slog.LevelWarn, nil
	case LevelError:
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("logging: unknown level %q", name)
	}
}

// GetLogger returns the global logger, creating the default one on first use.
func GetLogger() *slog.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
	return logger
}

// WithComponent returns a logger tagged with the subsystem name.
func WithComponent(component string) *slog.Logger {
	return GetLogger().With("component", component)
}

// WithTable returns a logger tagged with the table name.
func WithTable(table string) *slog.Logger {
	return GetLogger().With("table", table)
}

// WithRange returns a logger tagged with the table name and page range id.
func WithRange(table string, rangeID uint32) *slog.Logger {
	return GetLogger().With("table", table, "range", rangeID)
}

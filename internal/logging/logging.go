// Package logging builds the explicit *slog.Logger handed to every component.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	catrate "github.com/joeycumines/go-catrate"
)

// New returns a logger writing to w in the given format ("text" or "json")
// at the given level ("debug", "info", "warn", "error").
func New(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("invalid log format: %s (must be text or json)", format)
}

// ParseLevel maps a config level name onto slog
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
}

// Discard returns a logger that drops everything
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// Throttle rate-limits repeated log lines per key: at most one every ten
// seconds and three a minute.
type Throttle struct {
	limiter *catrate.Limiter
}

func NewThrottle() *Throttle {
	return &Throttle{limiter: catrate.NewLimiter(map[time.Duration]int{
		10 * time.Second: 1,
		time.Minute:      3,
	})}
}

// Allow reports whether a line for key may be logged now
func (t *Throttle) Allow(key string) bool {
	if t == nil {
		return true
	}
	_, ok := t.limiter.Allow(key)
	return ok
}

package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ParseLogLevel maps debug, info, warn and error onto slog levels.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownLogLevel, level)
	}
}

// EffectiveLogLevel is the configured level, raised to error in test mode.
func (c Config) EffectiveLogLevel() slog.Level {
	if c.TestMode {
		return slog.LevelError
	}

	level, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}

	return level
}

// NewLogHandler builds the text or JSON handler writing to w at the effective level.
func (c Config) NewLogHandler(w io.Writer) slog.Handler {
	options := &slog.HandlerOptions{Level: c.EffectiveLogLevel()}

	if c.LogFormat == LogFormatJSON {
		return slog.NewJSONHandler(w, options)
	}

	return slog.NewTextHandler(w, options)
}

// LevelFilter drops records below a minimum level before they reach the wrapped handler.
// The otelslog bridge has no level option of its own.
type LevelFilter struct {
	slog.Handler
	Min slog.Level
}

// Enabled implements slog.Handler interface.
func (f LevelFilter) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= f.Min && f.Handler.Enabled(ctx, level)
}

// WithAttrs implements slog.Handler interface.
func (f LevelFilter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return LevelFilter{Handler: f.Handler.WithAttrs(attrs), Min: f.Min}
}

// WithGroup implements slog.Handler interface.
func (f LevelFilter) WithGroup(name string) slog.Handler {
	return LevelFilter{Handler: f.Handler.WithGroup(name), Min: f.Min}
}

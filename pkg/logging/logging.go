// Package logging sets up the process-wide structured logger. Adapted from
// the teacher's pkg/logger: a colourised text handler for terminal output,
// a plain handler otherwise, level parsing from a string. The teacher's
// third-party-caller filtering is dropped, since this is a single-module
// repo with no vendored noise to filter.
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel converts a string log level to slog.Level. Unrecognised
// values fall back to warn, matching the teacher's conservative default.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// Init installs a slog.Logger as the process default, coloured when output
// is a terminal.
func Init(level slog.Level, output *os.File) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey && a.Value.String() == "WARNING" {
				return slog.String(slog.LevelKey, "WARN")
			}
			return a
		},
	}

	var handler slog.Handler = slog.NewTextHandler(output, opts)
	if isTerminal(output) {
		handler = &colorHandler{inner: handler, writer: output}
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// colorHandler adds an ANSI colour to the level field when writing to a
// terminal; it otherwise delegates formatting to the wrapped handler.
type colorHandler struct {
	inner  slog.Handler
	writer *os.File
}

func (h *colorHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *colorHandler) Handle(ctx context.Context, record slog.Record) error {
	color := levelColor(record.Level)
	record.Message = color + record.Message + "\033[0m"
	return h.inner.Handle(ctx, record)
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &colorHandler{inner: h.inner.WithAttrs(attrs), writer: h.writer}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	return &colorHandler{inner: h.inner.WithGroup(name), writer: h.writer}
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "\033[31m"
	case level >= slog.LevelWarn:
		return "\033[33m"
	case level >= slog.LevelInfo:
		return "\033[36m"
	default:
		return "\033[90m"
	}
}

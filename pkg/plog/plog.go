// Package plog provides the global structured logger for the application.
// It dispatches records by level: INFO and below go to stdout, WARNING and
// above go to stderr, so a scheduler capturing stderr only sees problems.
package plog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// LevelNotice sits between INFO and WARN. It is used for operator-relevant
// progress lines (e.g. which repository operation is about to run).
const LevelNotice = slog.Level(2)

// LevelDispatchHandler is a slog.Handler that writes log records to different
// handlers based on the record's level. INFO and below go to one handler,
// while WARNING and above go to another.
type LevelDispatchHandler struct {
	stdoutHandler slog.Handler
	stderrHandler slog.Handler
}

// Enabled checks if the level is enabled for either of the underlying handlers.
func (h *LevelDispatchHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.stdoutHandler.Enabled(ctx, level) || h.stderrHandler.Enabled(ctx, level)
}

// Handle dispatches the record to the appropriate handler.
func (h *LevelDispatchHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		return h.stderrHandler.Handle(ctx, r)
	}
	return h.stdoutHandler.Handle(ctx, r)
}

// WithAttrs returns a new LevelDispatchHandler with the given attributes added.
func (h *LevelDispatchHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LevelDispatchHandler{
		stdoutHandler: h.stdoutHandler.WithAttrs(attrs),
		stderrHandler: h.stderrHandler.WithAttrs(attrs),
	}
}

// WithGroup returns a new LevelDispatchHandler with the given group.
func (h *LevelDispatchHandler) WithGroup(name string) slog.Handler {
	return &LevelDispatchHandler{
		stdoutHandler: h.stdoutHandler.WithGroup(name),
		stderrHandler: h.stderrHandler.WithGroup(name),
	}
}

var defaultLogger atomic.Pointer[slog.Logger]

// currentLevel gates all logging calls. It is atomic so the level can be
// changed after flag/config parsing without racing background goroutines.
var currentLevel atomic.Int64

// replaceLevelNames renders the custom NOTICE level with a proper name
// instead of slog's default "INFO+2".
func replaceLevelNames(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok && level == LevelNotice {
			a.Value = slog.StringValue("NOTICE")
		}
	}
	return a
}

func newDispatchLogger() *slog.Logger {
	stdoutHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:       slog.LevelDebug,
		ReplaceAttr: replaceLevelNames,
	})
	stderrHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:       slog.LevelWarn,
		ReplaceAttr: replaceLevelNames,
	})
	return slog.New(&LevelDispatchHandler{
		stdoutHandler: stdoutHandler,
		stderrHandler: stderrHandler,
	})
}

func init() {
	currentLevel.Store(int64(slog.LevelInfo))
	defaultLogger.Store(newDispatchLogger())
}

// SetOutput allows redirecting the logger's output, primarily for testing.
// All levels are written to the provided writer.
func SetOutput(w io.Writer) {
	defaultLogger.Store(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       slog.LevelDebug,
		ReplaceAttr: replaceLevelNames,
	})))
}

// SetLevel sets the minimum level emitted by the global logger.
func SetLevel(level slog.Level) {
	currentLevel.Store(int64(level))
}

// LevelFromString maps a configuration string to a slog level. Unknown
// values fall back to INFO.
func LevelFromString(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "notice":
		return LevelNotice
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func log(level slog.Level, msg string, args ...any) {
	if level < slog.Level(currentLevel.Load()) {
		return
	}
	defaultLogger.Load().Log(context.Background(), level, msg, args...)
}

// Debug logs a debug message.
func Debug(msg string, args ...any) { log(slog.LevelDebug, msg, args...) }

// Notice logs an operator-relevant progress message.
func Notice(msg string, args ...any) { log(LevelNotice, msg, args...) }

// Info logs an informational message.
func Info(msg string, args ...any) { log(slog.LevelInfo, msg, args...) }

// Warn logs a warning message.
func Warn(msg string, args ...any) { log(slog.LevelWarn, msg, args...) }

// Error logs an error message.
func Error(msg string, args ...any) { log(slog.LevelError, msg, args...) }

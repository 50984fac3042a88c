// Package observability provides the structured logger and context
// correlation helpers shared by every subsystem: the agent executor, tool
// dispatch, the hook bus, and the MCP client all log through a Logger
// built here rather than reaching for log/slog directly.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
)

// LogConfig configures a Logger.
type LogConfig struct {
	// Level sets the minimum log level: "debug", "info", "warn", "error".
	Level string

	// Format selects "json" (default, production), "text" (development),
	// or "zerolog" (high-throughput event logging).
	Format string

	// Output is the destination writer. Defaults to os.Stdout.
	Output io.Writer

	// AddSource includes the file:line of the log call site.
	AddSource bool

	// RedactPatterns are additional regexes whose matches are replaced
	// with "[REDACTED]" before a record is written, appended to
	// DefaultRedactPatterns.
	RedactPatterns []string
}

// DefaultRedactPatterns covers the secret shapes most likely to leak into
// a log line: API keys, bearer tokens, and generic secret=value pairs.
var DefaultRedactPatterns = []string{
	`(?i)(api[_-]?key|apikey)[\s:=]+["']?([a-zA-Z0-9_\-]{16,})["']?`,
	`(?i)(bearer|token)[\s:]+([a-zA-Z0-9_\-\.]{16,})`,
	`(?i)(secret|password|passwd|pwd)[\s:=]+["']?([^\s"']{8,})["']?`,
	`sk-ant-[a-zA-Z0-9_-]{95,}`,
	`sk-[a-zA-Z0-9]{48,}`,
	`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`,
}

// Logger wraps slog.Logger with correlation-ID propagation (run, session,
// tool-call) read from context and best-effort secret redaction.
type Logger struct {
	base    *slog.Logger
	redacts []*regexp.Regexp
}

// NewLogger builds a Logger from config, applying defaults for any field
// left zero.
func NewLogger(cfg LogConfig) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}

	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}
	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(cfg.Output, handlerOpts)
	case "zerolog":
		handler = newZerologHandler(cfg.Output, level)
	default:
		handler = slog.NewJSONHandler(cfg.Output, handlerOpts)
	}

	patterns := append(append([]string{}, DefaultRedactPatterns...), cfg.RedactPatterns...)
	redacts := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if re, err := regexp.Compile(p); err == nil {
			redacts = append(redacts, re)
		}
	}

	return &Logger{base: slog.New(handler), redacts: redacts}
}

// Slog returns the underlying *slog.Logger enriched with correlation IDs
// pulled from ctx, for callers that want slog's native With/context API.
func (l *Logger) Slog(ctx context.Context) *slog.Logger {
	logger := l.base
	if id := GetRunID(ctx); id != "" {
		logger = logger.With("run_id", id)
	}
	if id := GetSessionID(ctx); id != "" {
		logger = logger.With("session_id", id)
	}
	if id := GetToolCallID(ctx); id != "" {
		logger = logger.With("tool_call_id", id)
	}
	return logger
}

func (l *Logger) redact(msg string) string {
	for _, re := range l.redacts {
		msg = re.ReplaceAllString(msg, "[REDACTED]")
	}
	return msg
}

func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.Slog(ctx).Debug(l.redact(msg), args...)
}

func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.Slog(ctx).Info(l.redact(msg), args...)
}

func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.Slog(ctx).Warn(l.redact(msg), args...)
}

func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.Slog(ctx).Error(l.redact(msg), args...)
}

// Default returns a Logger over slog.Default(), for call sites that run
// before a configured Logger is available (e.g. package init).
func Default() *Logger {
	return &Logger{base: slog.Default()}
}

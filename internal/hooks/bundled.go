package hooks

import (
	"context"
	"log/slog"
	"strings"
)

// sensitiveArgKeys are argument names whose values the audit handler
// replaces before logging.
var sensitiveArgKeys = []string{"api_key", "apikey", "token", "password", "secret", "authorization"}

// RegisterBundled installs the default in-process handlers every
// runtime ships with. They register at PriorityHighest through the same
// API user handlers use; nothing special-cases them afterwards.
func RegisterBundled(r *Registry, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	audit := logger.With("component", "audit")

	r.Register("tool:post_execute", func(ctx context.Context, p *Payload) error {
		audit.Info("tool executed",
			"tool", p.ToolName,
			"tool_call_id", p.ToolCallID,
			"session_id", p.SessionID,
			"args", redactArgs(p.Args),
		)
		return nil
	}, WithPriority(PriorityHighest), WithName("bundled-tool-audit"), WithSource("bundled"))

	r.Register("tool:error", func(ctx context.Context, p *Payload) error {
		audit.Warn("tool failed",
			"tool", p.ToolName,
			"tool_call_id", p.ToolCallID,
			"error", p.Err,
		)
		return nil
	}, WithPriority(PriorityHighest), WithName("bundled-tool-error-audit"), WithSource("bundled"))

	r.Register("permission:denied", func(ctx context.Context, p *Payload) error {
		audit.Info("permission denied", "tool", p.ToolName, "data", p.Data)
		return nil
	}, WithPriority(PriorityHighest), WithName("bundled-permission-audit"), WithSource("bundled"))

	r.Register("session:start,session:end", func(ctx context.Context, p *Payload) error {
		audit.Info("session "+string(p.Event), "session_id", p.SessionID)
		return nil
	}, WithPriority(PriorityHighest), WithName("bundled-session-audit"), WithSource("bundled"))
}

// redactArgs shallow-copies args with known-sensitive keys masked.
func redactArgs(args map[string]any) map[string]any {
	if len(args) == 0 {
		return args
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
		lower := strings.ToLower(k)
		for _, sensitive := range sensitiveArgKeys {
			if strings.Contains(lower, sensitive) {
				out[k] = "[REDACTED]"
				break
			}
		}
	}
	return out
}

package observability

import "context"

// ContextKey is the type for context keys this package defines, kept
// unexported-type-safe so callers can't collide with plain string keys.
type ContextKey string

const (
	RunIDKey      ContextKey = "run_id"
	SessionIDKey  ContextKey = "session_id"
	ToolCallIDKey ContextKey = "tool_call_id"
	AgentIDKey    ContextKey = "agent_id"
)

// AddRunID attaches a run ID (one agent-loop iteration) to ctx.
func AddRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RunIDKey, id)
}

// GetRunID retrieves the run ID, or "" if none was set.
func GetRunID(ctx context.Context) string { return stringValue(ctx, RunIDKey) }

// AddSessionID attaches a session ID to ctx.
func AddSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SessionIDKey, id)
}

// GetSessionID retrieves the session ID, or "" if none was set.
func GetSessionID(ctx context.Context) string { return stringValue(ctx, SessionIDKey) }

// AddToolCallID attaches the tool-call ID currently being dispatched.
func AddToolCallID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ToolCallIDKey, id)
}

// GetToolCallID retrieves the tool-call ID, or "" if none was set.
func GetToolCallID(ctx context.Context) string { return stringValue(ctx, ToolCallIDKey) }

// AddAgentID attaches the owning agent's task ID to ctx.
func AddAgentID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, AgentIDKey, id)
}

// GetAgentID retrieves the agent task ID, or "" if none was set.
func GetAgentID(ctx context.Context) string { return stringValue(ctx, AgentIDKey) }

func stringValue(ctx context.Context, key ContextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// Package models holds the wire and persistence types shared across the
// agent executor, context engine, tool dispatch, hook bus, and MCP client.
package models

import (
	"encoding/json"
	"time"
)

// Role indicates the author of a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType distinguishes the kind of content carried by a ContentPart.
type PartType string

const (
	PartText   PartType = "text"
	PartImage  PartType = "image_url"
	PartBinary PartType = "binary_ref"
)

// ContentPart is one piece of a possibly multi-part message body.
type ContentPart struct {
	Type PartType `json:"type"`
	Text string   `json:"text,omitempty"`
	// URL carries an image URL for PartImage.
	URL string `json:"url,omitempty"`
	// Ref carries an opaque binary reference (e.g. a blob store key) for PartBinary.
	Ref      string `json:"ref,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// ToolCall is the LLM's request to invoke a tool. ID is opaque and assigned
// by the provider; it correlates the eventual ToolResult.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is the outcome of executing a ToolCall, destined to become a
// tool-role message appended to the conversation.
type ToolResult struct {
	ToolCallID string   `json:"tool_call_id"`
	Content    string   `json:"content"`
	IsError    bool     `json:"is_error,omitempty"`
	Metadata   JSONMap  `json:"metadata,omitempty"`
}

// Message is one immutable, role-tagged turn in a conversation. Once
// appended to a conversation it is never mutated; corrections are new
// messages.
type Message struct {
	Role        Role          `json:"role"`
	Content     string        `json:"content,omitempty"`
	Parts       []ContentPart `json:"parts,omitempty"`
	ToolCalls   []ToolCall    `json:"tool_calls,omitempty"`
	ToolCallID  string        `json:"tool_call_id,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// JSONMap is a free-form metadata bag that marshals predictably.
type JSONMap map[string]any

// AgentLifecycleState is the monotonic state of an AgentTask.
type AgentLifecycleState string

const (
	StatePending   AgentLifecycleState = "pending"
	StateRunning   AgentLifecycleState = "running"
	StateCompleted AgentLifecycleState = "completed"
	StateFailed    AgentLifecycleState = "failed"
	StateCancelled AgentLifecycleState = "cancelled"
	StateTimedOut  AgentLifecycleState = "timed_out"
)

// AgentType is a named preset of prompt template + defaults.
type AgentType string

const (
	AgentExplore     AgentType = "explore"
	AgentPlan        AgentType = "plan"
	AgentCodeReview  AgentType = "code_review"
	AgentGeneral     AgentType = "general"
	AgentUserDefined AgentType = "user_defined"
)

// AgentConfiguration bounds one agent run.
type AgentConfiguration struct {
	TokenLimit     int           `json:"token_limit,omitempty"`
	TimeLimit      time.Duration `json:"time_limit,omitempty"`
	ToolAllowList  []string      `json:"tool_allow_list,omitempty"`
	PreferredModel string        `json:"preferred_model,omitempty"`
	MaxIterations  int           `json:"max_iterations,omitempty"`
	InheritContext bool          `json:"inherit_context,omitempty"`
	PromptAddition string        `json:"prompt_addition,omitempty"`
}

// ContextSnapshot is the inherited state a nested agent starts from.
type ContextSnapshot struct {
	Messages   []Message      `json:"messages,omitempty"`
	WorkingDir string         `json:"working_dir,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	Metadata   JSONMap        `json:"metadata,omitempty"`
}

// AgentTask describes one bounded unit of work for the executor.
type AgentTask struct {
	TaskID        string              `json:"task_id"`
	ParentID      string              `json:"parent_id,omitempty"`
	AgentType     AgentType           `json:"agent_type"`
	Configuration AgentConfiguration  `json:"configuration"`
	Context       ContextSnapshot     `json:"context"`
	Prompt        string              `json:"prompt"`

	state AgentLifecycleState
}

// State returns the task's current lifecycle state.
func (t *AgentTask) State() AgentLifecycleState {
	if t.state == "" {
		return StatePending
	}
	return t.state
}

// Transition moves the task to a new state. Transitions are monotonic:
// pending -> running -> one terminal state. Invalid transitions are no-ops
// that return false.
func (t *AgentTask) Transition(next AgentLifecycleState) bool {
	cur := t.State()
	switch cur {
	case StatePending:
		if next == StateRunning || isTerminal(next) {
			t.state = next
			return true
		}
	case StateRunning:
		if isTerminal(next) {
			t.state = next
			return true
		}
	}
	return false
}

func isTerminal(s AgentLifecycleState) bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled, StateTimedOut:
		return true
	}
	return false
}

// AgentResult is the terminal outcome of an agent run, serialisable to and
// from a plain map via ToMap/FromMap.
type AgentResult struct {
	Success       bool          `json:"success"`
	Output        string        `json:"output"`
	Data          any           `json:"data,omitempty"`
	Error         string        `json:"error,omitempty"`
	TokensUsed    int           `json:"tokens_used"`
	WallTime      time.Duration `json:"wall_time_seconds"`
	ToolCallCount int           `json:"tool_call_count"`
	Metadata      JSONMap       `json:"metadata,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

// ToMap serialises the result to a plain map with the wire-contract
// keys: success, output, data, error, tokens_used, time_seconds,
// tool_calls, metadata, timestamp (ISO-8601).
func (r *AgentResult) ToMap() map[string]any {
	m := map[string]any{
		"success":     r.Success,
		"output":      r.Output,
		"error":       r.Error,
		"tokens_used": r.TokensUsed,
		"time_seconds": r.WallTime.Seconds(),
		"tool_calls":  r.ToolCallCount,
		"timestamp":   r.Timestamp.Truncate(time.Second).UTC().Format(time.RFC3339),
	}
	m["data"] = stringifyUnknown(r.Data)
	if r.Metadata != nil {
		m["metadata"] = map[string]any(r.Metadata)
	} else {
		m["metadata"] = map[string]any{}
	}
	return m
}

// stringifyUnknown converts values that don't survive a JSON round trip
// (e.g. arbitrary structs) into their JSON representation so ToMap/FromMap
// stays lossless for the types the wire contract carries (maps,
// slices, scalars).
func stringifyUnknown(v any) any {
	switch v.(type) {
	case nil, bool, string, float64, int, int64, map[string]any, []any:
		return v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return json.RawMessage(nil)
		}
		var out any
		if err := json.Unmarshal(raw, &out); err != nil {
			return string(raw)
		}
		return out
	}
}

// AgentResultFromMap reconstructs an AgentResult from the map produced by
// ToMap, the inverse direction of the round-trip contract.
func AgentResultFromMap(m map[string]any) *AgentResult {
	r := &AgentResult{}
	if v, ok := m["success"].(bool); ok {
		r.Success = v
	}
	if v, ok := m["output"].(string); ok {
		r.Output = v
	}
	if v, ok := m["error"].(string); ok {
		r.Error = v
	}
	if v, ok := m["tokens_used"].(int); ok {
		r.TokensUsed = v
	} else if v, ok := m["tokens_used"].(float64); ok {
		r.TokensUsed = int(v)
	}
	if v, ok := m["time_seconds"].(float64); ok {
		r.WallTime = time.Duration(v * float64(time.Second))
	}
	if v, ok := m["tool_calls"].(int); ok {
		r.ToolCallCount = v
	} else if v, ok := m["tool_calls"].(float64); ok {
		r.ToolCallCount = int(v)
	}
	if v, ok := m["metadata"].(map[string]any); ok {
		r.Metadata = JSONMap(v)
	}
	r.Data = m["data"]
	if ts, ok := m["timestamp"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			r.Timestamp = parsed
		}
	}
	return r
}

// Package tools implements the tool registry and dispatch pipeline:
// resolve name, validate arguments against a JSON Schema, consult the
// permission engine, run pre/post-execute hooks, and invoke the tool
// itself within an agent-level time budget.
package tools

import (
	"context"
	"encoding/json"

	"github.com/corefield/agentcore/pkg/models"
)

// Tool parameter limits to prevent resource exhaustion.
const (
	// MaxToolNameLength is the maximum length of a tool name.
	MaxToolNameLength = 256

	// MaxToolArgsSize is the maximum size of tool arguments JSON (10MB).
	MaxToolArgsSize = 10 << 20
)

// ExecutionContext carries the per-call environment a Tool runs under:
// the working directory, an environment overlay merged on top of the
// process environment, and the identifiers of the call. Cancellation is
// carried by the context.Context passed alongside it.
type ExecutionContext struct {
	WorkingDir string
	Env        map[string]string

	// SessionID, ToolCallID identify the call; Dispatch copies SessionID
	// into the pre- and post-execute hook payloads.
	SessionID  string
	ToolCallID string
}

// Tool is one callable operation exposed to the agent executor. Built-in
// tools and MCP-backed tools (wrapped by an adapter) both implement it.
type Tool interface {
	Definition() models.ToolDefinition
	Invoke(ctx context.Context, execCtx ExecutionContext, args json.RawMessage) (*Result, error)
}

// Result is what a Tool returns on success or on a handled failure. A
// handled failure (IsError true) is still a successful dispatch from the
// pipeline's point of view; only an error return represents the dispatch
// itself failing (unknown tool, invalid args, permission denied, veto).
type Result struct {
	Output   string         `json:"output"`
	IsError  bool           `json:"is_error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Outcome is the fully-classified result of one Dispatch call, carrying
// the error kind the executor needs to decide whether to retry, surface
// to the LLM as a tool_result, or abort the run.
type Outcome struct {
	Result *Result
	Kind   models.ErrorKind
	Err    error
}

// Success builds a terminal, successful Outcome.
func Success(result *Result) Outcome {
	return Outcome{Result: result}
}

// Failure builds a terminal, failed Outcome carrying the error kind the
// executor and the conversation transcript both need.
func Failure(kind models.ErrorKind, err error) Outcome {
	return Outcome{Kind: kind, Err: err}
}

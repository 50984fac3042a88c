// Package agent implements the executor that drives one LLM<->tool
// iteration loop per task: it assembles the conversation, calls the
// configured provider, dispatches any requested tool calls through the
// permission and hook pipeline, and returns a terminal AgentResult.
package agent

import (
	"context"

	"github.com/corefield/agentcore/pkg/models"
)

// LLMProvider is the interface every LLM backend implements.
//
// Implementations must be safe for concurrent use; multiple agent loops
// may call Complete simultaneously. The returned channel is closed by
// the provider once the stream finishes (successfully or not); a
// terminal error is delivered as a chunk with Error set.
type LLMProvider interface {
	// Complete sends a request and returns a streaming response.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)

	// Name returns the provider name ("anthropic", "openai", "bedrock").
	Name() string

	// Models returns the models this provider can serve.
	Models() []Model

	// SupportsTools reports whether the provider supports tool use.
	SupportsTools() bool
}

// CompletionRequest carries one full request to an LLM provider: system
// prompt, conversation history, bound tool definitions, and generation
// limits.
type CompletionRequest struct {
	// Model selects the model; empty uses the provider default.
	Model string `json:"model"`

	// System is the system prompt, handled separately from messages by
	// most provider APIs.
	System string `json:"system,omitempty"`

	// Messages is the conversation history in chronological order.
	Messages []CompletionMessage `json:"messages"`

	// Tools are the callable tool definitions bound to this request.
	Tools []models.ToolDefinition `json:"tools,omitempty"`

	// MaxTokens bounds the response length; 0 uses the provider default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature, when non-nil, overrides the provider default.
	Temperature *float32 `json:"temperature,omitempty"`
}

// CompletionMessage is one turn as seen by a provider adapter. Role is
// "system", "user", "assistant", or "tool".
type CompletionMessage struct {
	Role        string              `json:"role"`
	Content     string              `json:"content,omitempty"`
	ToolCalls   []models.ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []models.ToolResult `json:"tool_results,omitempty"`
}

// CompletionChunk is one element of a provider's streaming response.
// Text chunks stream incrementally; a ToolCall chunk carries one fully
// assembled call (adapters accumulate partial tool_call fragments keyed
// by block index before emitting, never falling back to a second
// non-streaming request). Token usage arrives on the final Done chunk.
type CompletionChunk struct {
	Text     string           `json:"text,omitempty"`
	ToolCall *models.ToolCall `json:"tool_call,omitempty"`
	Done     bool             `json:"done,omitempty"`
	Error    error            `json:"-"`

	// InputTokens/OutputTokens are populated on the Done chunk when the
	// provider reports usage; both zero means the provider omitted it
	// and the executor falls back to its counter's estimate.
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
}

// Model describes one servable model.
type Model struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContextSize int    `json:"context_size"`
}

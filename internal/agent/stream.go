package agent

import (
	"context"

	"github.com/corefield/agentcore/internal/tools"
	"github.com/corefield/agentcore/pkg/models"
)

// EventKind enumerates the streaming event types a UI consumes.
type EventKind string

const (
	EventLLMStart      EventKind = "llm_start"
	EventLLMChunk      EventKind = "llm_chunk"
	EventLLMEnd        EventKind = "llm_end"
	EventToolStart     EventKind = "tool_start"
	EventToolEnd       EventKind = "tool_end"
	EventAgentEnd      EventKind = "agent_end"
	EventErrorOccurred EventKind = "error"
)

// Event is one element of the stream produced by Executor.Stream. The
// contract: the concatenation of llm_chunk Text equals the assistant
// message eventually appended for that turn; tool_end always follows
// the matching tool_start; agent_end is the last event on success.
type Event struct {
	Kind      EventKind
	Iteration int
	Text      string
	ToolCall  *models.ToolCall
	Outcome   *tools.Outcome
	Result    *models.AgentResult
	Err       error
}

// Stream runs the same loop as Execute but yields lifecycle events as
// they happen. The channel is closed after the terminal event.
func (e *Executor) Stream(ctx context.Context, task *models.AgentTask, cancel *CancelToken) <-chan Event {
	events := make(chan Event, 64)
	go func() {
		defer close(events)
		e.run(ctx, task, cancel, func(ev Event) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		})
	}()
	return events
}

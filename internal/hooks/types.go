// Package hooks implements the event bus that lets subprocess hooks and
// in-process plugin handlers observe and veto agent activity: tool
// calls, LLM turns, session lifecycle, permission decisions, and user
// interaction.
package hooks

import (
	"context"
	"time"
)

// Category groups events by the subsystem that emits them.
type Category string

const (
	CategoryTool       Category = "tool"
	CategoryLLM        Category = "llm"
	CategorySession    Category = "session"
	CategoryPermission Category = "permission"
	CategoryUser       Category = "user"
)

// Event identifies the specific occurrence within a category, e.g.
// "pre_execute" or "post_execute" under CategoryTool.
type Event string

const (
	// CategoryTool events.
	EventPreExecute  Event = "pre_execute"
	EventPostExecute Event = "post_execute"
	EventError       Event = "error"

	// CategoryLLM events.
	EventPreRequest   Event = "pre_request"
	EventPostResponse Event = "post_response"
	EventStreamStart  Event = "stream_start"
	EventStreamEnd    Event = "stream_end"

	// CategorySession events.
	EventStart   Event = "start"
	EventEnd     Event = "end"
	EventMessage Event = "message"

	// CategoryPermission events.
	EventCheck   Event = "check"
	EventPrompt  Event = "prompt"
	EventGranted Event = "granted"
	EventDenied  Event = "denied"

	// CategoryUser events.
	EventPromptSubmit Event = "prompt_submit"
	EventInterrupt    Event = "interrupt"
)

// Key is the colon-joined "<category>:<event>[:<detail>]" identifier
// used both for dispatch lookups and for hook registration patterns.
type Key string

// NewKey builds a dispatch key from its parts. Detail is optional; an
// empty detail yields a two-segment key.
func NewKey(cat Category, ev Event, detail string) Key {
	if detail == "" {
		return Key(string(cat) + ":" + string(ev))
	}
	return Key(string(cat) + ":" + string(ev) + ":" + detail)
}

// Payload carries the data associated with a single event occurrence.
// Not every field is populated for every event; consumers key off
// Category/Event to know which fields to expect.
type Payload struct {
	Category   Category
	Event      Event
	Detail     string
	Timestamp  time.Time
	SessionID  string
	ToolName   string
	ToolCallID string
	Args       map[string]any
	Result     string
	Err        error
	Data       map[string]any
}

// Key returns the dispatch key for this payload.
func (p *Payload) Key() Key {
	return NewKey(p.Category, p.Event, p.Detail)
}

// Handler is an in-process hook callback. Returning a non-nil error from
// a handler registered against a pre_execute key vetoes the action;
// errors from any other key are logged but do not block dispatch.
type Handler func(ctx context.Context, p *Payload) error

// Priority orders handler execution; lower runs earlier. Mirrors the
// five-tier scheme used elsewhere in this codebase for hook ordering.
type Priority int

const (
	PriorityHighest Priority = 0
	PriorityHigh    Priority = 25
	PriorityNormal  Priority = 50
	PriorityLow     Priority = 75
	PriorityLowest  Priority = 100
)

// Registration is one registered in-process handler.
type Registration struct {
	ID       string
	Pattern  string
	Handler  Handler
	Priority Priority
	Name     string
	Source   string
}

// Outcome summarizes what happened when an event was dispatched:
// whether any pre_execute handler vetoed it and why.
type Outcome struct {
	Vetoed bool
	Reason string
	Errs   []error
}

package context

// Message is the context engine's view of a conversation turn: just enough
// to count, truncate, and compact, decoupled from the richer
// pkg/models.Message so this package has no dependency on the agent
// executor's wire format.
type Message struct {
	Role    string
	Content string

	// ToolCallID is set for tool-role messages so tool-result compaction
	// can target them specifically.
	ToolCallID string

	// Pinned messages are never dropped by truncation.
	Pinned bool

	// Preserve marks a message that selective truncation should favor
	// keeping even though its role isn't in the preserve-role set.
	Preserve bool
}

// IsSystem reports whether the message is a system message.
func (m Message) IsSystem() bool { return m.Role == "system" }

// FromModelMessages adapts a generic role/content slice (e.g. derived from
// pkg/models.Message) into the context engine's Message type.
func FromModelMessages(roles, contents []string) []Message {
	n := len(roles)
	if len(contents) < n {
		n = len(contents)
	}
	out := make([]Message, n)
	for i := 0; i < n; i++ {
		out[i] = Message{Role: roles[i], Content: contents[i]}
	}
	return out
}

package context

import (
	"context"
	"strings"
)

// Summarizer produces a natural-language summary of a span of messages.
// Implementations typically call an LLM; the agent executor supplies one
// backed by its configured provider.
type Summarizer interface {
	Summarize(ctx context.Context, messages []Message) (string, error)
}

// CompactionConfig controls how Compact partitions a message list.
type CompactionConfig struct {
	// PreserveLast is the number of most recent messages kept verbatim as
	// the tail, never sent to the summarizer.
	PreserveLast int
}

// Compact replaces the middle span of messages (after any leading system
// messages, before the last PreserveLast messages) with a single synthetic
// "[Previous conversation summary]" message. If the resulting list would
// still exceed budget, or the summarizer fails, Compact returns the
// original messages unchanged — compaction must never make things worse.
func Compact(ctx context.Context, messages []Message, budget int, counter Counter, summarizer Summarizer, cfg CompactionConfig) []Message {
	if counter.CountMessages(messages) <= budget {
		return messages
	}
	preserveLast := cfg.PreserveLast
	if preserveLast <= 0 {
		preserveLast = 4
	}

	prefixEnd := 0
	for prefixEnd < len(messages) && messages[prefixEnd].IsSystem() {
		prefixEnd++
	}

	tailStart := len(messages) - preserveLast
	if tailStart < prefixEnd {
		// Not enough history to compact meaningfully.
		return messages
	}

	prefix := messages[:prefixEnd]
	middle := messages[prefixEnd:tailStart]
	tail := messages[tailStart:]

	if len(middle) == 0 || summarizer == nil {
		return messages
	}

	summary, err := summarizer.Summarize(ctx, middle)
	if err != nil || strings.TrimSpace(summary) == "" {
		return messages
	}

	summaryMsg := Message{Role: "user", Content: "[Previous conversation summary] " + summary}

	result := make([]Message, 0, len(prefix)+1+len(tail))
	result = append(result, prefix...)
	result = append(result, summaryMsg)
	result = append(result, tail...)

	remaining := budget - counter.CountMessages(append(append([]Message{}, prefix...), tail...))
	if counter.Count(summaryMsg.Content)+overheadPerMessage > remaining {
		return messages
	}

	return result
}

// ToolResultCap bounds an individual tool message's content. Content over
// the cap is truncated, preferring to break at a whitespace or newline
// boundary, and a marker reporting the approximate number of tokens
// removed is appended.
type ToolResultCap struct {
	MaxTokens int
}

// CompactToolResult truncates content if it exceeds the cap; non-tool
// messages (ToolCallID == "") are passed through unchanged.
func (c ToolResultCap) CompactToolResult(msg Message, counter Counter) Message {
	if msg.ToolCallID == "" {
		return msg
	}
	tokens := counter.Count(msg.Content)
	if tokens <= c.MaxTokens {
		return msg
	}

	// Approximate the character budget for MaxTokens using the same
	// chars-per-token ratio the approximate counter uses, then walk back
	// to a whitespace boundary.
	approxChars := int(float64(c.MaxTokens) / defaultCharsPerToken)
	if approxChars <= 0 || approxChars >= len(msg.Content) {
		approxChars = len(msg.Content) / 2
	}

	cut := approxChars
	for cut > 0 && cut < len(msg.Content) {
		r := msg.Content[cut-1]
		if r == ' ' || r == '\n' || r == '\t' {
			break
		}
		cut--
	}
	if cut <= 0 {
		cut = approxChars
	}
	if cut > len(msg.Content) {
		cut = len(msg.Content)
	}

	truncated := msg.Content[:cut]
	removed := tokens - counter.Count(truncated)
	if removed < 0 {
		removed = 0
	}

	out := msg
	out.Content = truncated + "\n[truncated: " + itoa(removed) + " tokens removed]"
	return out
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

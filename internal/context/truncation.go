package context

import "fmt"

// Strategy reduces a message list to fit within a token budget without
// consulting an LLM. All strategies preserve the relative order of
// surviving messages.
type Strategy interface {
	Truncate(messages []Message, budget int, counter Counter) []Message
}

// SlidingWindow keeps only the last N messages, optionally always keeping
// leading system messages.
type SlidingWindow struct {
	KeepLast      int
	KeepSystem    bool
}

// Truncate implements Strategy.
func (s SlidingWindow) Truncate(messages []Message, budget int, counter Counter) []Message {
	if len(messages) <= s.KeepLast {
		return messages
	}
	var out []Message
	if s.KeepSystem {
		for _, m := range messages {
			if m.IsSystem() {
				out = append(out, m)
			} else {
				break
			}
		}
	}
	tailStart := len(messages) - s.KeepLast
	tail := messages[tailStart:]
	out = append(out, dropDuplicatesOfPrefix(len(out), tailStart, tail)...)
	return out
}

// dropDuplicatesOfPrefix avoids double-counting system messages that are
// both in the always-kept prefix (the first prefixLen messages) and within
// the tail window starting at index tailStart.
func dropDuplicatesOfPrefix(prefixLen, tailStart int, tail []Message) []Message {
	if tailStart >= prefixLen {
		return tail
	}
	return tail[minInt(prefixLen-tailStart, len(tail)):]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// TokenBudget drops the oldest non-system messages until the total fits
// within budget. If the system messages alone exceed budget, only the
// system messages are returned.
type TokenBudget struct{}

// Truncate implements Strategy.
func (TokenBudget) Truncate(messages []Message, budget int, counter Counter) []Message {
	sysOnly := make([]Message, 0)
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.IsSystem() {
			sysOnly = append(sysOnly, m)
		} else {
			rest = append(rest, m)
		}
	}

	sysTokens := counter.CountMessages(sysOnly)
	if sysTokens >= budget {
		return sysOnly
	}

	// Drop oldest of `rest` until everything fits.
	for len(rest) > 0 {
		combined := append(append([]Message{}, sysOnly...), rest...)
		if counter.CountMessages(combined) <= budget {
			break
		}
		rest = rest[1:]
	}

	return append(append([]Message{}, sysOnly...), rest...)
}

// SmartTruncation keeps the first P and last Q messages, replacing the
// omitted middle with a synthetic marker. If still over budget, it
// further shrinks the tail.
type SmartTruncation struct {
	KeepFirst int
	KeepLast  int
}

// Truncate implements Strategy.
func (s SmartTruncation) Truncate(messages []Message, budget int, counter Counter) []Message {
	if counter.CountMessages(messages) <= budget {
		return messages
	}
	if len(messages) <= s.KeepFirst+s.KeepLast {
		return messages
	}

	first := messages[:s.KeepFirst]
	last := messages[len(messages)-s.KeepLast:]
	omitted := len(messages) - s.KeepFirst - s.KeepLast

	marker := Message{Role: "system", Content: fmt.Sprintf("[%d messages omitted]", omitted)}

	out := make([]Message, 0, s.KeepFirst+1+s.KeepLast)
	out = append(out, first...)
	out = append(out, marker)
	out = append(out, last...)

	for counter.CountMessages(out) > budget && len(last) > 0 {
		last = last[1:]
		out = out[:0]
		out = append(out, first...)
		out = append(out, marker)
		out = append(out, last...)
	}

	return out
}

// Selective keeps messages whose role is in preserveRoles or which carry
// Message.Preserve, then fills from the most recent remaining messages
// until the budget is exhausted.
type Selective struct {
	PreserveRoles map[string]bool
}

// Truncate implements Strategy.
func (s Selective) Truncate(messages []Message, budget int, counter Counter) []Message {
	var kept []Message
	var candidates []Message
	for _, m := range messages {
		if m.Pinned || m.Preserve || s.PreserveRoles[m.Role] {
			kept = append(kept, m)
		} else {
			candidates = append(candidates, m)
		}
	}

	used := counter.CountMessages(kept)
	var fill []Message
	for i := len(candidates) - 1; i >= 0; i-- {
		c := candidates[i]
		t := counter.Count(c.Content) + overheadPerMessage
		if used+t > budget {
			break
		}
		used += t
		fill = append([]Message{c}, fill...)
	}

	return mergeInOriginalOrder(messages, kept, fill)
}

// mergeInOriginalOrder reconstructs surviving-message order from the
// original message list, given the sets that survived (by identity via
// index matching isn't reliable with value types, so we match by pointer
// equality on slice backing via direct membership scan, acceptable here
// since message lists are short relative to a single context window).
func mergeInOriginalOrder(original, kept, fill []Message) []Message {
	survive := make(map[int]bool, len(kept)+len(fill))
	keptSet := toSet(kept)
	fillSet := toSet(fill)
	out := make([]Message, 0, len(kept)+len(fill))
	for i, m := range original {
		if keptSet[msgKey(m)] || fillSet[msgKey(m)] {
			survive[i] = true
			out = append(out, m)
		}
	}
	return out
}

func msgKey(m Message) string {
	return m.Role + "\x00" + m.Content + "\x00" + m.ToolCallID
}

func toSet(ms []Message) map[string]bool {
	s := make(map[string]bool, len(ms))
	for _, m := range ms {
		s[msgKey(m)] = true
	}
	return s
}

// Composite applies strategies in order, stopping as soon as the result
// fits within budget.
type Composite struct {
	Strategies []Strategy
}

// Truncate implements Strategy.
func (c Composite) Truncate(messages []Message, budget int, counter Counter) []Message {
	cur := messages
	if counter.CountMessages(cur) <= budget {
		return cur
	}
	for _, s := range c.Strategies {
		cur = s.Truncate(cur, budget, counter)
		if counter.CountMessages(cur) <= budget {
			return cur
		}
	}
	return cur
}

package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msgs(n int) []Message {
	out := make([]Message, 0, n+1)
	out = append(out, Message{Role: "system", Content: "you are a helpful assistant"})
	for i := 0; i < n; i++ {
		out = append(out, Message{Role: "user", Content: "message number filler text here"})
	}
	return out
}

func TestTokenBudgetZero(t *testing.T) {
	counter := NewApproximateCounter()
	result := TokenBudget{}.Truncate(msgs(10), 0, counter)
	require.Len(t, result, 1)
	assert.True(t, result[0].IsSystem())
}

func TestTokenBudgetNoSystemAndZeroBudget(t *testing.T) {
	counter := NewApproximateCounter()
	messages := []Message{{Role: "user", Content: "hi"}}
	result := TokenBudget{}.Truncate(messages, 0, counter)
	assert.Empty(t, result)
}

func TestTokenBudgetFitsUnderBudgetUnchanged(t *testing.T) {
	counter := NewApproximateCounter()
	messages := msgs(2)
	budget := counter.CountMessages(messages) + 100
	result := TokenBudget{}.Truncate(messages, budget, counter)
	assert.Equal(t, messages, result)
}

func TestSmartTruncationInsertsMarker(t *testing.T) {
	counter := NewApproximateCounter()
	messages := msgs(50)
	strat := SmartTruncation{KeepFirst: 1, KeepLast: 4}
	result := strat.Truncate(messages, 40, counter)
	require.GreaterOrEqual(t, len(result), 2)
	found := false
	for _, m := range result {
		if m.Role == "system" && len(m.Content) > 0 && m.Content[0] == '[' {
			found = true
		}
	}
	assert.True(t, found, "expected an omission marker message")
}

func TestSelectivePreservesPinned(t *testing.T) {
	counter := NewApproximateCounter()
	messages := []Message{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "pinned one", Pinned: true},
		{Role: "user", Content: "filler filler filler filler filler"},
		{Role: "assistant", Content: "recent reply"},
	}
	strat := Selective{PreserveRoles: map[string]bool{"system": true}}
	result := strat.Truncate(messages, 6, counter)

	var gotPinned bool
	for _, m := range result {
		if m.Content == "pinned one" {
			gotPinned = true
		}
	}
	assert.True(t, gotPinned, "pinned message must survive selective truncation")
}

func TestCompositeStopsEarly(t *testing.T) {
	counter := NewApproximateCounter()
	messages := msgs(5)
	budget := counter.CountMessages(messages) + 10
	comp := Composite{Strategies: []Strategy{
		SlidingWindow{KeepLast: 2, KeepSystem: true},
		TokenBudget{},
	}}
	result := comp.Truncate(messages, budget, counter)
	assert.Equal(t, messages, result)
}

func TestTruncationPreservesRelativeOrder(t *testing.T) {
	counter := NewApproximateCounter()
	messages := msgs(20)
	result := TokenBudget{}.Truncate(messages, 30, counter)

	lastSeenIdx := -1
	for _, r := range result {
		idx := indexOf(messages, r)
		require.GreaterOrEqual(t, idx, 0)
		assert.Greater(t, idx, lastSeenIdx)
		lastSeenIdx = idx
	}
}

func indexOf(messages []Message, target Message) int {
	for i, m := range messages {
		if m == target {
			return i
		}
	}
	return -1
}

type fakeSummarizer struct {
	summary string
	err     error
}

func (f fakeSummarizer) Summarize(ctx context.Context, messages []Message) (string, error) {
	return f.summary, f.err
}

func TestCompactReturnsOriginalWhenSummaryTooBig(t *testing.T) {
	counter := NewApproximateCounter()
	messages := msgs(30)
	big := ""
	for i := 0; i < 500; i++ {
		big += "lots and lots of summary words here "
	}
	result := Compact(context.Background(), messages, 20, counter, fakeSummarizer{summary: big}, CompactionConfig{PreserveLast: 4})
	assert.Equal(t, messages, result)
}

func TestCompactReturnsOriginalOnSummarizerFailure(t *testing.T) {
	counter := NewApproximateCounter()
	messages := msgs(30)
	result := Compact(context.Background(), messages, 40, counter, fakeSummarizer{err: assertErr{}}, CompactionConfig{PreserveLast: 4})
	assert.Equal(t, messages, result)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestToolResultCapTruncatesAtWhitespace(t *testing.T) {
	counter := NewApproximateCounter()
	content := ""
	for i := 0; i < 200; i++ {
		content += "word "
	}
	msg := Message{Role: "tool", ToolCallID: "tc_1", Content: content}
	cap := ToolResultCap{MaxTokens: 10}
	result := cap.CompactToolResult(msg, counter)
	assert.Contains(t, result.Content, "[truncated:")
	assert.Contains(t, result.Content, "tokens removed]")
}

func TestToolResultCapPassesNonToolMessages(t *testing.T) {
	counter := NewApproximateCounter()
	msg := Message{Role: "assistant", Content: "just a normal reply"}
	cap := ToolResultCap{MaxTokens: 1}
	result := cap.CompactToolResult(msg, counter)
	assert.Equal(t, msg, result)
}

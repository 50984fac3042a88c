package context

import (
	"fmt"
	"strings"
)

// Default token-budget thresholds.
const (
	DefaultContextWindow = 128000
	MinContextWindow     = 16000
	WarnBelowTokens       = 32000
)

// ModelContextWindows maps model-name prefixes to their context window
// size in tokens. Longest matching prefix wins.
var ModelContextWindows = map[string]int{
	"claude-3-opus":     200000,
	"claude-3-5-sonnet": 200000,
	"claude-3-5-haiku":  200000,
	"claude-opus-4":     200000,
	"claude-sonnet-4":   200000,

	"gpt-4o":        128000,
	"gpt-4-turbo":   128000,
	"gpt-4-32k":     32768,
	"gpt-4":         8192,
	"gpt-3.5-turbo": 16385,
	"o1":            200000,
	"o3-mini":       200000,

	"gemini-1.5-pro":   2097152,
	"gemini-1.5-flash": 1048576,
	"gemini-2.0-flash": 1048576,
}

// ContextWindowFor returns the context window size for modelID, falling
// back to DefaultContextWindow when the model isn't recognized.
func ContextWindowFor(modelID string) int {
	best := ""
	bestTokens := 0
	for prefix, tokens := range ModelContextWindows {
		if strings.HasPrefix(modelID, prefix) && len(prefix) > len(best) {
			best = prefix
			bestTokens = tokens
		}
	}
	if best != "" {
		return bestTokens
	}
	return DefaultContextWindow
}

// Window tracks used-vs-total tokens for one active agent run.
type Window struct {
	total int
	used  int
}

// NewWindow creates a window with the given total token budget.
func NewWindow(total int) *Window {
	if total <= 0 {
		total = DefaultContextWindow
	}
	return &Window{total: total}
}

// Add records additional tokens consumed.
func (w *Window) Add(tokens int) { w.used += tokens }

// Reset zeroes the used count.
func (w *Window) Reset() { w.used = 0 }

// Remaining returns the tokens left in the budget (never negative).
func (w *Window) Remaining() int {
	r := w.total - w.used
	if r < 0 {
		return 0
	}
	return r
}

// CanFit reports whether tokens more would still fit in the budget.
func (w *Window) CanFit(tokens int) bool { return w.Remaining() >= tokens }

// ShouldWarn reports whether remaining tokens have dropped below the warn
// threshold.
func (w *Window) ShouldWarn() bool { return w.Remaining() < WarnBelowTokens }

// ShouldBlock reports whether remaining tokens are too low to continue
// safely.
func (w *Window) ShouldBlock() bool { return w.Remaining() < MinContextWindow }

// Info is a point-in-time snapshot of window usage.
type Info struct {
	Total, Used, Remaining int
	UsedPercent            float64
}

// Info returns a snapshot of the window's current state.
func (w *Window) Info() Info {
	remaining := w.Remaining()
	var pct float64
	if w.total > 0 {
		pct = float64(w.used) / float64(w.total) * 100
	}
	return Info{Total: w.total, Used: w.used, Remaining: remaining, UsedPercent: pct}
}

// String renders a human-readable summary, e.g. "12000/128000 tokens (9.4% used)".
func (i Info) String() string {
	return fmt.Sprintf("%d/%d tokens (%.1f%% used)", i.Used, i.Total, i.UsedPercent)
}

package policy

import "sort"

// Engine evaluates tool calls against an ordered rule set, falling back to
// a default level when no rule matches.
type Engine struct {
	rules   []Rule
	parsed  map[int][]clause // indexed by rule position in rules
	Default Level
}

// NewEngine builds an engine over rules with the given default level
// (LevelAsk out of the box).
func NewEngine(rules []Rule, defaultLevel Level) (*Engine, error) {
	if defaultLevel == "" {
		defaultLevel = LevelAsk
	}
	e := &Engine{rules: append([]Rule(nil), rules...), Default: defaultLevel, parsed: map[int][]clause{}}
	for i, r := range e.rules {
		clauses, err := parsePattern(r.Pattern)
		if err != nil {
			return nil, err
		}
		e.parsed[i] = clauses
	}
	return e, nil
}

// candidate is a matching rule plus its precomputed ordering keys.
type candidate struct {
	rule        *Rule
	specificity int
}

// Evaluate resolves a tool call against the rule set:
//  1. Skip disabled rules.
//  2. Compute specificity for each matching rule.
//  3. Collect every matching rule; if none match, return the default.
//  4. Pick the highest (priority, specificity); ties broken toward the
//     more restrictive level.
func (e *Engine) Evaluate(call ToolCall) Decision {
	var candidates []candidate
	for i := range e.rules {
		r := &e.rules[i]
		if !r.Enabled {
			continue
		}
		clauses := e.parsed[i]
		if !matchesClauses(clauses, call) {
			continue
		}
		candidates = append(candidates, candidate{rule: r, specificity: specificity(clauses)})
	}

	if len(candidates) == 0 {
		return Decision{Level: e.Default, Reason: "no matching rule; using default"}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.rule.Priority != b.rule.Priority {
			return a.rule.Priority > b.rule.Priority
		}
		if a.specificity != b.specificity {
			return a.specificity > b.specificity
		}
		return restrictiveness[a.rule.Level] > restrictiveness[b.rule.Level]
	})

	best := candidates[0]
	level := best.rule.Level
	// Break remaining ties (equal priority+specificity) toward the more
	// restrictive level across *all* tied candidates, not just the first
	// two in sort order.
	for _, c := range candidates[1:] {
		if c.rule.Priority == best.rule.Priority && c.specificity == best.specificity {
			level = moreRestrictive(level, c.rule.Level)
		} else {
			break
		}
	}

	reason := best.rule.Description
	if reason == "" {
		reason = "matched rule: " + best.rule.Pattern
	}
	return Decision{Level: level, MatchedRule: best.rule, Reason: reason}
}

// Rules returns a copy of the engine's current rule set.
func (e *Engine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

package policy

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ToolCall is the minimal view of a tool invocation the engine needs to
// evaluate rules against.
type ToolCall struct {
	Name     string
	Category Category
	Args     map[string]any
}

// clause is one AND-ed piece of a rule pattern: "tool:<glob>",
// "arg:<key>[:<value-pattern>]", or "category:<name>".
type clause struct {
	kind  string // "tool", "arg", "category"
	key   string // arg key, when kind == "arg"
	value string // glob, regex source (leading ^ included), or literal
	regex bool
}

// parsePattern splits a comma-joined pattern into its AND-ed clauses. A
// bare glob with no "kind:" prefix is shorthand for "tool:<glob>".
func parsePattern(pattern string) ([]clause, error) {
	parts := strings.Split(pattern, ",")
	clauses := make([]clause, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		c, err := parseClause(part)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, c)
	}
	if len(clauses) == 0 {
		return nil, fmt.Errorf("empty pattern")
	}
	return clauses, nil
}

func parseClause(part string) (clause, error) {
	switch {
	case strings.HasPrefix(part, "tool:"):
		return clause{kind: "tool", value: strings.TrimPrefix(part, "tool:")}, nil
	case strings.HasPrefix(part, "category:"):
		return clause{kind: "category", value: strings.TrimPrefix(part, "category:")}, nil
	case strings.HasPrefix(part, "arg:"):
		rest := strings.TrimPrefix(part, "arg:")
		segs := strings.SplitN(rest, ":", 2)
		c := clause{kind: "arg", key: segs[0]}
		if len(segs) == 2 {
			v := segs[1]
			if strings.HasPrefix(v, "^") {
				c.regex = true
				c.value = v // keep the leading ^ as part of the regex source
			} else {
				c.value = v
			}
		} else {
			c.value = "*"
		}
		return c, nil
	default:
		// Bare glob is shorthand for tool:<glob>.
		return clause{kind: "tool", value: part}, nil
	}
}

// matches reports whether call satisfies every clause in clauses.
func matchesClauses(clauses []clause, call ToolCall) bool {
	for _, c := range clauses {
		if !matchesClause(c, call) {
			return false
		}
	}
	return true
}

func matchesClause(c clause, call ToolCall) bool {
	switch c.kind {
	case "tool":
		ok, _ := doublestar.Match(c.value, call.Name)
		return ok
	case "category":
		return strings.EqualFold(c.value, string(call.Category))
	case "arg":
		raw, present := call.Args[c.key]
		if !present {
			return false
		}
		str := stringifyArg(raw)
		if c.regex {
			re, err := regexp.Compile(c.value)
			if err != nil {
				// Invalid regex is a non-match, not an error.
				return false
			}
			return re.MatchString(str)
		}
		// Argument values are free text, not paths: take '/' out of play
		// so '*' in the glob also spans slashes.
		ok, _ := doublestar.Match(strings.ReplaceAll(c.value, "/", "\x00"), strings.ReplaceAll(str, "/", "\x00"))
		return ok
	}
	return false
}

func stringifyArg(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// specificity orders matching rules: exact > glob >
// category; each extra arg clause adds weight.
func specificity(clauses []clause) int {
	score := 0
	for _, c := range clauses {
		switch c.kind {
		case "tool":
			if isExactGlob(c.value) {
				score += 30
			} else {
				score += 20
			}
		case "category":
			score += 10
		case "arg":
			score += 5
		}
	}
	return score
}

func isExactGlob(s string) bool {
	return !strings.ContainsAny(s, "*?[]{}")
}

package hooks

import "strings"

// matchKey reports whether a registration pattern matches a dispatch
// key. A pattern is a comma-separated list of alternatives; each
// alternative is a colon-separated "<category>:<event>[:<detail>]"
// template where any segment may be "*" to match anything, and a
// missing trailing segment also matches anything for that position.
func matchKey(pattern string, key Key) bool {
	for _, alt := range strings.Split(pattern, ",") {
		alt = strings.TrimSpace(alt)
		if alt == "" {
			continue
		}
		if matchAlternative(alt, string(key)) {
			return true
		}
	}
	return false
}

func matchAlternative(pattern, key string) bool {
	pSegs := strings.Split(pattern, ":")
	kSegs := strings.Split(key, ":")
	if len(pSegs) > len(kSegs) {
		return false
	}
	for i, p := range pSegs {
		if p == "*" {
			continue
		}
		if p != kSegs[i] {
			return false
		}
	}
	// Extra key segments beyond the pattern's length are fine: a
	// two-segment pattern "tool:pre_execute" matches a three-segment
	// key "tool:pre_execute:bash".
	return true
}

package policy

// Profile is a named convenience preset that compiles down to ordinary
// rules at load time: profiles do not run a second resolution path,
// they just expand into rules before the engine ever evaluates a call.
type Profile string

const (
	ProfileMinimal   Profile = "minimal"
	ProfileCoding    Profile = "coding"
	ProfileMessaging Profile = "messaging"
	ProfileFull      Profile = "full"
)

// groups are named bundles of tool-name globs, referenced from a
// profile's allow list as "group:<name>".
var groups = map[string][]string{
	"group:fs":        {"read", "write", "edit", "exec"},
	"group:web":       {"web_search", "web_fetch"},
	"group:runtime":   {"execute_code"},
	"group:messaging": {"send_message"},
	"group:vcs":       {"git_status"},
}

// profileAllow lists the tool-name globs a profile allows by default.
// ProfileFull has an empty allow list: everything is permitted unless a
// separate deny rule says otherwise.
var profileAllow = map[Profile][]string{
	ProfileMinimal:   {"status"},
	ProfileCoding:    {"group:fs", "group:runtime", "group:web", "group:vcs"},
	ProfileMessaging: {"group:messaging", "status"},
	ProfileFull:      {},
}

// expandGroup resolves a "group:<name>" reference to its member tool
// globs, or returns the input unchanged if it isn't a group reference.
func expandGroup(name string) []string {
	if tools, ok := groups[name]; ok {
		return tools
	}
	return []string{name}
}

// CompileProfile expands a named profile into concrete rules. The
// generated rules carry a low priority (0) so that explicit user rules
// (which should be given priority > 0) always take precedence.
func CompileProfile(p Profile) []Rule {
	allow := profileAllow[p]
	rules := make([]Rule, 0, len(allow)+1)
	for _, entry := range allow {
		for _, tool := range expandGroup(entry) {
			rules = append(rules, Rule{
				Pattern:     "tool:" + tool,
				Level:       LevelAllow,
				Priority:    0,
				Enabled:     true,
				Description: "profile " + string(p) + " default",
			})
		}
	}
	if p == ProfileFull {
		rules = append(rules, Rule{
			Pattern:     "tool:*",
			Level:       LevelAllow,
			Priority:    0,
			Enabled:     true,
			Description: "profile full default",
		})
	}
	return rules
}

// NewEngineForProfile builds an engine whose base rules come from
// expanding the given profile, with extra rules (e.g. user overrides,
// category-scoped rules) appended after. Rule order plays no part in
// evaluation: an extra rule with priority above 0 outranks every profile
// rule.
func NewEngineForProfile(p Profile, extra []Rule, defaultLevel Level) (*Engine, error) {
	rules := append(CompileProfile(p), extra...)
	return NewEngine(rules, defaultLevel)
}

package policy

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "permissions.json")
	original := []Rule{
		{Pattern: "tool:bash,arg:command:*rm*", Level: LevelDeny, Priority: 100, Enabled: true, Description: "no destructive shell"},
		{Pattern: "category:file", Level: LevelAllow, Priority: 1, Enabled: true},
		{Pattern: "tool:web_*", Level: LevelAsk, Priority: 10, Enabled: false},
	}

	require.NoError(t, SaveRulesFile(path, original, LevelAsk))
	rules, level, err := LoadRulesFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, rules)
	assert.Equal(t, LevelAsk, level)
}

func TestLoadRulesMergesTiers(t *testing.T) {
	dir := t.TempDir()
	global := filepath.Join(dir, "global.json")
	project := filepath.Join(dir, "project.json")
	require.NoError(t, SaveRulesFile(global, []Rule{{Pattern: "tool:a", Level: LevelAllow, Enabled: true}}, LevelAsk))
	require.NoError(t, SaveRulesFile(project, []Rule{{Pattern: "tool:b", Level: LevelDeny, Enabled: true}}, LevelDeny))

	rules, level, err := LoadRules(global, "", project, "/nonexistent.json")
	require.NoError(t, err)
	assert.Len(t, rules, 2)
	// The highest-precedence non-empty default wins.
	assert.Equal(t, LevelDeny, level)
}

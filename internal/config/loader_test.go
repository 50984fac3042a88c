package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaultsOnly(t *testing.T) {
	cfg, err := Load(Sources{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Providers.Default)
	assert.Equal(t, "ask", cfg.Permissions.DefaultLevel)
	assert.Equal(t, 50, cfg.Agent.MaxIterations)
}

func TestLoadPrecedenceOrder(t *testing.T) {
	dir := t.TempDir()
	user := writeFile(t, dir, "user.yaml", "agent:\n  default_model: from-user\n  max_iterations: 5\n")
	project := writeFile(t, dir, "project.yaml", "agent:\n  default_model: from-project\n")

	cfg, err := Load(Sources{UserHome: user, Project: project}, nil)
	require.NoError(t, err)

	// Project overrides user for the contested leaf...
	assert.Equal(t, "from-project", cfg.Agent.DefaultModel)
	// ...while the user-only leaf survives the deep merge.
	assert.Equal(t, 5, cfg.Agent.MaxIterations)
}

func TestLoadMissingFilesAreSkipped(t *testing.T) {
	cfg, err := Load(Sources{Project: "/nonexistent/config.yaml"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Providers.Default)
}

func TestLoadJSONFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json", `{"logging": {"level": "debug"}}`)

	cfg, err := Load(Sources{Project: path}, nil)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestEnvOverlayNesting(t *testing.T) {
	cfg, err := Load(Sources{}, []string{
		"RUNTIME_AGENT__TOKEN_LIMIT=500",
		"RUNTIME_LOGGING__FORMAT=text",
		"RUNTIME_PROVIDERS__DEFAULT=openai",
		"UNRELATED=ignored",
	})
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Agent.TokenLimit)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "openai", cfg.Providers.Default)
}

func TestEnvOverlayWinsOverFiles(t *testing.T) {
	dir := t.TempDir()
	project := writeFile(t, dir, "p.yaml", "logging:\n  level: warn\n")

	cfg, err := Load(Sources{Project: project}, []string{"RUNTIME_LOGGING__LEVEL=error"})
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestCoerceScalar(t *testing.T) {
	assert.Equal(t, true, coerceScalar("true"))
	assert.Equal(t, int64(42), coerceScalar("42"))
	assert.Equal(t, 1.5, coerceScalar("1.5"))
	assert.Equal(t, "plain", coerceScalar("plain"))
}

func TestDurationFieldsSurviveMerge(t *testing.T) {
	cfg, err := Load(Sources{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.Agent.IterationTimeout)
}

package hooks

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHookFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hooks.json")
	original := []SubprocessHook{
		{
			Pattern:     "tool:pre_execute:*",
			Command:     "/usr/local/bin/guard",
			Args:        []string{"--strict"},
			Timeout:     5 * time.Second,
			WorkDir:     "/tmp",
			Env:         map[string]string{"MODE": "audit"},
			Enabled:     true,
			Name:        "guard",
			Description: "vets every tool call",
		},
		{Pattern: "session:end", Command: "notify", Timeout: time.Second, Enabled: false},
	}

	require.NoError(t, SaveFile(path, original))
	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, loaded)
}

func TestLoadFileMissingIsEmpty(t *testing.T) {
	loaded, err := LoadFile("/nonexistent/hooks.json")
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestLoadFileClampsTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hooks.json")
	require.NoError(t, SaveFile(path, []SubprocessHook{
		{Pattern: "*", Command: "x", Timeout: time.Hour, Enabled: true},
		{Pattern: "*", Command: "y", Timeout: time.Millisecond, Enabled: true},
	}))
	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 300*time.Second, loaded[0].Timeout)
	assert.Equal(t, 100*time.Millisecond, loaded[1].Timeout)
}

func TestClampTimeoutBounds(t *testing.T) {
	assert.Equal(t, 10*time.Second, ClampTimeout(0))
	assert.Equal(t, 100*time.Millisecond, ClampTimeout(time.Millisecond))
	assert.Equal(t, 300*time.Second, ClampTimeout(time.Hour))
	assert.Equal(t, 2*time.Second, ClampTimeout(2*time.Second))
}

package builtin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corefield/agentcore/internal/tools"
)

func execCtx(dir string) tools.ExecutionContext {
	return tools.ExecutionContext{WorkingDir: dir}
}

func mustArgs(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestReadWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()

	res, err := WriteTool{}.Invoke(context.Background(), execCtx(dir), mustArgs(t, map[string]any{
		"path": "sub/notes.txt", "content": "hello there",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, res.Output)

	res, err = ReadTool{}.Invoke(context.Background(), execCtx(dir), mustArgs(t, map[string]any{"path": "sub/notes.txt"}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Equal(t, "hello there", res.Output)
}

func TestReadRejectsEscape(t *testing.T) {
	dir := t.TempDir()
	res, err := ReadTool{}.Invoke(context.Background(), execCtx(dir), mustArgs(t, map[string]any{"path": "../../etc/passwd"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Output, "outside the workspace")
}

func TestResolverRejectsSymlinkEscape(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret"), []byte("x"), 0o644))
	require.NoError(t, os.Symlink(outside, filepath.Join(dir, "link")))

	_, err := Resolver{Root: dir}.Resolve("link/secret")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside the workspace")
}

func TestEditRequiresUniqueMatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte("aaa bbb aaa"), 0o644))

	res, err := EditTool{}.Invoke(context.Background(), execCtx(dir), mustArgs(t, map[string]any{
		"path": "f.txt", "old_string": "aaa", "new_string": "ccc",
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Output, "appears 2 times")

	res, err = EditTool{}.Invoke(context.Background(), execCtx(dir), mustArgs(t, map[string]any{
		"path": "f.txt", "old_string": "aaa", "new_string": "ccc", "replace_all": true,
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	data, err := os.ReadFile(filepath.Join(dir, "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "ccc bbb ccc", string(data))
}

func TestEditMissingString(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte("content"), 0o644))

	res, err := EditTool{}.Invoke(context.Background(), execCtx(dir), mustArgs(t, map[string]any{
		"path": "f.txt", "old_string": "nope", "new_string": "x",
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Output, "not found")
}

func TestExecToolCapturesExitCode(t *testing.T) {
	res, err := ExecTool{}.Invoke(context.Background(), execCtx(t.TempDir()), mustArgs(t, map[string]any{"command": "echo out; exit 2"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Output, "exit 2")
	assert.Contains(t, res.Output, "out")
	assert.Equal(t, 2, res.Metadata["exit_code"])
}

func TestExecToolSuccess(t *testing.T) {
	res, err := ExecTool{}.Invoke(context.Background(), execCtx(t.TempDir()), mustArgs(t, map[string]any{"command": "printf hello"}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Equal(t, "hello", res.Output)
}

func TestWebFetchBlocksPrivateHosts(t *testing.T) {
	tool := NewWebFetchTool(nil)
	for _, target := range []string{"http://127.0.0.1/", "http://localhost:8080/x", "http://192.168.1.1/", "http://169.254.169.254/latest/meta-data"} {
		res, err := tool.Invoke(context.Background(), tools.ExecutionContext{}, mustArgs(t, map[string]any{"url": target}))
		require.NoError(t, err, target)
		assert.True(t, res.IsError, target)
		assert.Contains(t, res.Output, "not allowed", target)
	}
}

func TestWebFetchAllowlistBypassesGuard(t *testing.T) {
	tool := NewWebFetchTool([]string{"localhost"})
	assert.False(t, tool.isPrivateHost("localhost"))
	assert.True(t, tool.isPrivateHost("localhost2.local"))
}

func TestWebFetchRejectsNonHTTPSchemes(t *testing.T) {
	tool := NewWebFetchTool(nil)
	res, err := tool.Invoke(context.Background(), tools.ExecutionContext{}, mustArgs(t, map[string]any{"url": "file:///etc/passwd"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

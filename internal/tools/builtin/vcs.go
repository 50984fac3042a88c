package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/corefield/agentcore/internal/tools"
	"github.com/corefield/agentcore/pkg/models"
)

// GitStatusTool reports working-tree state via `git status
// --porcelain`. Broader git operations go through the exec tool; this
// one exists so read-only status checks don't need shell confirmation.
type GitStatusTool struct{}

func (GitStatusTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "git_status",
		Description: "Show the git working-tree status of the workspace in porcelain format.",
		Category:    models.CategoryVCS,
		ParameterSchema: models.JSONSchema{
			"type":       "object",
			"properties": map[string]any{},
		},
	}
}

func (GitStatusTool) Invoke(ctx context.Context, execCtx tools.ExecutionContext, args json.RawMessage) (*tools.Result, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "git", "status", "--porcelain", "--branch")
	if execCtx.WorkingDir != "" {
		cmd.Dir = execCtx.WorkingDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return &tools.Result{
			Output:  fmt.Sprintf("git status failed: %v\n%s", err, stderr.String()),
			IsError: true,
		}, nil
	}

	out := stdout.String()
	if out == "" {
		out = "(clean working tree)"
	}
	return &tools.Result{Output: out}, nil
}

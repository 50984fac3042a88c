package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/corefield/agentcore/internal/shell"
	"github.com/corefield/agentcore/internal/tools"
	"github.com/corefield/agentcore/pkg/models"
)

const (
	defaultExecTimeout = 60 * time.Second
	maxExecOutputChars = 100_000
)

// ExecTool runs a command synchronously via /bin/sh -c, capturing both
// streams and cutting the returned output at maxExecOutputChars. Background execution goes through the
// shell manager tools instead.
type ExecTool struct{}

func (ExecTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "exec",
		Description: "Run a shell command synchronously and return its combined output. Use shell_create for long-running commands.",
		Category:    models.CategoryShell,
		ParameterSchema: models.JSONSchema{
			"type": "object",
			"properties": map[string]any{
				"command":         map[string]any{"type": "string", "description": "Command line passed to /bin/sh -c"},
				"timeout_seconds": map[string]any{"type": "integer", "description": "Kill the command after this many seconds (default 60)"},
			},
			"required": []any{"command"},
		},
		RequiresConfirmation: true,
	}
}

func (ExecTool) Invoke(ctx context.Context, execCtx tools.ExecutionContext, args json.RawMessage) (*tools.Result, error) {
	var in struct {
		Command        string `json:"command"`
		TimeoutSeconds int    `json:"timeout_seconds"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("decode args: %w", err)
	}
	if strings.TrimSpace(in.Command) == "" {
		return &tools.Result{Output: "command is empty", IsError: true}, nil
	}

	timeout := defaultExecTimeout
	if in.TimeoutSeconds > 0 {
		timeout = time.Duration(in.TimeoutSeconds) * time.Second
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "/bin/sh", "-c", in.Command)
	if execCtx.WorkingDir != "" {
		cmd.Dir = execCtx.WorkingDir
	}
	if len(execCtx.Env) > 0 {
		merged := os.Environ()
		for k, v := range execCtx.Env {
			merged = append(merged, k+"="+v)
		}
		cmd.Env = merged
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	out := stdout.String()
	if errText := stderr.String(); errText != "" {
		out += "\n[stderr]\n" + errText
	}
	if len(out) > maxExecOutputChars {
		out = out[:maxExecOutputChars] + "\n[output truncated]"
	}

	meta := map[string]any{"command": in.Command}
	if runErr != nil {
		if cmdCtx.Err() == context.DeadlineExceeded {
			return &tools.Result{Output: fmt.Sprintf("command timed out after %s\n%s", timeout, out), IsError: true, Metadata: meta}, nil
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			meta["exit_code"] = exitErr.ExitCode()
			return &tools.Result{Output: fmt.Sprintf("exit %d\n%s", exitErr.ExitCode(), out), IsError: true, Metadata: meta}, nil
		}
		return nil, runErr
	}
	meta["exit_code"] = 0
	return &tools.Result{Output: out, Metadata: meta}, nil
}

// ShellCreateTool starts a background shell through the shell manager
// and returns its id.
type ShellCreateTool struct {
	Manager *shell.Manager
}

func (t ShellCreateTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "shell_create",
		Description: "Start a command in a background shell. Returns a shell_id for shell_output/shell_wait/shell_kill.",
		Category:    models.CategoryShell,
		ParameterSchema: models.JSONSchema{
			"type": "object",
			"properties": map[string]any{
				"command": map[string]any{"type": "string", "description": "Command line passed to /bin/sh -c"},
			},
			"required": []any{"command"},
		},
		RequiresConfirmation: true,
	}
}

func (t ShellCreateTool) Invoke(ctx context.Context, execCtx tools.ExecutionContext, args json.RawMessage) (*tools.Result, error) {
	var in struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("decode args: %w", err)
	}
	if strings.TrimSpace(in.Command) == "" {
		return &tools.Result{Output: "command is empty", IsError: true}, nil
	}

	session, err := t.Manager.Create(ctx, in.Command, execCtx.WorkingDir, execCtx.Env)
	if err != nil {
		return &tools.Result{Output: err.Error(), IsError: true}, nil
	}
	return &tools.Result{
		Output:   fmt.Sprintf("started shell %s (pid %d)", session.ID, session.PID),
		Metadata: map[string]any{"shell_id": session.ID, "pid": session.PID},
	}, nil
}

// ShellOutputTool reads output appended since the previous read.
type ShellOutputTool struct {
	Manager *shell.Manager
}

func (t ShellOutputTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "shell_output",
		Description: "Read new output from a background shell since the last read.",
		Category:    models.CategoryShell,
		ParameterSchema: models.JSONSchema{
			"type": "object",
			"properties": map[string]any{
				"shell_id":       map[string]any{"type": "string", "description": "Id returned by shell_create"},
				"include_stderr": map[string]any{"type": "boolean", "description": "Also return stderr output"},
			},
			"required": []any{"shell_id"},
		},
	}
}

func (t ShellOutputTool) Invoke(ctx context.Context, execCtx tools.ExecutionContext, args json.RawMessage) (*tools.Result, error) {
	var in struct {
		ShellID       string `json:"shell_id"`
		IncludeStderr bool   `json:"include_stderr"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("decode args: %w", err)
	}

	stdout, stderr, err := t.Manager.ReadOutput(in.ShellID, in.IncludeStderr)
	if err != nil {
		return &tools.Result{Output: err.Error(), IsError: true}, nil
	}
	out := stdout
	if in.IncludeStderr && stderr != "" {
		out += "\n[stderr]\n" + stderr
	}
	if out == "" {
		out = "(no new output)"
	}
	return &tools.Result{Output: out}, nil
}

// ShellWaitTool blocks until a background shell exits.
type ShellWaitTool struct {
	Manager *shell.Manager
}

func (t ShellWaitTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "shell_wait",
		Description: "Wait for a background shell to exit and return its status and remaining output.",
		Category:    models.CategoryShell,
		ParameterSchema: models.JSONSchema{
			"type": "object",
			"properties": map[string]any{
				"shell_id":        map[string]any{"type": "string", "description": "Id returned by shell_create"},
				"timeout_seconds": map[string]any{"type": "integer", "description": "Give up after this many seconds (default: wait forever)"},
			},
			"required": []any{"shell_id"},
		},
	}
}

func (t ShellWaitTool) Invoke(ctx context.Context, execCtx tools.ExecutionContext, args json.RawMessage) (*tools.Result, error) {
	var in struct {
		ShellID        string `json:"shell_id"`
		TimeoutSeconds int    `json:"timeout_seconds"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("decode args: %w", err)
	}

	var timeout time.Duration
	if in.TimeoutSeconds > 0 {
		timeout = time.Duration(in.TimeoutSeconds) * time.Second
	}
	fin, err := t.Manager.Wait(ctx, in.ShellID, timeout)
	if err != nil {
		return &tools.Result{Output: err.Error(), IsError: true}, nil
	}

	exitCode := -1
	if fin.ExitCode != nil {
		exitCode = *fin.ExitCode
	}
	return &tools.Result{
		Output:   fmt.Sprintf("shell %s finished: status=%s exit=%d\n%s", fin.ID, fin.Status, exitCode, fin.Tail),
		Metadata: map[string]any{"status": string(fin.Status), "exit_code": exitCode},
	}, nil
}

// ShellKillTool terminates a background shell.
type ShellKillTool struct {
	Manager *shell.Manager
}

func (t ShellKillTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "shell_kill",
		Description: "Terminate a background shell. Sends SIGTERM by default, SIGKILL when force is set.",
		Category:    models.CategoryShell,
		ParameterSchema: models.JSONSchema{
			"type": "object",
			"properties": map[string]any{
				"shell_id": map[string]any{"type": "string", "description": "Id returned by shell_create"},
				"force":    map[string]any{"type": "boolean", "description": "Use SIGKILL instead of SIGTERM"},
			},
			"required": []any{"shell_id"},
		},
	}
}

func (t ShellKillTool) Invoke(ctx context.Context, execCtx tools.ExecutionContext, args json.RawMessage) (*tools.Result, error) {
	var in struct {
		ShellID string `json:"shell_id"`
		Force   bool   `json:"force"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("decode args: %w", err)
	}

	var killErr error
	if in.Force {
		killErr = t.Manager.Kill(in.ShellID)
	} else {
		killErr = t.Manager.Terminate(in.ShellID)
	}
	if killErr != nil {
		return &tools.Result{Output: killErr.Error(), IsError: true}, nil
	}
	return &tools.Result{Output: fmt.Sprintf("signalled shell %s", in.ShellID)}, nil
}

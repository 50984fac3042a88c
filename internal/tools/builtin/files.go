package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/corefield/agentcore/internal/tools"
	"github.com/corefield/agentcore/pkg/models"
)

// maxReadBytes bounds how much of a file the read tool returns.
const maxReadBytes = 512 * 1024

// ReadTool reads a file from the workspace.
type ReadTool struct{}

func (ReadTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "read",
		Description: "Read a file from the workspace. Returns up to 512KiB of content.",
		Category:    models.CategoryFile,
		ParameterSchema: models.JSONSchema{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string", "description": "File path, relative to the workspace root"},
			},
			"required": []any{"path"},
		},
	}
}

func (ReadTool) Invoke(ctx context.Context, execCtx tools.ExecutionContext, args json.RawMessage) (*tools.Result, error) {
	var in struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("decode args: %w", err)
	}
	path, err := Resolver{Root: execCtx.WorkingDir}.Resolve(in.Path)
	if err != nil {
		return &tools.Result{Output: err.Error(), IsError: true}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return &tools.Result{Output: fmt.Sprintf("read %s: %v", in.Path, err), IsError: true}, nil
	}
	truncated := false
	if len(data) > maxReadBytes {
		data = data[:maxReadBytes]
		truncated = true
	}
	out := string(data)
	if truncated {
		out += "\n[content truncated]"
	}
	return &tools.Result{Output: out, Metadata: map[string]any{"bytes": len(data), "truncated": truncated}}, nil
}

// WriteTool writes (creates or replaces) a file in the workspace.
type WriteTool struct{}

func (WriteTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "write",
		Description: "Write content to a file in the workspace, creating parent directories as needed.",
		Category:    models.CategoryFile,
		ParameterSchema: models.JSONSchema{
			"type": "object",
			"properties": map[string]any{
				"path":    map[string]any{"type": "string", "description": "File path, relative to the workspace root"},
				"content": map[string]any{"type": "string", "description": "Full file content to write"},
			},
			"required": []any{"path", "content"},
		},
		RequiresConfirmation: true,
	}
}

func (WriteTool) Invoke(ctx context.Context, execCtx tools.ExecutionContext, args json.RawMessage) (*tools.Result, error) {
	var in struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("decode args: %w", err)
	}
	path, err := Resolver{Root: execCtx.WorkingDir}.Resolve(in.Path)
	if err != nil {
		return &tools.Result{Output: err.Error(), IsError: true}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &tools.Result{Output: fmt.Sprintf("mkdir for %s: %v", in.Path, err), IsError: true}, nil
	}
	if err := os.WriteFile(path, []byte(in.Content), 0o644); err != nil {
		return &tools.Result{Output: fmt.Sprintf("write %s: %v", in.Path, err), IsError: true}, nil
	}
	return &tools.Result{Output: fmt.Sprintf("wrote %d bytes to %s", len(in.Content), in.Path)}, nil
}

// EditTool performs an exact string replacement within a file.
type EditTool struct{}

func (EditTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "edit",
		Description: "Replace an exact string in a file. The old string must appear exactly once unless replace_all is set.",
		Category:    models.CategoryFile,
		ParameterSchema: models.JSONSchema{
			"type": "object",
			"properties": map[string]any{
				"path":        map[string]any{"type": "string", "description": "File path, relative to the workspace root"},
				"old_string":  map[string]any{"type": "string", "description": "Exact text to replace"},
				"new_string":  map[string]any{"type": "string", "description": "Replacement text"},
				"replace_all": map[string]any{"type": "boolean", "description": "Replace every occurrence instead of requiring uniqueness"},
			},
			"required": []any{"path", "old_string", "new_string"},
		},
		RequiresConfirmation: true,
	}
}

func (EditTool) Invoke(ctx context.Context, execCtx tools.ExecutionContext, args json.RawMessage) (*tools.Result, error) {
	var in struct {
		Path       string `json:"path"`
		OldString  string `json:"old_string"`
		NewString  string `json:"new_string"`
		ReplaceAll bool   `json:"replace_all"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("decode args: %w", err)
	}
	if in.OldString == in.NewString {
		return &tools.Result{Output: "old_string and new_string are identical", IsError: true}, nil
	}
	path, err := Resolver{Root: execCtx.WorkingDir}.Resolve(in.Path)
	if err != nil {
		return &tools.Result{Output: err.Error(), IsError: true}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return &tools.Result{Output: fmt.Sprintf("read %s: %v", in.Path, err), IsError: true}, nil
	}
	content := string(data)

	count := strings.Count(content, in.OldString)
	switch {
	case count == 0:
		return &tools.Result{Output: fmt.Sprintf("old_string not found in %s", in.Path), IsError: true}, nil
	case count > 1 && !in.ReplaceAll:
		return &tools.Result{Output: fmt.Sprintf("old_string appears %d times in %s; pass replace_all or make it unique", count, in.Path), IsError: true}, nil
	}

	replacements := 1
	if in.ReplaceAll {
		replacements = count
		content = strings.ReplaceAll(content, in.OldString, in.NewString)
	} else {
		content = strings.Replace(content, in.OldString, in.NewString, 1)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return &tools.Result{Output: fmt.Sprintf("write %s: %v", in.Path, err), IsError: true}, nil
	}
	return &tools.Result{Output: fmt.Sprintf("replaced %d occurrence(s) in %s", replacements, in.Path)}, nil
}

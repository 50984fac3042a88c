// Package mcpbridge merges tools discovered on connected MCP servers
// into the shared tool registry under the "<server>/<tool>" namespace,
// so they traverse the same dispatch, permission, and hook pipeline as
// built-in tools.
package mcpbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/corefield/agentcore/internal/mcp"
	"github.com/corefield/agentcore/internal/tools"
	"github.com/corefield/agentcore/pkg/models"
)

// Sync registers every tool currently exposed by the manager's ready
// servers, replacing earlier registrations from the same server. Call
// after connecting or on a capability-change notification.
func Sync(registry *tools.Registry, manager *mcp.Manager) error {
	for _, nt := range manager.AllTools() {
		t := &mcpTool{manager: manager, serverID: nt.ServerID, tool: nt.Tool}
		if err := registry.Register("mcp:"+nt.ServerID, t); err != nil {
			return fmt.Errorf("mcpbridge: register %s: %w", mcp.NamespacedToolName(nt.ServerID, nt.Tool.Name), err)
		}
	}
	return nil
}

// Remove unregisters every tool belonging to serverID, used when a
// server disconnects.
func Remove(registry *tools.Registry, serverID string) {
	prefix := serverID + "/"
	for _, def := range registry.List() {
		if strings.HasPrefix(def.Name, prefix) {
			registry.Unregister(def.Name)
		}
	}
}

// mcpTool adapts one remote MCP tool to the local Tool interface.
type mcpTool struct {
	manager  *mcp.Manager
	serverID string
	tool     *mcp.Tool
}

func (t *mcpTool) Definition() models.ToolDefinition {
	var schema models.JSONSchema
	if len(t.tool.InputSchema) > 0 {
		// A server sending an unparsable schema still gets its tool
		// registered; validation then accepts any arguments.
		_ = json.Unmarshal(t.tool.InputSchema, &schema)
	}
	return models.ToolDefinition{
		Name:            mcp.NamespacedToolName(t.serverID, t.tool.Name),
		Description:     t.tool.Description,
		Category:        models.CategoryOther,
		ParameterSchema: schema,
	}
}

func (t *mcpTool) Invoke(ctx context.Context, execCtx tools.ExecutionContext, args json.RawMessage) (*tools.Result, error) {
	var argsMap map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &argsMap); err != nil {
			return nil, fmt.Errorf("decode args: %w", err)
		}
	}

	result, err := t.manager.CallTool(ctx, mcp.NamespacedToolName(t.serverID, t.tool.Name), argsMap)
	if err != nil {
		return nil, err
	}

	var out strings.Builder
	for _, c := range result.Content {
		switch c.Type {
		case "text":
			out.WriteString(c.Text)
		case "image":
			fmt.Fprintf(&out, "[image %s, %d bytes base64]", c.MimeType, len(c.Data))
		default:
			fmt.Fprintf(&out, "[%s content]", c.Type)
		}
	}
	return &tools.Result{Output: out.String(), IsError: result.IsError}, nil
}

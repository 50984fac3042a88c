package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Client manages one connection to an MCP server, tracking its state
// machine (disconnected -> connecting -> initialized -> ready ->
// disconnecting -> disconnected, with failed reachable from any
// in-flight step) and caching the server's advertised tools, resources,
// and prompts.
type Client struct {
	config    *ServerConfig
	transport transport
	logger    *slog.Logger

	mu         sync.RWMutex
	state      State
	serverInfo ServerInfo
	tools      []*Tool
	resources  []*Resource
	templates  []*ResourceTemplate
	prompts    []*Prompt
}

// NewClient constructs a client for the given server configuration
// without connecting.
func NewClient(cfg *ServerConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config:    cfg,
		transport: newTransport(cfg),
		logger:    logger.With("mcp_server", cfg.ID),
		state:     StateDisconnected,
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// State returns the client's current lifecycle state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Connect runs the handshake: transport connect, initialize call,
// initialized notification, then an initial capability refresh.
func (c *Client) Connect(ctx context.Context) error {
	if !c.State().canTransitionTo(StateConnecting) {
		return fmt.Errorf("cannot connect from state %s", c.State())
	}
	c.setState(StateConnecting)

	if err := c.transport.Connect(ctx); err != nil {
		c.setState(StateFailed)
		return fmt.Errorf("transport connect: %w", err)
	}

	result, err := c.transport.Call(ctx, "initialize", map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]any{
			"roots": map[string]any{"listChanged": true},
		},
		"clientInfo": map[string]any{"name": "agentcore", "version": "1.0.0"},
	})
	if err != nil {
		c.transport.Close()
		c.setState(StateFailed)
		return fmt.Errorf("initialize: %w", err)
	}

	var initResult InitializeResult
	if err := json.Unmarshal(result, &initResult); err != nil {
		c.transport.Close()
		c.setState(StateFailed)
		return fmt.Errorf("parse initialize result: %w", err)
	}

	c.mu.Lock()
	c.serverInfo = initResult.ServerInfo
	c.mu.Unlock()
	c.setState(StateInitialized)

	if err := c.transport.Notify(ctx, "notifications/initialized", nil); err != nil {
		c.logger.Warn("failed to send initialized notification", "error", err)
	}

	if err := c.RefreshCapabilities(ctx); err != nil {
		c.logger.Warn("failed to refresh capabilities", "error", err)
	}
	c.setState(StateReady)
	c.logger.Info("mcp server ready", "name", c.serverInfo.Name, "version", c.serverInfo.Version)
	return nil
}

// Close disconnects, running through the disconnecting state.
func (c *Client) Close() error {
	c.setState(StateDisconnecting)
	err := c.transport.Close()
	c.setState(StateDisconnected)
	return err
}

func (c *Client) Config() *ServerConfig { return c.config }

func (c *Client) ServerInfo() ServerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

func (c *Client) Connected() bool { return c.State() == StateReady }

// RefreshCapabilities re-lists tools, resources, resource templates, and
// prompts. A failure in one listing doesn't block the others: a server
// without a capability simply errors on that call.
func (c *Client) RefreshCapabilities(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if result, err := c.transport.Call(ctx, "tools/list", nil); err == nil {
		var resp ListToolsResult
		if json.Unmarshal(result, &resp) == nil {
			c.tools = resp.Tools
		}
	}
	if result, err := c.transport.Call(ctx, "resources/list", nil); err == nil {
		var resp ListResourcesResult
		if json.Unmarshal(result, &resp) == nil {
			c.resources = resp.Resources
		}
	}
	if result, err := c.transport.Call(ctx, "resources/templates/list", nil); err == nil {
		var resp ListResourceTemplatesResult
		if json.Unmarshal(result, &resp) == nil {
			c.templates = resp.ResourceTemplates
		}
	}
	if result, err := c.transport.Call(ctx, "prompts/list", nil); err == nil {
		var resp ListPromptsResult
		if json.Unmarshal(result, &resp) == nil {
			c.prompts = resp.Prompts
		}
	}
	return nil
}

func (c *Client) Tools() []*Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tools
}

func (c *Client) Resources() []*Resource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resources
}

func (c *Client) ResourceTemplates() []*ResourceTemplate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.templates
}

func (c *Client) Prompts() []*Prompt {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prompts
}

func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (*ToolCallResult, error) {
	params := CallToolParams{Name: name}
	if arguments != nil {
		raw, err := json.Marshal(arguments)
		if err != nil {
			return nil, fmt.Errorf("marshal arguments: %w", err)
		}
		params.Arguments = raw
	}

	result, err := c.transport.Call(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}
	var callResult ToolCallResult
	if err := json.Unmarshal(result, &callResult); err != nil {
		return nil, fmt.Errorf("parse result: %w", err)
	}
	return &callResult, nil
}

func (c *Client) ReadResource(ctx context.Context, uri string) ([]*ResourceContent, error) {
	result, err := c.transport.Call(ctx, "resources/read", map[string]any{"uri": uri})
	if err != nil {
		return nil, err
	}
	var readResult ReadResourceResult
	if err := json.Unmarshal(result, &readResult); err != nil {
		return nil, fmt.Errorf("parse result: %w", err)
	}
	return readResult.Contents, nil
}

func (c *Client) GetPrompt(ctx context.Context, name string, arguments map[string]string) (*GetPromptResult, error) {
	result, err := c.transport.Call(ctx, "prompts/get", map[string]any{"name": name, "arguments": arguments})
	if err != nil {
		return nil, err
	}
	var promptResult GetPromptResult
	if err := json.Unmarshal(result, &promptResult); err != nil {
		return nil, fmt.Errorf("parse result: %w", err)
	}
	return &promptResult, nil
}

func (c *Client) Events() <-chan *JSONRPCNotification { return c.transport.Events() }

// SamplingHandler answers a server-initiated sampling/createMessage
// request (the server asking the client's LLM to generate a completion
// on its behalf).
type SamplingHandler func(ctx context.Context, req *SamplingRequestParams) (*SamplingResponse, error)

type SamplingRequestParams struct {
	Messages     []PromptMessage   `json:"messages"`
	SystemPrompt string            `json:"systemPrompt,omitempty"`
	MaxTokens    int               `json:"maxTokens,omitempty"`
	Model        string            `json:"model,omitempty"`
	ModelPrefs   *ModelPreferences `json:"modelPreferences,omitempty"`
}

type ModelPreferences struct {
	Hints []ModelHint `json:"hints,omitempty"`
}

type ModelHint struct {
	Name string `json:"name,omitempty"`
}

type SamplingResponse struct {
	Role       string         `json:"role"`
	Content    MessageContent `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stopReason,omitempty"`
}

// HandleSampling starts a goroutine answering sampling requests from
// the server's request channel until the transport closes it.
func (c *Client) HandleSampling(handler SamplingHandler) {
	if handler == nil {
		return
	}
	go func() {
		for req := range c.transport.Requests() {
			if req == nil || req.Method != "sampling/createMessage" {
				continue
			}
			go c.answerSampling(req, handler)
		}
	}()
}

func (c *Client) answerSampling(req *JSONRPCRequest, handler SamplingHandler) {
	timeout := c.config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var params SamplingRequestParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			_ = c.transport.Respond(ctx, req.ID, nil, &JSONRPCError{Code: ErrCodeInvalidParams, Message: "invalid sampling params"})
			return
		}
	}

	resp, err := handler(ctx, &params)
	if err != nil {
		_ = c.transport.Respond(ctx, req.ID, nil, &JSONRPCError{Code: ErrCodeInternalError, Message: err.Error()})
		return
	}
	if resp == nil {
		_ = c.transport.Respond(ctx, req.ID, nil, &JSONRPCError{Code: ErrCodeInternalError, Message: "sampling handler returned no response"})
		return
	}
	if err := c.transport.Respond(ctx, req.ID, resp, nil); err != nil {
		c.logger.Warn("failed to respond to sampling request", "error", err)
	}
}

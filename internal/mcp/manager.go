package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Config is the top-level MCP configuration: whether the subsystem is
// enabled and which servers it knows about.
type Config struct {
	Enabled bool            `yaml:"enabled"`
	Servers []*ServerConfig `yaml:"servers"`
}

// Manager owns every configured server's Client and namespaces each
// server's tools as "<server>/<tool>" so they can be merged into a
// single flat tool registry without name collisions.
type Manager struct {
	cfg    *Config
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[string]*Client
}

func NewManager(cfg *Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{cfg: cfg, logger: logger.With("component", "mcp"), clients: make(map[string]*Client)}
}

// StartAutoStart connects every server configured with AutoStart,
// logging and continuing past any single server's failure.
func (m *Manager) StartAutoStart(ctx context.Context) error {
	if m.cfg == nil || !m.cfg.Enabled {
		return nil
	}
	for _, sc := range m.cfg.Servers {
		if !sc.AutoStart {
			continue
		}
		if err := m.Connect(ctx, sc.ID); err != nil {
			m.logger.Error("failed to connect to mcp server", "server", sc.ID, "error", err)
		}
	}
	return nil
}

// Stop closes every connected client.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.clients {
		if err := c.Close(); err != nil {
			m.logger.Error("failed to close mcp client", "server", id, "error", err)
		}
		delete(m.clients, id)
	}
	return nil
}

func (m *Manager) findConfig(serverID string) (*ServerConfig, error) {
	if m.cfg == nil {
		return nil, fmt.Errorf("mcp not configured")
	}
	for _, sc := range m.cfg.Servers {
		if sc.ID == serverID {
			return sc, nil
		}
	}
	return nil, fmt.Errorf("server %q not found in config", serverID)
}

// Connect dials a configured server by ID, skipping if already
// connected. A server with an invalid config is rejected before any
// transport is created.
func (m *Manager) Connect(ctx context.Context, serverID string) error {
	sc, err := m.findConfig(serverID)
	if err != nil {
		return err
	}
	if err := sc.Validate(); err != nil {
		return fmt.Errorf("invalid config for %s: %w", serverID, err)
	}

	m.mu.RLock()
	_, exists := m.clients[serverID]
	m.mu.RUnlock()
	if exists {
		return nil
	}

	client := NewClient(sc, m.logger)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect %s: %w", serverID, err)
	}

	m.mu.Lock()
	m.clients[serverID] = client
	m.mu.Unlock()
	return nil
}

// Disconnect closes and forgets one server's client.
func (m *Manager) Disconnect(serverID string) error {
	m.mu.Lock()
	client, ok := m.clients[serverID]
	if ok {
		delete(m.clients, serverID)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return client.Close()
}

func (m *Manager) Client(serverID string) (*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[serverID]
	return c, ok
}

// NamespacedToolName joins a server ID and tool name the way every
// merged MCP tool is exposed to the rest of the runtime.
func NamespacedToolName(serverID, toolName string) string {
	return serverID + "/" + toolName
}

// SplitNamespacedToolName reverses NamespacedToolName. ok is false if
// name doesn't look like a namespaced MCP tool.
func SplitNamespacedToolName(name string) (serverID, toolName string, ok bool) {
	idx := strings.Index(name, "/")
	if idx <= 0 || idx == len(name)-1 {
		return "", "", false
	}
	return name[:idx], name[idx+1:], true
}

// NamespacedTool pairs a server ID with one of that server's tools, the
// unit the tool registry merges in.
type NamespacedTool struct {
	ServerID string
	Tool     *Tool
}

// AllTools lists every ready server's tools, namespaced by server ID,
// for merging into the shared tool registry.
func (m *Manager) AllTools() []NamespacedTool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []NamespacedTool
	for id, c := range m.clients {
		if !c.Connected() {
			continue
		}
		for _, t := range c.Tools() {
			out = append(out, NamespacedTool{ServerID: id, Tool: t})
		}
	}
	return out
}

// CallTool dispatches a namespaced tool call to the owning server.
func (m *Manager) CallTool(ctx context.Context, namespacedName string, args map[string]any) (*ToolCallResult, error) {
	serverID, toolName, ok := SplitNamespacedToolName(namespacedName)
	if !ok {
		return nil, fmt.Errorf("not a namespaced mcp tool name: %q", namespacedName)
	}
	client, ok := m.Client(serverID)
	if !ok {
		return nil, fmt.Errorf("mcp server %q not connected", serverID)
	}
	return client.CallTool(ctx, toolName, args)
}

// ConnectedServers lists the IDs of every currently-connected server.
func (m *Manager) ConnectedServers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.clients))
	for id, c := range m.clients {
		if c.Connected() {
			out = append(out, id)
		}
	}
	return out
}

// Package plugins implements the in-process plugin registry: plugins
// declare capabilities, contribute tools, commands, hook handlers, and
// agent types under a per-plugin prefix, and can be unregistered
// atomically. A plugin that fails to load is quarantined and recorded
// in the load-errors table rather than partially registered.
package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/corefield/agentcore/internal/agent"
	"github.com/corefield/agentcore/internal/hooks"
	"github.com/corefield/agentcore/internal/tools"
	"github.com/corefield/agentcore/pkg/models"
)

// Capability names a facility a plugin may use. Contributions outside
// the declared set are rejected at load time.
type Capability string

const (
	CapTools        Capability = "tools"
	CapCommands     Capability = "commands"
	CapHooks        Capability = "hooks"
	CapSubagents    Capability = "subagents"
	CapSkills       Capability = "skills"
	CapSystemAccess Capability = "system_access"
)

// Manifest describes one plugin.
type Manifest struct {
	Name         string       `json:"name"`
	Version      string       `json:"version"`
	Description  string       `json:"description,omitempty"`
	Capabilities []Capability `json:"capabilities"`
}

// HookContribution is one in-process handler a plugin registers.
type HookContribution struct {
	Pattern  string
	Handler  hooks.Handler
	Priority hooks.Priority
}

// CommandHandler services one plugin-provided command.
type CommandHandler func(ctx context.Context, args map[string]any) (string, error)

// Plugin is the contribution set a plugin hands to Load. All
// contributions are registered under the plugin's prefix: "<name>__"
// for tools, "<name>:" for commands and agent types.
type Plugin struct {
	Manifest  Manifest
	Tools     []tools.Tool
	Commands  map[string]CommandHandler
	Hooks     []HookContribution
	Subagents []agent.TypeDefinition
}

// LoadError records why a plugin was quarantined.
type LoadError struct {
	Plugin string
	Kind   models.ErrorKind
	Err    error
}

func (e LoadError) Error() string {
	return fmt.Sprintf("plugin %s: [%s] %v", e.Plugin, e.Kind, e.Err)
}

// registration tracks everything Load registered for one plugin, so
// Unload can remove it all atomically.
type registration struct {
	manifest  Manifest
	toolNames []string
	commands  []string
	hookIDs   []string
	subagents []models.AgentType
}

// Registry wires plugin contributions into the shared tool registry,
// hook bus, and agent-type registry.
type Registry struct {
	tools      *tools.Registry
	hookBus    *hooks.Registry
	agentTypes *agent.TypeRegistry

	mu         sync.RWMutex
	loaded     map[string]*registration
	commands   map[string]CommandHandler
	loadErrors []LoadError
}

// NewRegistry builds a plugin registry over the shared singletons.
func NewRegistry(toolRegistry *tools.Registry, hookBus *hooks.Registry, agentTypes *agent.TypeRegistry) *Registry {
	if agentTypes == nil {
		agentTypes = agent.DefaultTypeRegistry()
	}
	return &Registry{
		tools:      toolRegistry,
		hookBus:    hookBus,
		agentTypes: agentTypes,
		loaded:     make(map[string]*registration),
		commands:   make(map[string]CommandHandler),
	}
}

// ToolName returns the namespaced tool name for a plugin contribution.
func ToolName(plugin, tool string) string { return plugin + "__" + tool }

// ScopedName returns the namespaced name for non-tool contributions.
func ScopedName(plugin, name string) string { return plugin + ":" + name }

// Load validates and registers p. On any failure nothing is
// registered: partial registrations are rolled back, the plugin is
// quarantined, and the error is recorded in the load-errors table.
func (r *Registry) Load(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.validate(p); err != nil {
		r.loadErrors = append(r.loadErrors, LoadError{Plugin: p.Manifest.Name, Kind: models.KindPluginManifest, Err: err})
		return err
	}
	name := p.Manifest.Name
	if _, ok := r.loaded[name]; ok {
		err := fmt.Errorf("already loaded")
		r.loadErrors = append(r.loadErrors, LoadError{Plugin: name, Kind: models.KindPluginLoad, Err: err})
		return LoadError{Plugin: name, Kind: models.KindPluginLoad, Err: err}
	}

	reg := &registration{manifest: p.Manifest}
	rollback := func() {
		for _, tn := range reg.toolNames {
			r.tools.Unregister(tn)
		}
		for _, cn := range reg.commands {
			delete(r.commands, cn)
		}
		for _, id := range reg.hookIDs {
			r.hookBus.Unregister(id)
		}
		for _, at := range reg.subagents {
			r.agentTypes.Unregister(at)
		}
	}

	for _, tool := range p.Tools {
		namespaced := ToolName(name, tool.Definition().Name)
		if err := r.tools.Register("plugin:"+name, prefixedTool{inner: tool, name: namespaced}); err != nil {
			rollback()
			loadErr := LoadError{Plugin: name, Kind: models.KindPluginLoad, Err: err}
			r.loadErrors = append(r.loadErrors, loadErr)
			return loadErr
		}
		reg.toolNames = append(reg.toolNames, namespaced)
	}

	for cmdName, handler := range p.Commands {
		scoped := ScopedName(name, cmdName)
		if _, ok := r.commands[scoped]; ok {
			rollback()
			loadErr := LoadError{Plugin: name, Kind: models.KindPluginLoad, Err: fmt.Errorf("command %s already registered", scoped)}
			r.loadErrors = append(r.loadErrors, loadErr)
			return loadErr
		}
		r.commands[scoped] = handler
		reg.commands = append(reg.commands, scoped)
	}

	for _, h := range p.Hooks {
		id := r.hookBus.Register(h.Pattern, h.Handler,
			hooks.WithPriority(h.Priority),
			hooks.WithName(ScopedName(name, h.Pattern)),
			hooks.WithSource("plugin:"+name),
		)
		reg.hookIDs = append(reg.hookIDs, id)
	}

	for _, def := range p.Subagents {
		def.Name = models.AgentType(ScopedName(name, string(def.Name)))
		if err := r.agentTypes.Register(def); err != nil {
			rollback()
			loadErr := LoadError{Plugin: name, Kind: models.KindPluginLoad, Err: err}
			r.loadErrors = append(r.loadErrors, loadErr)
			return loadErr
		}
		reg.subagents = append(reg.subagents, def.Name)
	}

	r.loaded[name] = reg
	return nil
}

// Unload removes every contribution of the named plugin atomically.
func (r *Registry) Unload(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.loaded[name]
	if !ok {
		return false
	}
	for _, tn := range reg.toolNames {
		r.tools.Unregister(tn)
	}
	for _, cn := range reg.commands {
		delete(r.commands, cn)
	}
	for _, id := range reg.hookIDs {
		r.hookBus.Unregister(id)
	}
	for _, at := range reg.subagents {
		r.agentTypes.Unregister(at)
	}
	delete(r.loaded, name)
	return true
}

// Command looks up a plugin command by its scoped name.
func (r *Registry) Command(scoped string) (CommandHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.commands[scoped]
	return h, ok
}

// Loaded returns the names of loaded plugins, sorted.
func (r *Registry) Loaded() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.loaded))
	for name := range r.loaded {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// LoadErrors returns the quarantine table.
func (r *Registry) LoadErrors() []LoadError {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]LoadError, len(r.loadErrors))
	copy(out, r.loadErrors)
	return out
}

// ResetForTest unloads every plugin and clears the error table.
func (r *Registry) ResetForTest() {
	for _, name := range r.Loaded() {
		r.Unload(name)
	}
	r.mu.Lock()
	r.loadErrors = nil
	r.mu.Unlock()
}

func (r *Registry) validate(p Plugin) error {
	if p.Manifest.Name == "" {
		return fmt.Errorf("manifest name is empty")
	}
	caps := make(map[Capability]bool, len(p.Manifest.Capabilities))
	for _, c := range p.Manifest.Capabilities {
		caps[c] = true
	}
	if len(p.Tools) > 0 && !caps[CapTools] {
		return fmt.Errorf("contributes tools without the tools capability")
	}
	if len(p.Commands) > 0 && !caps[CapCommands] {
		return fmt.Errorf("contributes commands without the commands capability")
	}
	if len(p.Hooks) > 0 && !caps[CapHooks] {
		return fmt.Errorf("contributes hooks without the hooks capability")
	}
	if len(p.Subagents) > 0 && !caps[CapSubagents] {
		return fmt.Errorf("contributes subagents without the subagents capability")
	}
	return nil
}

// prefixedTool renames a plugin tool to its namespaced form without
// the plugin author having to know the prefix convention.
type prefixedTool struct {
	inner tools.Tool
	name  string
}

func (t prefixedTool) Definition() models.ToolDefinition {
	def := t.inner.Definition()
	def.Name = t.name
	return def
}

func (t prefixedTool) Invoke(ctx context.Context, execCtx tools.ExecutionContext, args json.RawMessage) (*tools.Result, error) {
	return t.inner.Invoke(ctx, execCtx, args)
}

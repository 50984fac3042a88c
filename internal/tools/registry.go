package tools

import (
	"fmt"
	"sort"
	"sync"

	"github.com/corefield/agentcore/pkg/models"
)

// Registry is a name -> Tool map with idempotent-per-(name, source)
// registration: registering the same name from the same source again
// replaces the tool in place; registering the same name from a different
// source errors.
// Plugin tools are namespaced
// as "<plugin>__<name>" by the caller before registration, not by the
// registry itself, so the registry stays agnostic of plugin identity.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	// source records which caller registered each name, for the
	// collision check above.
	source map[string]string
	// order preserves first-registration order so iteration (e.g. for
	// listing tools to an LLM) is stable across calls.
	order []string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:  make(map[string]Tool),
		source: make(map[string]string),
	}
}

// Register adds a tool under source (e.g. "builtin", "plugin:git-helper",
// "mcp:filesystem"). Re-registering the same name from the same source
// replaces the tool in place without disturbing iteration order; from a
// different source it returns an error instead of silently shadowing it.
func (r *Registry) Register(source string, tool Tool) error {
	name := tool.Definition().Name
	r.mu.Lock()
	defer r.mu.Unlock()

	if existingSource, ok := r.source[name]; ok && existingSource != source {
		return fmt.Errorf("tools: %q already registered by %q, refusing registration from %q", name, existingSource, source)
	}
	if _, ok := r.tools[name]; !ok {
		r.order = append(r.order, name)
	}
	r.tools[name] = tool
	r.source[name] = source
	return nil
}

// Unregister removes a tool by name, wherever it came from.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; !ok {
		return
	}
	delete(r.tools, name)
	delete(r.source, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get looks up a tool by exact, case-sensitive name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns every registered tool's definition in stable
// registration order.
func (r *Registry) List() []models.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]models.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// AsLLMFunctions renders every registered tool into the wire shape an
// LLM provider's tool list takes.
func (r *Registry) AsLLMFunctions() []map[string]any {
	defs := r.List()
	out := make([]map[string]any, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.AsLLMFunction())
	}
	return out
}

// Names returns the registered tool names in stable order, mainly for
// diagnostics and the allow-list check in models.AgentConfiguration.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	sort.Strings(out) // deterministic for logging; List() keeps registration order
	return out
}

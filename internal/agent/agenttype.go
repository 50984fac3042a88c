package agent

import (
	"fmt"
	"sync"
	"time"

	"github.com/corefield/agentcore/pkg/models"
)

// TypeDefinition is a named agent preset: a prompt template plus the
// default configuration applied when the task's own configuration
// leaves a field zero. Built-in variants differ only in these two
// things, so they are data, not subtypes.
type TypeDefinition struct {
	Name           models.AgentType
	PromptTemplate string
	Defaults       models.AgentConfiguration
}

const (
	explorePrompt = `You are an exploration agent. Investigate the codebase or problem space
and report what you find. Prefer reading over modifying; do not change files
unless explicitly asked.`

	planPrompt = `You are a planning agent. Break the task into concrete, ordered steps with
enough detail that another agent could execute them. Do not execute the plan
yourself.`

	codeReviewPrompt = `You are a code-review agent. Examine the changes you are given for
correctness, clarity, and risk. Report findings ordered by severity, each
anchored to a file and line.`

	generalPrompt = `You are a capable coding assistant. Complete the user's task using the
tools available to you, and report the outcome concisely.`
)

func builtinTypes() []TypeDefinition {
	return []TypeDefinition{
		{
			Name:           models.AgentExplore,
			PromptTemplate: explorePrompt,
			Defaults:       models.AgentConfiguration{MaxIterations: 15, TimeLimit: 5 * time.Minute},
		},
		{
			Name:           models.AgentPlan,
			PromptTemplate: planPrompt,
			Defaults:       models.AgentConfiguration{MaxIterations: 10, TimeLimit: 5 * time.Minute},
		},
		{
			Name:           models.AgentCodeReview,
			PromptTemplate: codeReviewPrompt,
			Defaults:       models.AgentConfiguration{MaxIterations: 15, TimeLimit: 10 * time.Minute},
		},
		{
			Name:           models.AgentGeneral,
			PromptTemplate: generalPrompt,
			Defaults:       models.AgentConfiguration{MaxIterations: 10, TimeLimit: 10 * time.Minute},
		},
	}
}

// TypeRegistry maps agent-type names to their definitions. Built-ins
// are present from construction; user-defined types register on top
// and may not shadow a built-in.
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[models.AgentType]TypeDefinition
}

// NewTypeRegistry returns a registry pre-populated with the built-in
// agent types.
func NewTypeRegistry() *TypeRegistry {
	r := &TypeRegistry{types: make(map[models.AgentType]TypeDefinition)}
	for _, def := range builtinTypes() {
		r.types[def.Name] = def
	}
	return r
}

// Register adds a user-defined agent type.
func (r *TypeRegistry) Register(def TypeDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("agent type name is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range builtinTypes() {
		if b.Name == def.Name {
			return fmt.Errorf("agent type %q is built-in and cannot be replaced", def.Name)
		}
	}
	r.types[def.Name] = def
	return nil
}

// Unregister removes a user-defined agent type. Built-ins are not
// removable.
func (r *TypeRegistry) Unregister(name models.AgentType) bool {
	for _, b := range builtinTypes() {
		if b.Name == name {
			return false
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[name]; !ok {
		return false
	}
	delete(r.types, name)
	return true
}

// Get looks up a definition; unknown names fall back to the general
// preset so a task with a typo'd type still runs with safe defaults.
func (r *TypeRegistry) Get(name models.AgentType) TypeDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if def, ok := r.types[name]; ok {
		return def
	}
	return r.types[models.AgentGeneral]
}

// ResetForTest drops all user-defined types, restoring the built-ins.
func (r *TypeRegistry) ResetForTest() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = make(map[models.AgentType]TypeDefinition)
	for _, def := range builtinTypes() {
		r.types[def.Name] = def
	}
}

var (
	defaultTypeRegistry     *TypeRegistry
	defaultTypeRegistryOnce sync.Once
)

// DefaultTypeRegistry returns the process-wide agent-type registry,
// initialised lazily.
func DefaultTypeRegistry() *TypeRegistry {
	defaultTypeRegistryOnce.Do(func() {
		defaultTypeRegistry = NewTypeRegistry()
	})
	return defaultTypeRegistry
}

package plugins

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corefield/agentcore/internal/agent"
	"github.com/corefield/agentcore/internal/hooks"
	"github.com/corefield/agentcore/internal/tools"
	"github.com/corefield/agentcore/pkg/models"
)

type echoTool struct{ name string }

func (t echoTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{Name: t.name, Category: models.CategoryOther}
}

func (t echoTool) Invoke(ctx context.Context, execCtx tools.ExecutionContext, args json.RawMessage) (*tools.Result, error) {
	return &tools.Result{Output: "echo"}, nil
}

func newPluginHarness(t *testing.T) (*Registry, *tools.Registry, *hooks.Registry) {
	t.Helper()
	toolReg := tools.NewRegistry()
	hookBus := hooks.NewRegistry(nil)
	typeReg := agent.NewTypeRegistry()
	return NewRegistry(toolReg, hookBus, typeReg), toolReg, hookBus
}

func validPlugin(name string) Plugin {
	return Plugin{
		Manifest: Manifest{
			Name:         name,
			Version:      "1.0.0",
			Capabilities: []Capability{CapTools, CapCommands, CapHooks},
		},
		Tools: []tools.Tool{echoTool{name: "echo"}},
		Commands: map[string]CommandHandler{
			"greet": func(ctx context.Context, args map[string]any) (string, error) { return "hi", nil },
		},
		Hooks: []HookContribution{
			{Pattern: "tool:pre_execute", Handler: func(ctx context.Context, p *hooks.Payload) error { return nil }},
		},
	}
}

func TestLoadRegistersPrefixedContributions(t *testing.T) {
	reg, toolReg, _ := newPluginHarness(t)

	require.NoError(t, reg.Load(validPlugin("helper")))

	_, ok := toolReg.Get("helper__echo")
	assert.True(t, ok, "tool should be registered under the plugin prefix")
	_, ok = toolReg.Get("echo")
	assert.False(t, ok, "unprefixed name must not leak")

	_, ok = reg.Command("helper:greet")
	assert.True(t, ok)
}

func TestLoadUnloadRestoresCardinalities(t *testing.T) {
	reg, toolReg, hookBus := newPluginHarness(t)

	toolsBefore := len(toolReg.List())
	hooksBefore := len(hookBus.RegisteredPatterns())

	require.NoError(t, reg.Load(validPlugin("helper")))
	assert.True(t, reg.Unload("helper"))

	assert.Len(t, toolReg.List(), toolsBefore)
	assert.Len(t, hookBus.RegisteredPatterns(), hooksBefore)
	assert.Empty(t, reg.Loaded())
}

func TestLoadRejectsUndeclaredCapability(t *testing.T) {
	reg, toolReg, _ := newPluginHarness(t)

	p := validPlugin("sneaky")
	p.Manifest.Capabilities = []Capability{CapTools} // commands+hooks undeclared
	err := reg.Load(p)
	require.Error(t, err)

	// Quarantined, nothing registered.
	assert.Empty(t, reg.Loaded())
	assert.Empty(t, toolReg.List())
	require.Len(t, reg.LoadErrors(), 1)
	assert.Equal(t, "sneaky", reg.LoadErrors()[0].Plugin)
}

func TestLoadTwiceFails(t *testing.T) {
	reg, _, _ := newPluginHarness(t)
	require.NoError(t, reg.Load(validPlugin("dup")))
	require.Error(t, reg.Load(validPlugin("dup")))
	assert.Len(t, reg.Loaded(), 1)
}

func TestLoadRollsBackOnToolCollision(t *testing.T) {
	reg, toolReg, hookBus := newPluginHarness(t)

	// A non-plugin registration squats on the namespaced name.
	require.NoError(t, toolReg.Register("builtin", echoTool{name: "clash__echo"}))

	p := validPlugin("clash")
	err := reg.Load(p)
	require.Error(t, err)

	assert.Empty(t, reg.Loaded())
	// No command or hook contributions should survive the rollback.
	_, ok := reg.Command("clash:greet")
	assert.False(t, ok)
	assert.Empty(t, hookBus.RegisteredPatterns())
}

func TestPluginHookVetoesThroughBus(t *testing.T) {
	reg, _, hookBus := newPluginHarness(t)

	p := Plugin{
		Manifest: Manifest{Name: "guard", Capabilities: []Capability{CapHooks}},
		Hooks: []HookContribution{{
			Pattern:  "tool:pre_execute:write",
			Priority: hooks.PriorityHighest,
			Handler: func(ctx context.Context, payload *hooks.Payload) error {
				return assert.AnError
			},
		}},
	}
	require.NoError(t, reg.Load(p))

	outcome := hookBus.Trigger(context.Background(), &hooks.Payload{
		Category: hooks.CategoryTool, Event: hooks.EventPreExecute, Detail: "write", ToolName: "write",
	})
	assert.True(t, outcome.Vetoed)
}

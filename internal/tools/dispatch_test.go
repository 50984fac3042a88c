package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corefield/agentcore/internal/hooks"
	"github.com/corefield/agentcore/internal/policy"
	"github.com/corefield/agentcore/pkg/models"
)

type stubTool struct {
	def models.ToolDefinition
	fn  func(ctx context.Context, args json.RawMessage) (*Result, error)
}

func (t stubTool) Definition() models.ToolDefinition { return t.def }

func (t stubTool) Invoke(ctx context.Context, execCtx ExecutionContext, args json.RawMessage) (*Result, error) {
	if t.fn != nil {
		return t.fn(ctx, args)
	}
	return &Result{Output: "ok"}, nil
}

func newTestDispatcher(t *testing.T, rules []policy.Rule, defaultLevel policy.Level, prompter Prompter) (*Dispatcher, *Registry, *hooks.Registry) {
	t.Helper()
	registry := NewRegistry()
	engine, err := policy.NewEngine(rules, defaultLevel)
	require.NoError(t, err)
	hookBus := hooks.NewRegistry(nil)
	return NewDispatcher(registry, engine, hookBus, prompter, nil), registry, hookBus
}

func echoDef() models.ToolDefinition {
	return models.ToolDefinition{
		Name:     "echo",
		Category: models.CategoryOther,
		ParameterSchema: models.JSONSchema{
			"type":       "object",
			"properties": map[string]any{"text": map[string]any{"type": "string"}},
			"required":   []any{"text"},
		},
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	d, _, _ := newTestDispatcher(t, nil, policy.LevelAllow, nil)
	outcome := d.Dispatch(context.Background(), models.ToolCall{ID: "1", Name: "nope"}, ExecutionContext{}, time.Second)
	assert.Equal(t, models.KindUnknownTool, outcome.Kind)
}

func TestDispatchInvalidArgs(t *testing.T) {
	d, registry, _ := newTestDispatcher(t, nil, policy.LevelAllow, nil)
	require.NoError(t, registry.Register("test", stubTool{def: echoDef()}))

	// Missing the required "text" field.
	outcome := d.Dispatch(context.Background(), models.ToolCall{ID: "1", Name: "echo", Arguments: json.RawMessage(`{}`)}, ExecutionContext{}, time.Second)
	assert.Equal(t, models.KindInvalidArgs, outcome.Kind)

	// Wrong type.
	outcome = d.Dispatch(context.Background(), models.ToolCall{ID: "2", Name: "echo", Arguments: json.RawMessage(`{"text": 42}`)}, ExecutionContext{}, time.Second)
	assert.Equal(t, models.KindInvalidArgs, outcome.Kind)
}

func TestDispatchHappyPath(t *testing.T) {
	d, registry, _ := newTestDispatcher(t, nil, policy.LevelAllow, nil)
	require.NoError(t, registry.Register("test", stubTool{def: echoDef(), fn: func(ctx context.Context, args json.RawMessage) (*Result, error) {
		var in struct {
			Text string `json:"text"`
		}
		require.NoError(t, json.Unmarshal(args, &in))
		return &Result{Output: in.Text}, nil
	}}))

	outcome := d.Dispatch(context.Background(), models.ToolCall{ID: "1", Name: "echo", Arguments: json.RawMessage(`{"text":"hi"}`)}, ExecutionContext{}, time.Second)
	require.NoError(t, outcome.Err)
	assert.Equal(t, "hi", outcome.Result.Output)
}

func TestDispatchDenyRule(t *testing.T) {
	rules := []policy.Rule{{Pattern: "tool:echo", Level: policy.LevelDeny, Priority: 5, Enabled: true, Description: "no echo"}}
	d, registry, _ := newTestDispatcher(t, rules, policy.LevelAllow, nil)
	require.NoError(t, registry.Register("test", stubTool{def: echoDef()}))

	outcome := d.Dispatch(context.Background(), models.ToolCall{ID: "1", Name: "echo", Arguments: json.RawMessage(`{"text":"hi"}`)}, ExecutionContext{}, time.Second)
	assert.Equal(t, models.KindPermissionDenied, outcome.Kind)
}

func TestDispatchAskWithoutPrompterDenies(t *testing.T) {
	d, registry, _ := newTestDispatcher(t, nil, policy.LevelAsk, nil)
	require.NoError(t, registry.Register("test", stubTool{def: echoDef()}))

	outcome := d.Dispatch(context.Background(), models.ToolCall{ID: "1", Name: "echo", Arguments: json.RawMessage(`{"text":"hi"}`)}, ExecutionContext{}, time.Second)
	assert.Equal(t, models.KindPermissionDenied, outcome.Kind)
}

func TestDispatchAskWithPrompterGrants(t *testing.T) {
	prompter := PrompterFunc(func(ctx context.Context, call models.ToolCall, def models.ToolDefinition) (bool, error) {
		return true, nil
	})
	d, registry, _ := newTestDispatcher(t, nil, policy.LevelAsk, prompter)
	require.NoError(t, registry.Register("test", stubTool{def: echoDef()}))

	outcome := d.Dispatch(context.Background(), models.ToolCall{ID: "1", Name: "echo", Arguments: json.RawMessage(`{"text":"hi"}`)}, ExecutionContext{}, time.Second)
	require.NoError(t, outcome.Err)
	assert.Equal(t, "ok", outcome.Result.Output)
}

func TestDispatchHookVeto(t *testing.T) {
	d, registry, hookBus := newTestDispatcher(t, nil, policy.LevelAllow, nil)
	require.NoError(t, registry.Register("test", stubTool{def: echoDef()}))

	hookBus.Register("tool:pre_execute:echo", func(ctx context.Context, p *hooks.Payload) error {
		return errors.New("not here")
	})

	outcome := d.Dispatch(context.Background(), models.ToolCall{ID: "1", Name: "echo", Arguments: json.RawMessage(`{"text":"hi"}`)}, ExecutionContext{}, time.Second)
	assert.Equal(t, models.KindHookVeto, outcome.Kind)
	assert.Contains(t, outcome.Err.Error(), "not here")
}

func TestDispatchToolErrorKind(t *testing.T) {
	d, registry, _ := newTestDispatcher(t, nil, policy.LevelAllow, nil)
	require.NoError(t, registry.Register("test", stubTool{def: echoDef(), fn: func(ctx context.Context, args json.RawMessage) (*Result, error) {
		return nil, errors.New("disk on fire")
	}}))

	outcome := d.Dispatch(context.Background(), models.ToolCall{ID: "1", Name: "echo", Arguments: json.RawMessage(`{"text":"hi"}`)}, ExecutionContext{}, time.Second)
	assert.Equal(t, models.KindToolError, outcome.Kind)
}

func TestDispatchBudgetBoundsInvocation(t *testing.T) {
	d, registry, _ := newTestDispatcher(t, nil, policy.LevelAllow, nil)
	require.NoError(t, registry.Register("test", stubTool{def: echoDef(), fn: func(ctx context.Context, args json.RawMessage) (*Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}))

	start := time.Now()
	outcome := d.Dispatch(context.Background(), models.ToolCall{ID: "1", Name: "echo", Arguments: json.RawMessage(`{"text":"hi"}`)}, ExecutionContext{}, 50*time.Millisecond)
	assert.Equal(t, models.KindToolError, outcome.Kind)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRegistryCollisionAcrossSources(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register("builtin", stubTool{def: echoDef()}))
	// Same source replaces in place.
	require.NoError(t, registry.Register("builtin", stubTool{def: echoDef()}))
	// Different source raises.
	require.Error(t, registry.Register("plugin:x", stubTool{def: echoDef()}))
}

func TestRegistryStableIterationOrder(t *testing.T) {
	registry := NewRegistry()
	names := []string{"zeta", "alpha", "mid"}
	for _, n := range names {
		require.NoError(t, registry.Register("test", stubTool{def: models.ToolDefinition{Name: n}}))
	}
	defs := registry.List()
	got := make([]string, len(defs))
	for i, d := range defs {
		got[i] = d.Name
	}
	assert.Equal(t, names, got)
}

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/corefield/agentcore/internal/hooks"
	"github.com/corefield/agentcore/internal/observability"
	"github.com/corefield/agentcore/internal/policy"
	"github.com/corefield/agentcore/pkg/models"
)

// Prompter asks a human (or an automated policy) whether an `ask`-level
// tool call should proceed. Its absence is equivalent to denial: a
// non-interactive run simply has no Prompter set.
type Prompter interface {
	Confirm(ctx context.Context, call models.ToolCall, def models.ToolDefinition) (bool, error)
}

// PrompterFunc adapts a plain function to the Prompter interface.
type PrompterFunc func(ctx context.Context, call models.ToolCall, def models.ToolDefinition) (bool, error)

func (f PrompterFunc) Confirm(ctx context.Context, call models.ToolCall, def models.ToolDefinition) (bool, error) {
	return f(ctx, call, def)
}

// Dispatcher runs the six-step pipeline over a Registry:
// resolve, validate, permission-check, pre-execute hook, invoke, post-
// execute hook.
type Dispatcher struct {
	registry *Registry
	policy   *policy.Engine
	hooks    *hooks.Registry
	prompter Prompter
	logger   *observability.Logger

	schemaMu sync.Mutex
	schemas  map[string]*jsonschema.Schema
}

// NewDispatcher builds a Dispatcher. policyEngine and hookRegistry may
// not be nil; prompter may be nil (ask-level calls then always deny).
func NewDispatcher(registry *Registry, policyEngine *policy.Engine, hookRegistry *hooks.Registry, prompter Prompter, logger *observability.Logger) *Dispatcher {
	if logger == nil {
		logger = observability.Default()
	}
	return &Dispatcher{
		registry: registry,
		policy:   policyEngine,
		hooks:    hookRegistry,
		prompter: prompter,
		logger:   logger,
		schemas:  make(map[string]*jsonschema.Schema),
	}
}

// Dispatch runs call through the full pipeline, honoring budget as an
// outer bound on the tool invocation itself. execCtx.SessionID is
// attached to the pre- and post-execute hook payloads.
func (d *Dispatcher) Dispatch(ctx context.Context, call models.ToolCall, execCtx ExecutionContext, budget time.Duration) Outcome {
	// Step 1: resolve.
	if len(call.Name) > MaxToolNameLength {
		return Failure(models.KindInvalidArgs, fmt.Errorf("tool name exceeds %d characters", MaxToolNameLength))
	}
	tool, ok := d.registry.Get(call.Name)
	if !ok {
		return Failure(models.KindUnknownTool, fmt.Errorf("unknown tool: %s", call.Name))
	}
	def := tool.Definition()

	if len(call.Arguments) > MaxToolArgsSize {
		return Failure(models.KindInvalidArgs, fmt.Errorf("tool arguments exceed %d bytes", MaxToolArgsSize))
	}

	// Step 2: validate against the parameter schema.
	argsMap, err := d.validate(def, call.Arguments)
	if err != nil {
		return Failure(models.KindInvalidArgs, err)
	}

	// Step 3: permission engine.
	decision := d.policy.Evaluate(policy.ToolCall{
		Name:     def.Name,
		Category: policy.Category(def.Category),
		Args:     argsMap,
	})
	switch decision.Level {
	case policy.LevelDeny:
		d.hooks.TriggerAsync(ctx, &hooks.Payload{Category: hooks.CategoryPermission, Event: hooks.EventDenied, Timestamp: time.Now(), ToolName: def.Name, ToolCallID: call.ID, Data: map[string]any{"level": string(decision.Level), "reason": decision.Reason}})
		return Failure(models.KindPermissionDenied, fmt.Errorf("permission denied: %s", decision.Reason))
	case policy.LevelAsk:
		granted, err := d.confirm(ctx, call, def)
		if err != nil {
			return Failure(models.KindPermissionDenied, err)
		}
		if !granted {
			return Failure(models.KindPermissionDenied, fmt.Errorf("user declined: %s", def.Name))
		}
	}

	// Step 4: pre-execute hook (veto-capable), then invoke.
	prePayload := &hooks.Payload{
		Category:   hooks.CategoryTool,
		Event:      hooks.EventPreExecute,
		Detail:     def.Name,
		Timestamp:  time.Now(),
		SessionID:  execCtx.SessionID,
		ToolName:   def.Name,
		ToolCallID: call.ID,
		Args:       argsMap,
	}
	if outcome := d.hooks.Trigger(ctx, prePayload); outcome.Vetoed {
		return Failure(models.KindHookVeto, fmt.Errorf("hook veto: %s", outcome.Reason))
	}

	invokeCtx := ctx
	var cancel context.CancelFunc
	if budget > 0 {
		invokeCtx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	result, err := tool.Invoke(invokeCtx, execCtx, call.Arguments)

	postPayload := &hooks.Payload{
		Category:   hooks.CategoryTool,
		Event:      hooks.EventPostExecute,
		Detail:     def.Name,
		Timestamp:  time.Now(),
		SessionID:  execCtx.SessionID,
		ToolName:   def.Name,
		ToolCallID: call.ID,
		Args:       argsMap,
	}

	// Step 5: exception -> ToolError.
	if err != nil {
		postPayload.Err = err
		d.hooks.TriggerAsync(ctx, &hooks.Payload{Category: hooks.CategoryTool, Event: hooks.EventError, Detail: def.Name, Timestamp: time.Now(), ToolName: def.Name, ToolCallID: call.ID, Err: err})
		return Failure(models.KindToolError, err)
	}

	// Step 6: post-execute hook with result.
	if result != nil {
		postPayload.Result = result.Output
	}
	d.hooks.TriggerAsync(ctx, postPayload)

	return Success(result)
}

func (d *Dispatcher) confirm(ctx context.Context, call models.ToolCall, def models.ToolDefinition) (bool, error) {
	d.hooks.TriggerAsync(ctx, &hooks.Payload{Category: hooks.CategoryPermission, Event: hooks.EventPrompt, Timestamp: time.Now(), ToolName: def.Name, ToolCallID: call.ID})
	if d.prompter == nil {
		d.hooks.TriggerAsync(ctx, &hooks.Payload{Category: hooks.CategoryPermission, Event: hooks.EventDenied, Timestamp: time.Now(), ToolName: def.Name, ToolCallID: call.ID})
		return false, nil
	}
	granted, err := d.prompter.Confirm(ctx, call, def)
	ev := hooks.EventDenied
	if granted {
		ev = hooks.EventGranted
	}
	d.hooks.TriggerAsync(ctx, &hooks.Payload{Category: hooks.CategoryPermission, Event: ev, Timestamp: time.Now(), ToolName: def.Name, ToolCallID: call.ID})
	return granted, err
}

// validate compiles (and caches) def's parameter schema and checks args
// against it, returning the decoded argument map for downstream use by
// the permission engine. Missing required fields and type mismatches
// surface as a single descriptive error.
func (d *Dispatcher) validate(def models.ToolDefinition, args json.RawMessage) (map[string]any, error) {
	var decoded any
	if len(args) == 0 {
		decoded = map[string]any{}
	} else if err := json.Unmarshal(args, &decoded); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}

	schema, err := d.compiledSchema(def)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", def.Name, err)
	}
	if schema != nil {
		if err := schema.Validate(decoded); err != nil {
			return nil, fmt.Errorf("invalid arguments for %s: %w", def.Name, err)
		}
	}

	argsMap, _ := decoded.(map[string]any)
	if argsMap == nil {
		argsMap = map[string]any{}
	}
	return argsMap, nil
}

func (d *Dispatcher) compiledSchema(def models.ToolDefinition) (*jsonschema.Schema, error) {
	if len(def.ParameterSchema) == 0 {
		return nil, nil
	}
	d.schemaMu.Lock()
	defer d.schemaMu.Unlock()
	if s, ok := d.schemas[def.Name]; ok {
		return s, nil
	}

	raw, err := json.Marshal(map[string]any(def.ParameterSchema))
	if err != nil {
		return nil, err
	}
	compiled, err := jsonschema.CompileString(def.Name+".schema.json", string(raw))
	if err != nil {
		return nil, err
	}
	d.schemas[def.Name] = compiled
	return compiled, nil
}

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corefield/agentcore/internal/hooks"
	"github.com/corefield/agentcore/internal/policy"
	"github.com/corefield/agentcore/internal/tools"
	"github.com/corefield/agentcore/pkg/models"
)

// scriptedTurn is one canned LLM response.
type scriptedTurn struct {
	text      string
	calls     []models.ToolCall
	inTokens  int
	outTokens int
	err       error
}

// fakeProvider replays scripted turns and records every request it
// receives so tests can inspect the conversation the executor built.
type fakeProvider struct {
	mu       sync.Mutex
	turns    []scriptedTurn
	requests []*CompletionRequest
}

func (f *fakeProvider) Name() string        { return "fake" }
func (f *fakeProvider) SupportsTools() bool { return true }
func (f *fakeProvider) Models() []Model     { return []Model{{ID: "fake-model", ContextSize: 128000}} }

func (f *fakeProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	f.mu.Lock()
	idx := len(f.requests)
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if idx >= len(f.turns) {
		return nil, errors.New("fake provider: no scripted turn left")
	}
	turn := f.turns[idx]

	ch := make(chan *CompletionChunk, len(turn.calls)+3)
	if turn.err != nil {
		ch <- &CompletionChunk{Error: turn.err}
	} else {
		if turn.text != "" {
			ch <- &CompletionChunk{Text: turn.text}
		}
		for i := range turn.calls {
			ch <- &CompletionChunk{ToolCall: &turn.calls[i]}
		}
		ch <- &CompletionChunk{Done: true, InputTokens: turn.inTokens, OutputTokens: turn.outTokens}
	}
	close(ch)
	return ch, nil
}

func (f *fakeProvider) request(i int) *CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

func (f *fakeProvider) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// fakeTool returns a fixed output for every invocation.
type fakeTool struct {
	def models.ToolDefinition
	fn  func(args json.RawMessage) (*tools.Result, error)
}

func (t fakeTool) Definition() models.ToolDefinition { return t.def }

func (t fakeTool) Invoke(ctx context.Context, execCtx tools.ExecutionContext, args json.RawMessage) (*tools.Result, error) {
	if t.fn != nil {
		return t.fn(args)
	}
	return &tools.Result{Output: "ok"}, nil
}

type testHarness struct {
	provider *fakeProvider
	registry *tools.Registry
	hookBus  *hooks.Registry
	executor *Executor
}

func newHarness(t *testing.T, turns []scriptedTurn, rules []policy.Rule) *testHarness {
	t.Helper()
	provider := &fakeProvider{turns: turns}
	registry := tools.NewRegistry()
	engine, err := policy.NewEngine(rules, policy.LevelAllow)
	require.NoError(t, err)
	hookBus := hooks.NewRegistry(nil)
	dispatcher := tools.NewDispatcher(registry, engine, hookBus, nil, nil)
	executor := NewExecutor(provider, registry, dispatcher, hookBus, nil, Config{DefaultModel: "fake-model"})
	return &testHarness{provider: provider, registry: registry, hookBus: hookBus, executor: executor}
}

func newTask(prompt string) *models.AgentTask {
	return &models.AgentTask{
		TaskID:    "task-1",
		AgentType: models.AgentGeneral,
		Prompt:    prompt,
	}
}

func readToolDef() models.ToolDefinition {
	return models.ToolDefinition{
		Name:     "read",
		Category: models.CategoryFile,
		ParameterSchema: models.JSONSchema{
			"type":       "object",
			"properties": map[string]any{"path": map[string]any{"type": "string"}},
			"required":   []any{"path"},
		},
	}
}

func TestExecuteSingleTurnText(t *testing.T) {
	h := newHarness(t, []scriptedTurn{{text: "Hi", inTokens: 5, outTokens: 2}}, nil)

	task := newTask("Hello")
	res := h.executor.Execute(context.Background(), task, nil)

	require.True(t, res.Success)
	assert.Equal(t, "Hi", res.Output)
	assert.Equal(t, 0, res.ToolCallCount)
	assert.Equal(t, 7, res.TokensUsed)
	assert.Equal(t, models.StateCompleted, task.State())

	// The single request carried system + user task.
	req := h.provider.request(0)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "user", req.Messages[1].Role)
	assert.Equal(t, "Hello", req.Messages[1].Content)
}

func TestExecuteReadThenReply(t *testing.T) {
	h := newHarness(t, []scriptedTurn{
		{calls: []models.ToolCall{{ID: "tc1", Name: "read", Arguments: json.RawMessage(`{"path":"/tmp/a.txt"}`)}}},
		{text: "File says contents"},
	}, nil)
	require.NoError(t, h.registry.Register("test", fakeTool{def: readToolDef(), fn: func(json.RawMessage) (*tools.Result, error) {
		return &tools.Result{Output: "contents"}, nil
	}}))

	res := h.executor.Execute(context.Background(), newTask("read the file"), nil)

	require.True(t, res.Success)
	assert.Equal(t, "File says contents", res.Output)
	assert.Equal(t, 1, res.ToolCallCount)

	// Second request must carry assistant tool_calls followed by the
	// correlated tool result.
	req := h.provider.request(1)
	var assistant, toolMsg *CompletionMessage
	for i := range req.Messages {
		switch req.Messages[i].Role {
		case "assistant":
			assistant = &req.Messages[i]
		case "tool":
			toolMsg = &req.Messages[i]
		}
	}
	require.NotNil(t, assistant)
	require.NotNil(t, toolMsg)
	require.Len(t, assistant.ToolCalls, 1)
	require.Len(t, toolMsg.ToolResults, 1)
	assert.Equal(t, assistant.ToolCalls[0].ID, toolMsg.ToolResults[0].ToolCallID)
	assert.Equal(t, "contents", toolMsg.ToolResults[0].Content)
}

func TestExecutePermissionDeny(t *testing.T) {
	rules := []policy.Rule{{
		Pattern: "tool:bash,arg:command:*rm*", Level: policy.LevelDeny, Priority: 10, Enabled: true,
	}}
	h := newHarness(t, []scriptedTurn{
		{calls: []models.ToolCall{{ID: "tc1", Name: "bash", Arguments: json.RawMessage(`{"command":"rm x"}`)}}},
		{text: "understood"},
	}, rules)
	require.NoError(t, h.registry.Register("test", fakeTool{def: models.ToolDefinition{Name: "bash", Category: models.CategoryShell}}))

	var deniedEvents int
	var deniedMu sync.Mutex
	h.hookBus.Register("permission:denied", func(ctx context.Context, p *hooks.Payload) error {
		deniedMu.Lock()
		deniedEvents++
		deniedMu.Unlock()
		return nil
	})

	res := h.executor.Execute(context.Background(), newTask("delete it"), nil)

	// The loop continues past the denial to the next LLM call.
	require.True(t, res.Success)
	assert.Equal(t, "understood", res.Output)

	req := h.provider.request(1)
	last := req.Messages[len(req.Messages)-1]
	require.Equal(t, "tool", last.Role)
	assert.Contains(t, last.ToolResults[0].Content, "PermissionDenied")

	// The denied event fires asynchronously but exactly once.
	assert.Eventually(t, func() bool {
		deniedMu.Lock()
		defer deniedMu.Unlock()
		return deniedEvents == 1
	}, time.Second, 10*time.Millisecond)
}

func TestExecuteHookVetoOnWrite(t *testing.T) {
	h := newHarness(t, []scriptedTurn{
		{calls: []models.ToolCall{{ID: "tc1", Name: "write", Arguments: json.RawMessage(`{}`)}}},
		{text: "done"},
	}, nil)
	require.NoError(t, h.registry.Register("test", fakeTool{def: models.ToolDefinition{Name: "write", Category: models.CategoryFile}}))

	h.hookBus.Register("tool:pre_execute:write", func(ctx context.Context, p *hooks.Payload) error {
		return errors.New("readonly")
	})

	res := h.executor.Execute(context.Background(), newTask("write the file"), nil)
	require.True(t, res.Success)

	req := h.provider.request(1)
	last := req.Messages[len(req.Messages)-1]
	require.Equal(t, "tool", last.Role)
	assert.True(t, strings.HasPrefix(last.ToolResults[0].Content, "HookVeto:"), "got %q", last.ToolResults[0].Content)
	assert.Contains(t, last.ToolResults[0].Content, "readonly")
}

func TestExecuteTokenBudgetExhaustion(t *testing.T) {
	h := newHarness(t, []scriptedTurn{
		{calls: []models.ToolCall{{ID: "tc1", Name: "read", Arguments: json.RawMessage(`{"path":"a"}`)}}, inTokens: 30, outTokens: 30},
		{calls: []models.ToolCall{{ID: "tc2", Name: "read", Arguments: json.RawMessage(`{"path":"b"}`)}}, inTokens: 30, outTokens: 30},
	}, nil)
	require.NoError(t, h.registry.Register("test", fakeTool{def: readToolDef()}))

	task := newTask("loop forever")
	task.Configuration.TokenLimit = 100

	res := h.executor.Execute(context.Background(), task, nil)

	require.False(t, res.Success)
	assert.Contains(t, res.Error, "max_tokens")
	assert.Equal(t, 120, res.TokensUsed)
	// Only the first turn's tool call ran; the second turn tripped the
	// budget before its tools dispatched.
	assert.Equal(t, 1, res.ToolCallCount)
	assert.Equal(t, models.StateFailed, task.State())
}

func TestExecuteCancelledBeforeFirstCall(t *testing.T) {
	h := newHarness(t, []scriptedTurn{{text: "never sent"}}, nil)

	cancel := NewCancelToken()
	cancel.Cancel()

	task := newTask("anything")
	res := h.executor.Execute(context.Background(), task, cancel)

	require.False(t, res.Success)
	assert.Contains(t, res.Error, "cancelled")
	assert.Zero(t, res.TokensUsed)
	assert.Equal(t, 0, h.provider.requestCount())
	assert.Equal(t, models.StateCancelled, task.State())
}

func TestExecuteMaxIterations(t *testing.T) {
	turns := make([]scriptedTurn, 3)
	for i := range turns {
		turns[i] = scriptedTurn{
			text:  fmt.Sprintf("thinking %d", i),
			calls: []models.ToolCall{{ID: fmt.Sprintf("tc%d", i), Name: "read", Arguments: json.RawMessage(`{"path":"a"}`)}},
		}
	}
	h := newHarness(t, turns, nil)
	require.NoError(t, h.registry.Register("test", fakeTool{def: readToolDef()}))

	task := newTask("never finishes")
	task.Configuration.MaxIterations = 3

	res := h.executor.Execute(context.Background(), task, nil)
	require.False(t, res.Success)
	assert.Contains(t, res.Error, "max_iterations")
	assert.Equal(t, "thinking 2", res.Output)
	assert.Equal(t, 3, res.ToolCallCount)
}

func TestExecuteLLMErrorFailsLoop(t *testing.T) {
	h := newHarness(t, []scriptedTurn{{err: errors.New("[llm_auth_failed] anthropic status=401")}}, nil)

	task := newTask("hello")
	res := h.executor.Execute(context.Background(), task, nil)
	require.False(t, res.Success)
	assert.Contains(t, res.Error, "llm_auth_failed")
	assert.Equal(t, models.StateFailed, task.State())
}

func TestExecuteToolAllowListFiltersDefinitions(t *testing.T) {
	h := newHarness(t, []scriptedTurn{{text: "done"}}, nil)
	require.NoError(t, h.registry.Register("test", fakeTool{def: models.ToolDefinition{Name: "read"}}))
	require.NoError(t, h.registry.Register("test", fakeTool{def: models.ToolDefinition{Name: "write"}}))

	task := newTask("restricted")
	task.Configuration.ToolAllowList = []string{"read"}

	res := h.executor.Execute(context.Background(), task, nil)
	require.True(t, res.Success)

	req := h.provider.request(0)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "read", req.Tools[0].Name)
}

func TestStreamChunksConcatenateToOutput(t *testing.T) {
	h := newHarness(t, []scriptedTurn{
		{calls: []models.ToolCall{{ID: "tc1", Name: "read", Arguments: json.RawMessage(`{"path":"a"}`)}}},
		{text: "final answer"},
	}, nil)
	require.NoError(t, h.registry.Register("test", fakeTool{def: readToolDef()}))

	var chunkText strings.Builder
	var kinds []EventKind
	var result *models.AgentResult
	for ev := range h.executor.Stream(context.Background(), newTask("go"), nil) {
		kinds = append(kinds, ev.Kind)
		if ev.Kind == EventLLMChunk {
			chunkText.WriteString(ev.Text)
		}
		if ev.Kind == EventAgentEnd {
			result = ev.Result
		}
	}

	require.NotNil(t, result)
	assert.Equal(t, "final answer", result.Output)
	assert.Equal(t, "final answer", chunkText.String())
	assert.Equal(t, EventAgentEnd, kinds[len(kinds)-1])

	// tool_end follows tool_start.
	startIdx, endIdx := -1, -1
	for i, k := range kinds {
		if k == EventToolStart && startIdx == -1 {
			startIdx = i
		}
		if k == EventToolEnd && endIdx == -1 {
			endIdx = i
		}
	}
	require.NotEqual(t, -1, startIdx)
	assert.Greater(t, endIdx, startIdx)
}

func TestEffectiveConfigOverlaysDefaults(t *testing.T) {
	defaults := models.AgentConfiguration{MaxIterations: 15, TimeLimit: 5 * time.Minute, PreferredModel: "m1"}
	out := effectiveConfig(models.AgentConfiguration{MaxIterations: 3}, defaults)
	assert.Equal(t, 3, out.MaxIterations)
	assert.Equal(t, 5*time.Minute, out.TimeLimit)
	assert.Equal(t, "m1", out.PreferredModel)
}

func TestTypeRegistryRegisterUnregister(t *testing.T) {
	r := NewTypeRegistry()
	require.Error(t, r.Register(TypeDefinition{Name: models.AgentGeneral}))

	custom := TypeDefinition{Name: "security_audit", PromptTemplate: "audit things"}
	require.NoError(t, r.Register(custom))
	assert.Equal(t, "audit things", r.Get("security_audit").PromptTemplate)

	assert.True(t, r.Unregister("security_audit"))
	// Unknown types fall back to the general preset.
	assert.Equal(t, models.AgentGeneral, r.Get("security_audit").Name)
	assert.False(t, r.Unregister(models.AgentGeneral))
}

func TestCancelTokenIdempotent(t *testing.T) {
	tok := NewCancelToken()
	assert.False(t, tok.Cancelled())
	tok.Cancel()
	tok.Cancel()
	assert.True(t, tok.Cancelled())
	select {
	case <-tok.Done():
	default:
		t.Fatal("Done channel should be closed")
	}
}

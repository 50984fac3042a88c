package agent

import (
	"context"
	"strings"
	"sync"
	"time"

	ctxengine "github.com/corefield/agentcore/internal/context"
	"github.com/corefield/agentcore/internal/hooks"
	"github.com/corefield/agentcore/internal/observability"
	"github.com/corefield/agentcore/internal/tools"
	"github.com/corefield/agentcore/pkg/models"
)

// Config bounds every run an Executor performs. Per-task configuration
// (models.AgentConfiguration) overrides these where set.
type Config struct {
	// DefaultModel is used when the task doesn't name one.
	DefaultModel string

	// IterationTimeout bounds one LLM call plus its tool set.
	// Default: 2 minutes.
	IterationTimeout time.Duration

	// MaxConcurrentTools bounds parallel tool execution within one
	// assistant turn. Default: 5.
	MaxConcurrentTools int

	// ToolResultMaxTokens caps an individual tool result before it is
	// appended to history. Default: 4000.
	ToolResultMaxTokens int

	// DefaultMaxIterations applies when neither the task nor its agent
	// type sets one. Default: 10.
	DefaultMaxIterations int
}

func (c Config) withDefaults() Config {
	if c.IterationTimeout <= 0 {
		c.IterationTimeout = 2 * time.Minute
	}
	if c.MaxConcurrentTools <= 0 {
		c.MaxConcurrentTools = 5
	}
	if c.ToolResultMaxTokens <= 0 {
		c.ToolResultMaxTokens = 4000
	}
	if c.DefaultMaxIterations <= 0 {
		c.DefaultMaxIterations = 10
	}
	return c
}

// Executor drives the bounded LLM<->tool loop for one task at a time.
// It is safe to run many tasks concurrently through the same Executor:
// all mutable per-run state lives on the stack of Execute, and the
// shared collaborators (registry, dispatcher, hook bus) synchronise
// internally.
type Executor struct {
	provider   LLMProvider
	registry   *tools.Registry
	dispatcher *tools.Dispatcher
	types      *TypeRegistry
	hooks      *hooks.Registry
	counter    ctxengine.Counter
	strategy   ctxengine.Strategy
	logger     *observability.Logger
	cfg        Config
}

// NewExecutor wires an Executor with a caching counter for the default
// model and the token-budget strategy; SetCounter and SetStrategy
// replace them.
func NewExecutor(provider LLMProvider, registry *tools.Registry, dispatcher *tools.Dispatcher, hookBus *hooks.Registry, logger *observability.Logger, cfg Config) *Executor {
	if logger == nil {
		logger = observability.Default()
	}
	return &Executor{
		provider:   provider,
		registry:   registry,
		dispatcher: dispatcher,
		types:      DefaultTypeRegistry(),
		hooks:      hookBus,
		counter:    ctxengine.NewCachingCounter(ctxengine.NewCounterForModel(cfg.DefaultModel), 2048),
		strategy:   ctxengine.TokenBudget{},
		logger:     logger,
		cfg:        cfg.withDefaults(),
	}
}

// SetCounter overrides the token counter, mainly for tests.
func (e *Executor) SetCounter(c ctxengine.Counter) { e.counter = c }

// SetStrategy overrides the truncation strategy applied before each
// LLM request.
func (e *Executor) SetStrategy(s ctxengine.Strategy) { e.strategy = s }

// Execute drives the loop to a terminal result. It never returns an
// error: failures are encoded in the result and mirrored in the task's
// lifecycle state. cancel may be nil.
func (e *Executor) Execute(ctx context.Context, task *models.AgentTask, cancel *CancelToken) *models.AgentResult {
	return e.run(ctx, task, cancel, nil)
}

// runState is the per-run mutable state, owned by exactly one run goroutine.
type runState struct {
	messages   []models.Message
	tokensUsed int
	toolCalls  int
	iteration  int
	started    time.Time
	lastText   string
}

func (e *Executor) run(ctx context.Context, task *models.AgentTask, cancel *CancelToken, emit func(Event)) *models.AgentResult {
	if emit == nil {
		emit = func(Event) {}
	}
	state := &runState{started: time.Now()}
	task.Transition(models.StateRunning)

	if e.provider == nil {
		return e.finish(task, state, emit, failed(state, models.ErrNoProvider.Error()))
	}

	typeDef := e.types.Get(task.AgentType)
	cfg := effectiveConfig(task.Configuration, typeDef.Defaults)
	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = e.cfg.DefaultMaxIterations
	}
	model := cfg.PreferredModel
	if model == "" {
		model = e.cfg.DefaultModel
	}

	// Step 1-2: system prompt, inherited context, user task.
	system := typeDef.PromptTemplate
	if cfg.PromptAddition != "" {
		system = system + "\n\n" + cfg.PromptAddition
	}
	state.messages = append(state.messages, models.Message{Role: models.RoleSystem, Content: system, CreatedAt: time.Now()})
	if cfg.InheritContext && len(task.Context.Messages) > 0 {
		if summary := e.inheritSummary(ctx, task.Context.Messages); summary != "" {
			state.messages = append(state.messages, models.Message{Role: models.RoleUser, Content: summary, CreatedAt: time.Now()})
		}
	}
	state.messages = append(state.messages, models.Message{Role: models.RoleUser, Content: task.Prompt, CreatedAt: time.Now()})

	// Step 3: bind tool definitions, filtered to the allow-list.
	defs := e.allowedTools(cfg.ToolAllowList)

	contextBudget := ctxengine.ContextWindowFor(model)
	window := ctxengine.NewWindow(contextBudget)
	execCtx := tools.ExecutionContext{
		WorkingDir: task.Context.WorkingDir,
		Env:        task.Context.Env,
		SessionID:  task.TaskID,
	}

	for state.iteration < maxIterations {
		// Step 8 first: cancellation wins over further work, including
		// before the first LLM call.
		if reason, done := e.interrupted(ctx, cancel); done {
			return e.finish(task, state, emit, cancelled(state, reason))
		}

		// Fit the conversation within the model's window before sending.
		// When usage crosses the warn threshold, compact first so a
		// summary preserves what plain truncation would drop.
		if window.ShouldWarn() {
			e.logger.Warn(ctx, "context window low", "window", window.Info().String())
			state.messages = e.compactHistory(ctx, state.messages, contextBudget, model)
		}
		fitted := e.fitMessages(state.messages, contextBudget)

		req := &CompletionRequest{
			Model:    model,
			System:   system,
			Messages: toCompletionMessages(fitted),
			Tools:    defs,
		}

		// Step 4: LLM call bounded by the per-iteration timeout.
		e.hooks.Trigger(ctx, &hooks.Payload{
			Category: hooks.CategoryLLM, Event: hooks.EventPreRequest,
			Timestamp: time.Now(), SessionID: task.TaskID,
			Data: map[string]any{"model": model, "iteration": state.iteration, "messages": len(req.Messages)},
		})
		emit(Event{Kind: EventLLMStart, Iteration: state.iteration})

		text, calls, usage, err := e.completeOnce(ctx, req, cancel, emit)
		if err != nil {
			loopErr := &LoopError{Phase: PhaseStream, Iteration: state.iteration, Cause: err}
			emit(Event{Kind: EventErrorOccurred, Iteration: state.iteration, Err: loopErr})
			return e.finish(task, state, emit, failed(state, loopErr.Error()))
		}
		emit(Event{Kind: EventLLMEnd, Iteration: state.iteration, Text: text})

		// Step 5: accumulate usage against the budgets.
		turnTokens := usage
		if turnTokens == 0 {
			turnTokens = e.counter.CountMessages(toEngineMessages(fitted)) + e.counter.Count(text)
		}
		state.tokensUsed += turnTokens
		state.lastText = text
		window.Reset()
		window.Add(e.counter.CountMessages(toEngineMessages(state.messages)) + e.counter.Count(text))

		e.hooks.TriggerAsync(ctx, &hooks.Payload{
			Category: hooks.CategoryLLM, Event: hooks.EventPostResponse,
			Timestamp: time.Now(), SessionID: task.TaskID,
			Data: map[string]any{"tokens": turnTokens, "tool_calls": len(calls)},
		})

		if cfg.TokenLimit > 0 && state.tokensUsed > cfg.TokenLimit {
			loopErr := &LoopError{Phase: PhaseStream, Iteration: state.iteration, Cause: ErrMaxTokens}
			return e.finish(task, state, emit, failed(state, loopErr.Error()))
		}
		if cfg.TimeLimit > 0 && time.Since(state.started) > cfg.TimeLimit {
			loopErr := &LoopError{Phase: PhaseStream, Iteration: state.iteration, Cause: ErrMaxTime}
			return e.finish(task, state, emit, failed(state, loopErr.Error()))
		}

		// Step 6: a response with no tool calls completes the run.
		if len(calls) == 0 {
			state.messages = append(state.messages, models.Message{Role: models.RoleAssistant, Content: text, CreatedAt: time.Now()})
			res := &models.AgentResult{
				Success:       true,
				Output:        text,
				TokensUsed:    state.tokensUsed,
				WallTime:      time.Since(state.started),
				ToolCallCount: state.toolCalls,
				Timestamp:     time.Now(),
				Metadata:      models.JSONMap{"iterations": state.iteration + 1, "model": model},
			}
			task.Transition(models.StateCompleted)
			emit(Event{Kind: EventAgentEnd, Result: res})
			return res
		}

		// Step 7: append the assistant turn, then run its tool calls.
		state.messages = append(state.messages, models.Message{
			Role: models.RoleAssistant, Content: text, ToolCalls: calls, CreatedAt: time.Now(),
		})
		remaining := e.toolBudget(cfg, state)
		results := e.executeTools(ctx, calls, execCtx, remaining, emit)
		for _, msg := range results {
			state.messages = append(state.messages, msg)
		}
		state.toolCalls += len(calls)

		if reason, done := e.interrupted(ctx, cancel); done {
			return e.finish(task, state, emit, cancelled(state, reason))
		}
		state.iteration++
	}

	// Step 9: iteration budget exhausted.
	loopErr := &LoopError{Phase: PhaseComplete, Iteration: state.iteration, Cause: ErrMaxIterations}
	res := failed(state, loopErr.Error())
	res.Output = state.lastText
	return e.finish(task, state, emit, res)
}

// completeOnce performs one provider call and drains its stream,
// returning the accumulated text, assembled tool calls, and reported
// token usage (0 when the provider omitted it).
func (e *Executor) completeOnce(ctx context.Context, req *CompletionRequest, cancel *CancelToken, emit func(Event)) (string, []models.ToolCall, int, error) {
	iterCtx, cancelIter := context.WithTimeout(ctx, e.cfg.IterationTimeout)
	defer cancelIter()

	if cancel != nil {
		// Propagate token cancellation into the provider's HTTP layer.
		var stop context.CancelFunc
		iterCtx, stop = context.WithCancel(iterCtx)
		defer stop()
		go func() {
			select {
			case <-cancel.Done():
				stop()
			case <-iterCtx.Done():
			}
		}()
	}

	chunks, err := e.provider.Complete(iterCtx, req)
	if err != nil {
		return "", nil, 0, err
	}

	var text strings.Builder
	var calls []models.ToolCall
	usage := 0
	for chunk := range chunks {
		if chunk.Error != nil {
			return text.String(), calls, usage, chunk.Error
		}
		if chunk.Text != "" {
			text.WriteString(chunk.Text)
			emit(Event{Kind: EventLLMChunk, Text: chunk.Text})
		}
		if chunk.ToolCall != nil {
			calls = append(calls, *chunk.ToolCall)
		}
		if chunk.Done {
			usage = chunk.InputTokens + chunk.OutputTokens
		}
	}
	return text.String(), calls, usage, nil
}

// executeTools dispatches one assistant turn's tool calls, overlapping
// independent calls up to MaxConcurrentTools while appending results in
// the original request order.
func (e *Executor) executeTools(ctx context.Context, calls []models.ToolCall, execCtx tools.ExecutionContext, budget time.Duration, emit func(Event)) []models.Message {
	sem := make(chan struct{}, e.cfg.MaxConcurrentTools)
	outcomes := make([]tools.Outcome, len(calls))
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(idx int, tc models.ToolCall) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			emit(Event{Kind: EventToolStart, ToolCall: &tc})
			callCtx := execCtx
			callCtx.ToolCallID = tc.ID
			outcomes[idx] = e.dispatcher.Dispatch(ctx, tc, callCtx, budget)
			emit(Event{Kind: EventToolEnd, ToolCall: &tc, Outcome: &outcomes[idx]})
		}(i, call)
	}
	wg.Wait()

	resultCap := ctxengine.ToolResultCap{MaxTokens: e.cfg.ToolResultMaxTokens}
	msgs := make([]models.Message, len(calls))
	for i, call := range calls {
		content := toolMessageContent(outcomes[i])
		capped := resultCap.CompactToolResult(ctxengine.Message{Role: "tool", Content: content, ToolCallID: call.ID}, e.counter)
		msgs[i] = models.Message{
			Role:       models.RoleTool,
			Content:    capped.Content,
			ToolCallID: call.ID,
			CreatedAt:  time.Now(),
		}
	}
	return msgs
}

// toolMessageContent renders an outcome into the tool message body the
// model sees. Dispatch failures surface their kind so the model can
// react ("PermissionDenied: ...", "HookVeto: ...").
func toolMessageContent(o tools.Outcome) string {
	if o.Err != nil {
		msg := o.Err.Error()
		switch o.Kind {
		case models.KindHookVeto:
			return "HookVeto: " + strings.TrimPrefix(msg, "hook veto: ")
		case models.KindPermissionDenied:
			return "PermissionDenied: " + strings.TrimPrefix(msg, "permission denied: ")
		case models.KindUnknownTool:
			return "UnknownTool: " + msg
		case models.KindInvalidArgs:
			return "InvalidArgs: " + msg
		default:
			return "ToolError: " + msg
		}
	}
	if o.Result == nil {
		return ""
	}
	return o.Result.Output
}

// fitMessages asks the context engine to reduce history to the budget,
// then repairs the head so no tool message survives without the
// assistant turn that requested it.
func (e *Executor) fitMessages(history []models.Message, budget int) []models.Message {
	engineMsgs := toEngineMessages(history)
	if e.counter.CountMessages(engineMsgs) <= budget {
		return history
	}
	kept := e.strategy.Truncate(engineMsgs, budget, e.counter)

	// Strategies keep the system prefix plus a suffix of the rest;
	// recover the corresponding original messages by position.
	systemKept := 0
	for _, m := range kept {
		if m.IsSystem() {
			systemKept++
		} else {
			break
		}
	}
	tailKept := len(kept) - systemKept

	var out []models.Message
	for _, m := range history {
		if m.Role == models.RoleSystem && systemKept > 0 {
			out = append(out, m)
			systemKept--
		}
	}
	nonSystem := make([]models.Message, 0, len(history))
	for _, m := range history {
		if m.Role != models.RoleSystem {
			nonSystem = append(nonSystem, m)
		}
	}
	if tailKept > len(nonSystem) {
		tailKept = len(nonSystem)
	}
	tail := nonSystem[len(nonSystem)-tailKept:]
	// Drop orphaned tool results at the head of the tail.
	for len(tail) > 0 && tail[0].Role == models.RoleTool {
		tail = tail[1:]
	}
	return append(out, tail...)
}

// compactHistory runs LLM-backed compaction over the middle of the
// conversation, keeping the system prefix and the most recent tail.
// Compaction never makes things worse: on summariser failure or an
// oversized summary the original history comes back unchanged.
func (e *Executor) compactHistory(ctx context.Context, history []models.Message, budget int, model string) []models.Message {
	engineMsgs := toEngineMessages(history)
	compacted := ctxengine.Compact(ctx, engineMsgs, budget, e.counter,
		NewProviderSummarizer(e.provider, model), ctxengine.CompactionConfig{PreserveLast: 4})
	if len(compacted) == len(engineMsgs) {
		return history
	}

	// Rebuild: system prefix, the synthetic summary message, then the
	// original tail the compaction preserved verbatim.
	out := make([]models.Message, 0, len(compacted))
	for i, m := range compacted {
		if m.IsSystem() {
			out = append(out, history[i])
			continue
		}
		if strings.HasPrefix(m.Content, "[Previous conversation summary]") {
			out = append(out, models.Message{Role: models.RoleUser, Content: m.Content, CreatedAt: time.Now()})
			continue
		}
		// Tail entries map to the end of the original history.
		tailLen := len(compacted) - i
		return append(out, history[len(history)-tailLen:]...)
	}
	return out
}

// inheritSummary compacts the parent's trailing messages into a single
// synthetic user message. Failure is non-fatal: the child just starts
// without inherited context.
func (e *Executor) inheritSummary(ctx context.Context, parent []models.Message) string {
	summarizer := NewProviderSummarizer(e.provider, e.cfg.DefaultModel)
	summary, err := summarizer.Summarize(ctx, toEngineMessages(parent))
	if err != nil || strings.TrimSpace(summary) == "" {
		e.logger.Warn(ctx, "inherit_context summarization failed", "error", err)
		return ""
	}
	return "[Previous conversation summary] " + summary
}

func (e *Executor) allowedTools(allowList []string) []models.ToolDefinition {
	all := e.registry.List()
	if len(allowList) == 0 {
		return all
	}
	allowed := make(map[string]bool, len(allowList))
	for _, name := range allowList {
		allowed[name] = true
	}
	out := make([]models.ToolDefinition, 0, len(all))
	for _, def := range all {
		if allowed[def.Name] {
			out = append(out, def)
		}
	}
	return out
}

// toolBudget computes the outer time bound handed to tool dispatch:
// the lesser of the iteration timeout and whatever remains of the
// agent's wall-clock budget.
func (e *Executor) toolBudget(cfg models.AgentConfiguration, state *runState) time.Duration {
	budget := e.cfg.IterationTimeout
	if cfg.TimeLimit > 0 {
		left := cfg.TimeLimit - time.Since(state.started)
		if left < budget {
			budget = left
		}
	}
	if budget < 0 {
		budget = time.Millisecond
	}
	return budget
}

func (e *Executor) interrupted(ctx context.Context, cancel *CancelToken) (string, bool) {
	if cancel != nil && cancel.Cancelled() {
		return ErrCancelled.Error(), true
	}
	if err := ctx.Err(); err != nil {
		return err.Error(), true
	}
	return "", false
}

// finish transitions the task to the state implied by the result and
// emits the terminal event for streaming consumers.
func (e *Executor) finish(task *models.AgentTask, state *runState, emit func(Event), res *models.AgentResult) *models.AgentResult {
	switch {
	case res.Success:
		task.Transition(models.StateCompleted)
	case strings.Contains(res.Error, ErrCancelled.Error()):
		task.Transition(models.StateCancelled)
	case strings.Contains(res.Error, ErrMaxTime.Error()):
		task.Transition(models.StateTimedOut)
	default:
		task.Transition(models.StateFailed)
	}
	emit(Event{Kind: EventAgentEnd, Result: res})
	return res
}

func failed(state *runState, reason string) *models.AgentResult {
	return &models.AgentResult{
		Success:       false,
		Error:         reason,
		TokensUsed:    state.tokensUsed,
		WallTime:      time.Since(state.started),
		ToolCallCount: state.toolCalls,
		Timestamp:     time.Now(),
	}
}

func cancelled(state *runState, reason string) *models.AgentResult {
	res := failed(state, ErrCancelled.Error())
	if reason != "" && reason != ErrCancelled.Error() {
		res.Error = ErrCancelled.Error() + ": " + reason
	}
	return res
}

// effectiveConfig overlays the task's configuration on the agent type's
// defaults, field by field.
func effectiveConfig(task, defaults models.AgentConfiguration) models.AgentConfiguration {
	out := task
	if out.TokenLimit <= 0 {
		out.TokenLimit = defaults.TokenLimit
	}
	if out.TimeLimit <= 0 {
		out.TimeLimit = defaults.TimeLimit
	}
	if out.MaxIterations <= 0 {
		out.MaxIterations = defaults.MaxIterations
	}
	if out.PreferredModel == "" {
		out.PreferredModel = defaults.PreferredModel
	}
	if len(out.ToolAllowList) == 0 {
		out.ToolAllowList = defaults.ToolAllowList
	}
	return out
}

func toCompletionMessages(history []models.Message) []CompletionMessage {
	out := make([]CompletionMessage, 0, len(history))
	for _, m := range history {
		cm := CompletionMessage{Role: string(m.Role), Content: m.Content, ToolCalls: m.ToolCalls}
		if m.Role == models.RoleTool {
			cm.ToolResults = []models.ToolResult{{ToolCallID: m.ToolCallID, Content: m.Content}}
			cm.Content = ""
		}
		out = append(out, cm)
	}
	return out
}

func toEngineMessages(history []models.Message) []ctxengine.Message {
	out := make([]ctxengine.Message, 0, len(history))
	for _, m := range history {
		out = append(out, ctxengine.Message{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID})
	}
	return out
}

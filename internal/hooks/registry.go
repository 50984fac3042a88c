package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry manages in-process handler registrations and subprocess hook
// configuration, and dispatches events to both.
type Registry struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers []*Registration
	byID     map[string]*Registration

	subMu      sync.RWMutex
	subprocess []SubprocessHook
}

// NewRegistry creates an empty hook registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger: logger.With("component", "hooks"),
		byID:   make(map[string]*Registration),
	}
}

// RegisterOption configures a Register call.
type RegisterOption func(*Registration)

func WithPriority(p Priority) RegisterOption { return func(r *Registration) { r.Priority = p } }
func WithName(name string) RegisterOption    { return func(r *Registration) { r.Name = name } }
func WithSource(source string) RegisterOption { return func(r *Registration) { r.Source = source } }

// Register adds an in-process handler for events matching pattern (see
// matchKey for the pattern grammar). Returns a registration ID usable
// with Unregister.
func (r *Registry) Register(pattern string, handler Handler, opts ...RegisterOption) string {
	reg := &Registration{
		ID:       uuid.New().String(),
		Pattern:  pattern,
		Handler:  handler,
		Priority: PriorityNormal,
	}
	for _, opt := range opts {
		opt(reg)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, reg)
	r.byID[reg.ID] = reg
	sort.SliceStable(r.handlers, func(i, j int) bool { return r.handlers[i].Priority < r.handlers[j].Priority })

	r.logger.Debug("registered hook", "id", reg.ID, "pattern", pattern, "name", reg.Name, "priority", reg.Priority)
	return reg.ID
}

// Unregister removes a previously-registered in-process handler.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	for i, h := range r.handlers {
		if h.ID == id {
			r.handlers = append(r.handlers[:i], r.handlers[i+1:]...)
			break
		}
	}
	return true
}

// AddSubprocessHook registers an external command to be invoked for
// matching events.
func (r *Registry) AddSubprocessHook(h SubprocessHook) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	r.subprocess = append(r.subprocess, h)
}

func (r *Registry) matchingHandlers(key Key) []*Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Registration
	for _, h := range r.handlers {
		if matchKey(h.Pattern, key) {
			out = append(out, h)
		}
	}
	return out
}

func (r *Registry) matchingSubprocessHooks(key Key) []SubprocessHook {
	r.subMu.RLock()
	defer r.subMu.RUnlock()
	var out []SubprocessHook
	for _, h := range r.subprocess {
		if h.Enabled && matchKey(h.Pattern, key) {
			out = append(out, h)
		}
	}
	return out
}

// Trigger dispatches an event to every matching in-process handler (in
// priority order) and subprocess hook (concurrently). A non-nil error
// from any handler on a pre_execute key vetoes the action; the first
// veto reason is returned. All other handler errors are collected but
// do not block dispatch.
func (r *Registry) Trigger(ctx context.Context, p *Payload) Outcome {
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now()
	}
	key := p.Key()
	isPreExecute := p.Category == CategoryTool && p.Event == EventPreExecute

	var outcome Outcome

	for _, h := range r.matchingHandlers(key) {
		err := r.callHandler(ctx, h, p)
		if err == nil {
			continue
		}
		outcome.Errs = append(outcome.Errs, err)
		r.logger.Warn("hook handler error", "key", key, "handler", h.Name, "error", err)
		if isPreExecute && !outcome.Vetoed {
			outcome.Vetoed = true
			outcome.Reason = err.Error()
		}
	}

	subHooks := r.matchingSubprocessHooks(key)
	if len(subHooks) > 0 {
		results := dispatchSubprocessHooks(ctx, subHooks, p)
		for _, res := range results {
			if res.err != nil {
				outcome.Errs = append(outcome.Errs, res.err)
				r.logger.Warn("subprocess hook error", "key", key, "command", res.hook.Command, "error", res.err)
			}
			if isPreExecute && res.vetoed && !outcome.Vetoed {
				outcome.Vetoed = true
				outcome.Reason = res.reason
			}
		}
	}

	return outcome
}

// TriggerAsync fires Trigger in a goroutine and discards the outcome,
// logging any error. Use for events where nothing waits on a veto
// decision (post_execute, session lifecycle, and so on).
func (r *Registry) TriggerAsync(ctx context.Context, p *Payload) {
	go func() {
		outcome := r.Trigger(ctx, p)
		if len(outcome.Errs) > 0 {
			r.logger.Warn("async hook dispatch had errors", "key", p.Key(), "count", len(outcome.Errs))
		}
	}()
}

func (r *Registry) callHandler(ctx context.Context, reg *Registration, p *Payload) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("hook panic: %v", rec)
		}
	}()
	return reg.Handler(ctx, p)
}

// RegisteredPatterns returns the patterns of all registered in-process
// handlers, for diagnostics.
func (r *Registry) RegisteredPatterns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for _, h := range r.handlers {
		out = append(out, h.Pattern)
	}
	return out
}

func sanitizeEnvKey(key string) string {
	var b strings.Builder
	for _, c := range strings.ToUpper(key) {
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			b.WriteRune(c)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

package agent

import "sync"

// CancelToken is the per-agent cancellation primitive: a shared flag
// plus a broadcast channel. Setting it is idempotent and irreversible;
// the executor checks it at every suspension point and running tools
// observe it through their context.
type CancelToken struct {
	mu        sync.Mutex
	cancelled bool
	done      chan struct{}
}

// NewCancelToken returns an unset token.
func NewCancelToken() *CancelToken {
	return &CancelToken{done: make(chan struct{})}
}

// Cancel sets the token. Safe to call more than once.
func (t *CancelToken) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return
	}
	t.cancelled = true
	close(t.done)
}

// Cancelled reports whether the token has been set.
func (t *CancelToken) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Done returns a channel closed when the token is set, for select-based
// waiting alongside context channels.
func (t *CancelToken) Done() <-chan struct{} {
	return t.done
}

package shell

import (
	"log/slog"
	"sync"
	"time"
)

// Registry tracks running and finished shell sessions. Manager.Create
// rejects any new ID already present in either map, so a caller is never
// handed an ID that aliases a session still visible in the running or
// finished list.
type Registry struct {
	mu               sync.RWMutex
	runningSessions  map[string]*Session
	finishedSessions map[string]*FinishedSession
	logger           *slog.Logger
	sessionTTL       time.Duration

	sweeperStop chan struct{}
	sweeperDone chan struct{}
}

// NewRegistry creates a registry with the default session TTL.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		runningSessions:  make(map[string]*Session),
		finishedSessions: make(map[string]*FinishedSession),
		logger:           logger.With("component", "shell_registry"),
		sessionTTL:       DefaultSessionTTL,
	}
}

// ClampTTL keeps a requested TTL within [MinSessionTTL, MaxSessionTTL].
func ClampTTL(ttl time.Duration) time.Duration {
	if ttl < MinSessionTTL {
		return MinSessionTTL
	}
	if ttl > MaxSessionTTL {
		return MaxSessionTTL
	}
	return ttl
}

// SetSessionTTL updates the finished-session TTL and restarts the sweeper.
func (r *Registry) SetSessionTTL(ttl time.Duration) {
	r.mu.Lock()
	r.sessionTTL = ClampTTL(ttl)
	r.mu.Unlock()

	r.StopSweeper()
	r.StartSweeper()
}

// IsSessionIDTaken reports whether id is already in use by either a
// running or a finished session.
func (r *Registry) IsSessionIDTaken(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, running := r.runningSessions[id]
	_, finished := r.finishedSessions[id]
	return running || finished
}

// AddSession registers a new running session and starts the sweeper if
// it isn't already running.
func (r *Registry) AddSession(s *Session) {
	if s == nil {
		return
	}
	r.mu.Lock()
	r.runningSessions[s.ID] = s
	r.mu.Unlock()

	r.StartSweeper()
	r.logger.Debug("added session", "id", s.ID, "command", s.Command, "pid", s.PID)
}

// GetSession retrieves a running session by ID.
func (r *Registry) GetSession(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.runningSessions[id]
	return s, ok
}

// GetFinishedSession retrieves a finished session by ID.
func (r *Registry) GetFinishedSession(id string) (*FinishedSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.finishedSessions[id]
	return s, ok
}

// SetCancel attaches the function that terminates s's underlying process,
// called by Cancel or by the TTL sweeper. Manager.Create supplies this
// right after starting the process; the registry never spawns anything
// itself.
func (r *Registry) SetCancel(s *Session, cancel func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.cancel = cancel
}

// Cancel terminates a running session's process, if a cancel func was
// attached. Safe to call more than once.
func (r *Registry) Cancel(s *Session) {
	r.mu.Lock()
	cancel := s.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// DeleteSession removes a session from both maps.
func (r *Registry) DeleteSession(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runningSessions, id)
	delete(r.finishedSessions, id)
}

// AppendOutput appends a chunk of output from one stream ("stdout" or
// "stderr") to a session's pending buffer, capping the pending buffer
// and the aggregated output independently.
func (r *Registry) AppendOutput(s *Session, stream string, chunk string) {
	if s == nil || chunk == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s.PendingStdout == nil {
		s.PendingStdout = make([]string, 0)
	}
	if s.PendingStderr == nil {
		s.PendingStderr = make([]string, 0)
	}

	pendingCap := s.PendingMaxOutputChars
	if pendingCap <= 0 {
		pendingCap = DefaultPendingOutputChars
	}
	if s.MaxOutputChars > 0 && pendingCap > s.MaxOutputChars {
		pendingCap = s.MaxOutputChars
	}

	var buffer *[]string
	var pendingChars *int
	if stream == "stdout" {
		buffer = &s.PendingStdout
		pendingChars = &s.PendingStdoutChars
	} else {
		buffer = &s.PendingStderr
		pendingChars = &s.PendingStderrChars
	}

	*buffer = append(*buffer, chunk)
	*pendingChars += len(chunk)
	if *pendingChars > pendingCap {
		s.Truncated = true
		*pendingChars = capPendingBuffer(buffer, *pendingChars, pendingCap)
	}

	s.TotalOutputChars += len(chunk)

	maxOutput := s.MaxOutputChars
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutputChars
	}
	newAggregated := TrimWithCap(s.Aggregated+chunk, maxOutput)
	if len(newAggregated) < len(s.Aggregated)+len(chunk) {
		s.Truncated = true
	}
	s.Aggregated = newAggregated
	s.Tail = Tail(s.Aggregated, DefaultTailChars)
}

// DrainSession returns and clears a session's pending stdout/stderr, the
// non-blocking poll a caller uses to read output since its last drain
// without re-reading bytes it already saw.
func (r *Registry) DrainSession(s *Session) (stdout, stderr string) {
	if s == nil {
		return "", ""
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, chunk := range s.PendingStdout {
		stdout += chunk
	}
	for _, chunk := range s.PendingStderr {
		stderr += chunk
	}

	s.PendingStdout = make([]string, 0)
	s.PendingStderr = make([]string, 0)
	s.PendingStdoutChars = 0
	s.PendingStderrChars = 0

	return stdout, stderr
}

// MarkExited records a session's exit and, if it was backgrounded,
// moves it into the finished map.
func (r *Registry) MarkExited(s *Session, exitCode *int, exitSignal string, status Status) {
	if s == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// First terminal status wins: a wait that times out a session must
	// not be overwritten when the killed process is later reaped.
	if s.Exited {
		return
	}
	s.Exited = true
	s.ExitCode = exitCode
	s.ExitSignal = exitSignal
	s.Tail = Tail(s.Aggregated, DefaultTailChars)

	r.moveToFinishedLocked(s, status)
}

// MarkBackgrounded marks a session as surviving past its originating
// call, which is what lets it persist into the finished map on exit.
func (r *Registry) MarkBackgrounded(s *Session) {
	if s == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s.Backgrounded = true
}

func (r *Registry) moveToFinishedLocked(s *Session, status Status) {
	delete(r.runningSessions, s.ID)
	if !s.Backgrounded {
		return
	}

	r.finishedSessions[s.ID] = &FinishedSession{
		ID:               s.ID,
		Command:          s.Command,
		StartedAt:        s.StartedAt,
		EndedAt:          time.Now(),
		CWD:              s.CWD,
		Status:           status,
		ExitCode:         s.ExitCode,
		ExitSignal:       s.ExitSignal,
		Aggregated:       s.Aggregated,
		Tail:             s.Tail,
		Truncated:        s.Truncated,
		TotalOutputChars: s.TotalOutputChars,
	}
	r.logger.Debug("session finished", "id", s.ID, "status", status, "exit_code", s.ExitCode)
}

// ListRunningSessions returns every backgrounded session still running.
func (r *Registry) ListRunningSessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0)
	for _, s := range r.runningSessions {
		if s.Backgrounded {
			out = append(out, s)
		}
	}
	return out
}

// ListFinishedSessions returns every finished session still within TTL.
func (r *Registry) ListFinishedSessions() []*FinishedSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*FinishedSession, 0, len(r.finishedSessions))
	for _, s := range r.finishedSessions {
		out = append(out, s)
	}
	return out
}

// ClearFinished discards every finished session immediately.
func (r *Registry) ClearFinished() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishedSessions = make(map[string]*FinishedSession)
}

// Reset clears all sessions and stops the sweeper. Intended for tests.
func (r *Registry) Reset() {
	r.StopSweeper()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runningSessions = make(map[string]*Session)
	r.finishedSessions = make(map[string]*FinishedSession)
}

// StartSweeper starts the background goroutine that prunes finished
// sessions past their TTL. A no-op if already running.
func (r *Registry) StartSweeper() {
	r.mu.Lock()
	if r.sweeperStop != nil {
		r.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	r.sweeperStop = stop
	r.sweeperDone = done
	ttl := r.sessionTTL
	r.mu.Unlock()

	interval := ttl / 6
	if interval < 30*time.Second {
		interval = 30 * time.Second
	}
	go r.sweepLoop(interval, stop, done)
}

// StopSweeper stops the background sweeper, blocking until it exits.
func (r *Registry) StopSweeper() {
	r.mu.Lock()
	if r.sweeperStop == nil {
		r.mu.Unlock()
		return
	}
	stop := r.sweeperStop
	done := r.sweeperDone
	r.sweeperStop = nil
	r.sweeperDone = nil
	r.mu.Unlock()

	close(stop)
	<-done
}

func (r *Registry) sweepLoop(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.pruneFinishedSessions()
		}
	}
}

func (r *Registry) pruneFinishedSessions() {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-r.sessionTTL)
	for id, s := range r.finishedSessions {
		if s.EndedAt.Before(cutoff) {
			delete(r.finishedSessions, id)
			r.logger.Debug("pruned finished session", "id", id)
		}
	}
}

// RunningCount returns the number of sessions currently running.
func (r *Registry) RunningCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runningSessions)
}

// FinishedCount returns the number of sessions awaiting TTL eviction.
func (r *Registry) FinishedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.finishedSessions)
}

// Tail returns the last n characters of text.
func Tail(text string, n int) string {
	if len(text) <= n {
		return text
	}
	return text[len(text)-n:]
}

// TrimWithCap trims text to at most max characters, keeping the end.
func TrimWithCap(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[len(text)-max:]
}

// capPendingBuffer trims buffer in place to fit within cap characters,
// returning the new total character count.
func capPendingBuffer(buffer *[]string, pendingChars, cap int) int {
	if pendingChars <= cap {
		return pendingChars
	}

	if len(*buffer) > 0 {
		last := (*buffer)[len(*buffer)-1]
		if len(last) >= cap {
			*buffer = []string{last[len(last)-cap:]}
			return cap
		}
	}

	for len(*buffer) > 0 && pendingChars-len((*buffer)[0]) >= cap {
		pendingChars -= len((*buffer)[0])
		*buffer = (*buffer)[1:]
	}

	if len(*buffer) > 0 && pendingChars > cap {
		overflow := pendingChars - cap
		(*buffer)[0] = (*buffer)[0][overflow:]
		pendingChars = cap
	}

	return pendingChars
}

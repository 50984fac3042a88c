package config

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadEvent is posted to a Watcher's channel whenever one of its
// watched files changes and a successful reparse produces a new Config.
type ReloadEvent struct {
	Config *Config
	Path   string
}

// Watcher runs a dedicated fsnotify goroutine over the configured file
// paths and posts ReloadEvent values to Events() on change, debounced so
// a burst of writes (editors often truncate-then-write) yields one
// reload. No caller ever blocks on the watcher: Events() is
// buffered and a full buffer simply drops the oldest pending reload.
type Watcher struct {
	sources Sources
	logger  *slog.Logger
	debounce time.Duration

	events chan ReloadEvent

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher creates a Watcher over the same Sources a one-shot Load
// would read, with a 250ms debounce.
func NewWatcher(sources Sources, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		sources:  sources,
		logger:   logger.With("component", "config_watcher"),
		debounce: 250 * time.Millisecond,
		events:   make(chan ReloadEvent, 8),
	}
}

// Events returns the channel ReloadEvents are posted to.
func (w *Watcher) Events() <-chan ReloadEvent { return w.events }

// Start begins watching. It is idempotent; a second call while already
// running is a no-op.
func (w *Watcher) Start(ctx context.Context, environ []string) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return nil
	}
	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.mu.Unlock()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, path := range []string{w.sources.Enterprise, w.sources.UserHome, w.sources.Project, w.sources.ProjectLocal} {
		if path == "" {
			continue
		}
		if err := fsw.Add(path); err != nil {
			w.logger.Debug("skip watch path", "path", path, "error", err)
		}
	}

	go w.loop(watchCtx, fsw, environ)
	return nil
}

// Stop cancels the watch goroutine and blocks until it exits.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	done := w.done
	w.cancel = nil
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, environ []string) {
	defer close(w.done)
	defer fsw.Close()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-fsw.Events:
			if !ok {
				return
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			timerC = timer.C
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		case <-timerC:
			timerC = nil
			cfg, err := Load(w.sources, environ)
			if err != nil {
				w.logger.Warn("reload failed", "error", err)
				continue
			}
			select {
			case w.events <- ReloadEvent{Config: cfg}:
			default:
				select {
				case <-w.events:
				default:
				}
				w.events <- ReloadEvent{Config: cfg}
			}
		}
	}
}

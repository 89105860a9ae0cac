// Package watcher reports AOI files dropped into a directory.
package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Operation represents the type of file operation.
type Operation int

// File operation types.
const (
	OpCreate Operation = iota
	OpModify
	OpDelete
)

// String returns the string representation of the operation.
func (o Operation) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Handler receives the path of a file that was created or modified and
// has been quiet for the debounce interval. It must not block.
type Handler func(path string)

// Filter selects the files the watcher reports.
type Filter func(path string) bool

// Config holds watcher configuration.
type Config struct {
	Dir      string
	Debounce time.Duration
	Filter   Filter
}

// Watcher watches a drop directory. Files still being written produce a
// burst of events; only the last one, after the debounce interval, is reported.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	handler   Handler
	filter    Filter
	logger    *slog.Logger
	dir       string
	debounce  time.Duration

	mu      sync.Mutex
	pending map[string]time.Time // Last event time by path
	done    chan struct{}
}

// New creates a new drop folder watcher.
func New(cfg Config, handler Handler, logger *slog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if cfg.Debounce == 0 {
		cfg.Debounce = 2 * time.Second
	}
	if cfg.Filter == nil {
		cfg.Filter = func(string) bool { return true }
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		handler:   handler,
		filter:    cfg.Filter,
		logger:    logger,
		dir:       cfg.Dir,
		debounce:  cfg.Debounce,
		pending:   make(map[string]time.Time),
		done:      make(chan struct{}),
	}, nil
}

// Start starts watching the drop directory.
func (w *Watcher) Start(ctx context.Context) error {
	absPath, err := filepath.Abs(w.dir)
	if err != nil {
		return err
	}
	if err := w.fsWatcher.Add(absPath); err != nil {
		return err
	}

	w.logger.Info("watching drop folder", "path", absPath, "debounce", w.debounce)

	go w.eventLoop(ctx)
	go w.debounceLoop(ctx)

	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	select {
	case <-w.done:
	default:
		close(w.done)
	}
	return w.fsWatcher.Close()
}

// eventLoop processes fsnotify events.
func (w *Watcher) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.record(event.Name, toOperation(event.Op), time.Now())

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// record adds an event to the pending set. A file that disappears is
// dropped from it.
func (w *Watcher) record(path string, op Operation, at time.Time) {
	if !w.filter(path) {
		return
	}

	w.logger.Debug("file event", "path", path, "op", op.String())

	w.mu.Lock()
	defer w.mu.Unlock()

	if op == OpDelete {
		delete(w.pending, path)
		return
	}
	w.pending[path] = at
}

// debounceLoop reports files whose last event is older than the debounce interval.
func (w *Watcher) debounceLoop(ctx context.Context) {
	tick := w.debounce / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case now := <-ticker.C:
			for _, path := range w.due(now) {
				w.logger.Info("file ready", "path", path)
				w.handler(path)
			}
		}
	}
}

// due removes and returns the pending paths that have settled.
func (w *Watcher) due(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var ready []string
	for path, last := range w.pending {
		if now.Sub(last) < w.debounce {
			continue
		}
		delete(w.pending, path)
		ready = append(ready, path)
	}
	return ready
}

// toOperation converts fsnotify.Op to our Operation type.
func toOperation(op fsnotify.Op) Operation {
	switch {
	case op.Has(fsnotify.Remove):
		return OpDelete
	case op.Has(fsnotify.Rename):
		// The file is gone from the watched name
		return OpDelete
	case op.Has(fsnotify.Create):
		return OpCreate
	default:
		return OpModify
	}
}

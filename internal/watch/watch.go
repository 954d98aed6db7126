// Package watch reports content changes of a set of files. It watches their
// directories with fsnotify and compares content hashes, so editors that
// rewrite a file without changing it do not trigger a check.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/zeebo/blake3"

	"prosa/internal/logging"
)

// DefaultSettle is how long events on a file are collected before its
// content is compared.
const DefaultSettle = 100 * time.Millisecond

type fileState struct {
	hash   [32]byte
	exists bool
}

// Watcher tracks a replaceable set of files.
type Watcher struct {
	fsw    *fsnotify.Watcher
	log    *slog.Logger
	settle time.Duration

	mu    sync.Mutex
	files map[string]fileState
	dirs  map[string]bool
}

// New starts an fsnotify watcher. settle <= 0 selects DefaultSettle.
func New(settle time.Duration, log *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if settle <= 0 {
		settle = DefaultSettle
	}
	return &Watcher{
		fsw:    fsw,
		log:    logging.OrDiscard(log),
		settle: settle,
		files:  make(map[string]fileState),
		dirs:   make(map[string]bool),
	}, nil
}

// Track replaces the tracked set with paths and records their current
// content. Directories are watched once and kept.
func (w *Watcher) Track(paths []string) error {
	files := make(map[string]fileState, len(paths))
	var errs []error
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		files[abs] = stateOf(abs)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.files = files
	for path := range files {
		dir := filepath.Dir(path)
		if w.dirs[dir] {
			continue
		}
		if err := w.fsw.Add(dir); err != nil {
			errs = append(errs, err)
			continue
		}
		w.dirs[dir] = true
		w.log.Debug("watching directory", "path", dir)
	}
	return errors.Join(errs...)
}

// Run delivers changed paths to onChange until ctx is done or the watcher
// is closed. onChange is called from Run's goroutine.
func (w *Watcher) Run(ctx context.Context, onChange func(path string)) error {
	pending := make(map[string]bool)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			path := filepath.Clean(event.Name)
			if !w.tracked(path) || event.Op == fsnotify.Chmod {
				continue
			}
			if len(pending) == 0 {
				timer.Reset(w.settle)
			}
			pending[path] = true

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", "err", err)

		case <-timer.C:
			for path := range pending {
				if w.changed(path) {
					w.log.Debug("file changed", "path", path)
					onChange(path)
				}
			}
			clear(pending)
		}
	}
}

// Close stops the fsnotify watcher; Run returns.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) tracked(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.files[path]
	return ok
}

// changed re-reads path and reports whether its content differs from the
// last recorded state. A removed file counts as a change once.
func (w *Watcher) changed(path string) bool {
	now := stateOf(path)
	w.mu.Lock()
	defer w.mu.Unlock()
	old, ok := w.files[path]
	if !ok {
		return false
	}
	w.files[path] = now
	return old != now
}

func stateOf(path string) fileState {
	content, err := os.ReadFile(path)
	if err != nil {
		return fileState{}
	}
	return fileState{hash: blake3.Sum256(content), exists: true}
}

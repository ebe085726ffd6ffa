// Package filewatch invalidates knowledge entries when their source files
// change on disk. A recursive fsnotify watcher feeds a debounce window so
// editor save bursts collapse into one invalidation per path.
package filewatch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/docfold/memoria/pkg/logging"
)

// ChangeType describes the kind of file change observed.
type ChangeType string

const (
	ChangeCreated  ChangeType = "created"
	ChangeModified ChangeType = "modified"
	ChangeDeleted  ChangeType = "deleted"
	ChangeRenamed  ChangeType = "renamed"
)

const (
	defaultDebounce   = 500 * time.Millisecond
	defaultMaxHistory = 100
)

// FileChange records one observed change to a tracked file.
type FileChange struct {
	Path string     `json:"path"`
	Type ChangeType `json:"type"`
	At   time.Time  `json:"at"`
}

// Invalidator removes knowledge tied to a file path. Satisfied by the
// context assembler, which clears both its cache and the entry store.
type Invalidator interface {
	InvalidateFile(path string) int
}

// Stats summarizes watcher activity.
type Stats struct {
	Invalidations  int       `json:"invalidations"`
	EntriesRemoved int       `json:"entriesRemoved"`
	Errors         int       `json:"errors"`
	LastPath       string    `json:"lastPath,omitempty"`
	LastAt         time.Time `json:"lastAt,omitempty"`
}

// Watcher owns the fsnotify loop. Paths are invalidated exactly as the
// filesystem reports them, so producers that want watch coverage must
// store the same path representation (see ingest).
type Watcher struct {
	mu          sync.Mutex
	fs          *fsnotify.Watcher
	invalidator Invalidator
	roots       []string
	exts        map[string]struct{}
	debounce    time.Duration
	pending     map[string]time.Time
	recent      []FileChange
	maxHistory  int
	stats       Stats
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// Options configures a Watcher.
type Options struct {
	Roots       []string
	Extensions  []string
	Debounce    time.Duration
	MaxHistory  int
	Invalidator Invalidator
}

// New creates a watcher for the given roots. Extensions are matched
// case-insensitively; a missing leading dot is tolerated.
func New(opts Options) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = defaultMaxHistory
	}
	exts := make(map[string]struct{}, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = struct{}{}
	}
	return &Watcher{
		fs:          fsw,
		invalidator: opts.Invalidator,
		roots:       opts.Roots,
		exts:        exts,
		debounce:    opts.Debounce,
		pending:     make(map[string]time.Time),
		maxHistory:  opts.MaxHistory,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start registers the roots recursively and launches the event loop.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	for _, root := range w.roots {
		if err := w.addRecursive(root); err != nil {
			logging.Warn(logging.CategoryWatch, "watch_root_failed", "skipping unwatchable root", map[string]any{
				"root":  root,
				"error": err.Error(),
			})
		}
	}
	logging.Info(logging.CategoryWatch, "watch_started", "file watcher running", map[string]any{
		"roots":      w.roots,
		"extensions": len(w.exts),
	})

	go w.run(ctx)
	return nil
}

// Stop halts the loop and closes the underlying watcher. Safe to call
// more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	if err := w.fs.Close(); err != nil {
		logging.Warn(logging.CategoryWatch, "watch_close_failed", "error closing watcher", map[string]any{
			"error": err.Error(),
		})
	}
}

// WatchedDirs returns the directories currently registered.
func (w *Watcher) WatchedDirs() []string {
	return w.fs.WatchList()
}

// RecentChanges returns the most recent changes, newest first.
func (w *Watcher) RecentChanges(limit int) []FileChange {
	w.mu.Lock()
	defer w.mu.Unlock()
	if limit <= 0 || limit > len(w.recent) {
		limit = len(w.recent)
	}
	out := make([]FileChange, 0, limit)
	for i := len(w.recent) - 1; i >= len(w.recent)-limit; i-- {
		out = append(out, w.recent[i])
	}
	return out
}

// Stats returns a snapshot of watcher activity.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return w.fs.Add(path)
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	sweep := time.NewTicker(w.debounce / 4)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
			logging.Warn(logging.CategoryWatch, "watch_error", "watcher reported error", map[string]any{
				"error": err.Error(),
			})
		case <-sweep.C:
			w.flushSettled()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				logging.Warn(logging.CategoryWatch, "watch_add_failed", "cannot watch new directory", map[string]any{
					"path":  event.Name,
					"error": err.Error(),
				})
			}
			return
		}
	}

	var change ChangeType
	switch {
	case event.Op&fsnotify.Create != 0:
		change = ChangeCreated
	case event.Op&fsnotify.Write != 0:
		change = ChangeModified
	case event.Op&fsnotify.Remove != 0:
		change = ChangeDeleted
	case event.Op&fsnotify.Rename != 0:
		change = ChangeRenamed
	default:
		return
	}

	if !w.tracked(event.Name) {
		return
	}

	now := time.Now()
	w.mu.Lock()
	w.pending[event.Name] = now
	w.recent = append(w.recent, FileChange{Path: event.Name, Type: change, At: now})
	if len(w.recent) > w.maxHistory {
		w.recent = w.recent[len(w.recent)-w.maxHistory:]
	}
	w.mu.Unlock()
}

// flushSettled invalidates paths whose last event is older than the
// debounce window.
func (w *Watcher) flushSettled() {
	now := time.Now()
	var settled []string
	w.mu.Lock()
	for path, last := range w.pending {
		if now.Sub(last) >= w.debounce {
			settled = append(settled, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for _, path := range settled {
		removed := 0
		if w.invalidator != nil {
			removed = w.invalidator.InvalidateFile(path)
		}
		w.mu.Lock()
		w.stats.Invalidations++
		w.stats.EntriesRemoved += removed
		w.stats.LastPath = path
		w.stats.LastAt = now
		w.mu.Unlock()
		logging.Info(logging.CategoryWatch, "file_invalidated", "invalidated knowledge for changed file", map[string]any{
			"path":    path,
			"removed": removed,
		})
	}
}

// tracked reports whether the path's extension is watched. An empty
// extension set tracks everything.
func (w *Watcher) tracked(path string) bool {
	if len(w.exts) == 0 {
		return true
	}
	_, ok := w.exts[strings.ToLower(filepath.Ext(path))]
	return ok
}

package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the coalescing window applied when none is configured.
const DefaultDebounce = 100 * time.Millisecond

// stopTimeout bounds how long Stop waits for pump goroutines to join.
const stopTimeout = 5 * time.Second

// Invalidator is the slice of the cache manager the watcher depends on.
type Invalidator interface {
	InvalidateCache(ctx context.Context, projectID string) error
	InvalidateAll(ctx context.Context) error
}

// Config carries the watcher's tunables. Zero values select defaults.
type Config struct {
	// Debounce is the coalescing window for bursts of events.
	Debounce time.Duration

	// ManifestPath is the global manifest file; a change there maps to a
	// global invalidation. Optional.
	ManifestPath string

	// ProfileRoots are the recognized deployment subdirectory names.
	// Defaults to DefaultProfileRoots.
	ProfileRoots []string

	// Extensions are the recognized file types. Defaults to
	// DefaultExtensions.
	Extensions []string
}

// Watcher monitors configured filesystem roots and drives debounced cache
// invalidation. Safe for concurrent use.
type Watcher struct {
	inv Invalidator
	log *slog.Logger
	rel *relevance
	now func() time.Time

	// mu guards lifecycle state and the live watch set.
	mu      sync.Mutex
	roots   map[string]*rootWatch
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup

	// pendMu guards the debounce map only. Never held across a manager
	// call: dispatch happens after keys are taken out.
	pendMu  sync.Mutex
	pending *debouncer

	// projMu guards the project refs used for key resolution.
	projMu   sync.RWMutex
	projects []ProjectRef
}

// rootWatch is one watched root: its own fsnotify subscription plus a pump
// goroutine draining it.
type rootWatch struct {
	path string
	fsw  *fsnotify.Watcher
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatchLogger sets the watcher's logger. Defaults to slog.Default().
func WithWatchLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.log = l }
}

// WithWatchClock overrides the debounce time source for tests.
func WithWatchClock(now func() time.Time) WatcherOption {
	return func(w *Watcher) { w.now = now }
}

// NewWatcher creates a watcher that invalidates through inv.
func NewWatcher(inv Invalidator, cfg Config, opts ...WatcherOption) *Watcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if len(cfg.ProfileRoots) == 0 {
		cfg.ProfileRoots = DefaultProfileRoots
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = DefaultExtensions
	}

	w := &Watcher{
		inv:     inv,
		log:     slog.Default(),
		rel:     newRelevance(cfg.ManifestPath, cfg.ProfileRoots, cfg.Extensions),
		now:     time.Now,
		roots:   make(map[string]*rootWatch),
		pending: newDebouncer(cfg.Debounce),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// SetProjects replaces the project set used for invalidation-key
// resolution. Call after population or refresh changes project paths.
func (w *Watcher) SetProjects(refs []ProjectRef) {
	sorted := sortProjects(refs)
	w.projMu.Lock()
	w.projects = sorted
	w.projMu.Unlock()
}

// Start begins watching the given root paths and starts the debounce
// ticker. Unreachable roots are skipped and logged, leaving the remaining
// watch set active. Starting an already-running watcher is an error.
func (w *Watcher) Start(ctx context.Context, paths []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}
	w.stop = make(chan struct{})
	w.running = true

	for _, path := range paths {
		if err := w.addRootLocked(ctx, path); err != nil {
			// Non-fatal: a missing root is skipped, the rest stay active
			w.log.Warn("skipping unwatchable root", "path", path, "error", err)
		}
	}

	w.wg.Add(1)
	go w.tickLoop(ctx)

	w.log.Info("watcher started", "roots", len(w.roots))
	return nil
}

// Stop drains pending invalidations and shuts down all subscriptions.
// Safe to call multiple times; only the first call does work. In-flight
// invalidations already dispatched run to completion.
func (w *Watcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.stop)
	for path, root := range w.roots {
		if err := root.fsw.Close(); err != nil {
			w.log.Warn("closing root subscription failed", "path", path, "error", err)
		}
		delete(w.roots, path)
	}
	w.mu.Unlock()

	// Join the pump and ticker goroutines, bounded by stopTimeout
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopTimeout):
		w.log.Warn("watcher goroutines did not join before timeout")
	}

	// Drain: no already-queued invalidation is dropped on shutdown
	w.flush(ctx, true)
	w.log.Info("watcher stopped")
	return nil
}

// IsRunning reports lifecycle state.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// AddWatchPath adds a root to the live watch set without a restart.
func (w *Watcher) AddWatchPath(ctx context.Context, path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return fmt.Errorf("watcher not running")
	}
	return w.addRootLocked(ctx, path)
}

// RemoveWatchPath removes a root from the live watch set. Removing an
// unknown path is a no-op.
func (w *Watcher) RemoveWatchPath(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	clean := filepath.Clean(path)
	root, ok := w.roots[clean]
	if !ok {
		return nil
	}
	delete(w.roots, clean)
	return root.fsw.Close()
}

// WatchedPaths returns the current root set, for observability.
func (w *Watcher) WatchedPaths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	paths := make([]string, 0, len(w.roots))
	for path := range w.roots {
		paths = append(paths, path)
	}
	return paths
}

// addRootLocked subscribes one root and starts its pump goroutine.
// Caller holds w.mu.
func (w *Watcher) addRootLocked(ctx context.Context, path string) error {
	clean := filepath.Clean(path)
	if _, exists := w.roots[clean]; exists {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}

	// fsnotify is not recursive: watch the root and every directory below
	// it. Directories created later are added by the pump.
	if err := addTree(fsw, clean); err != nil {
		fsw.Close()
		return err
	}

	root := &rootWatch{path: clean, fsw: fsw}
	w.roots[clean] = root

	w.wg.Add(1)
	go w.pump(ctx, root)

	w.log.Debug("watching root", "path", clean)
	return nil
}

// addTree registers path and all nested directories with the subscription.
func addTree(fsw *fsnotify.Watcher, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		// Watch the parent so the file itself may appear/disappear
		// (the global manifest case)
		if err := fsw.Add(filepath.Dir(path)); err != nil {
			return fmt.Errorf("watch parent of %s: %w", path, err)
		}
		return nil
	}

	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := fsw.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}

// pump drains one root's notifications until the subscription closes.
func (w *Watcher) pump(ctx context.Context, root *rootWatch) {
	defer w.wg.Done()

	for {
		select {
		case <-w.stop:
			return
		case ev, ok := <-root.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(root, ev)
		case err, ok := <-root.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", "root", root.path, "error", err)
		}
	}
}

// handleEvent applies the relevance filter and records surviving events in
// the debounce map.
func (w *Watcher) handleEvent(root *rootWatch, ev fsnotify.Event) {
	// Newly created directories join the subscription so nested changes
	// keep arriving
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := root.fsw.Add(ev.Name); err != nil {
				w.log.Warn("watching new directory failed", "path", ev.Name, "error", err)
			}
		}
	}

	if !ev.Op.Has(fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename) {
		return
	}
	if !w.rel.accept(ev.Name) {
		return
	}

	w.projMu.RLock()
	projects := w.projects
	w.projMu.RUnlock()
	key := w.rel.resolve(ev.Name, projects)

	w.pendMu.Lock()
	w.pending.record(key, w.now())
	w.pendMu.Unlock()
}

// tickLoop periodically flushes keys that have been quiet for the window.
// The scan interval is a fraction of the window so latency stays bounded.
func (w *Watcher) tickLoop(ctx context.Context) {
	defer w.wg.Done()

	interval := w.pending.window / 4
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.flush(ctx, false)
		}
	}
}

// flush takes due keys out of the debounce map and dispatches them.
// The map lock is released before any manager call.
func (w *Watcher) flush(ctx context.Context, drain bool) {
	w.pendMu.Lock()
	due := w.pending.take(w.now(), drain)
	w.pendMu.Unlock()

	if len(due) > 0 {
		w.dispatch(ctx, due)
	}
}

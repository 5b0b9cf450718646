package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"clip-catalog/internal/database"
	"clip-catalog/internal/filesystem"
	"clip-catalog/internal/logging"
	"clip-catalog/internal/metrics"
)

// DefaultDebounce is the quiet period that closes an event batch.
const DefaultDebounce = 2 * time.Second

// Scanner runs a reconciliation pass.
type Scanner interface {
	Scan(ctx context.Context) ([]database.Clip, error)
}

// Resolver supplies the directories to subscribe to.
type Resolver interface {
	Resolve(ctx context.Context) []string
}

// State is the watcher's position in its loop.
type State int32

const (
	StateInitializing State = iota
	StateListening
	StateDebouncing
	StateScanning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateListening:
		return "listening"
	case StateDebouncing:
		return "debouncing"
	case StateScanning:
		return "scanning"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the debounce window. Non-positive values are ignored.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// Watcher rescans the catalog when recorder files change on disk.
type Watcher struct {
	scanner  Scanner
	resolver Resolver
	debounce time.Duration

	state atomic.Int32
	scans atomic.Int64

	mu      sync.Mutex
	roots   map[string]struct{}
	watched map[string]struct{}
}

// New creates a Watcher. Call Run to start it.
func New(scanner Scanner, resolver Resolver, opts ...Option) *Watcher {
	w := &Watcher{
		scanner:  scanner,
		resolver: resolver,
		debounce: DefaultDebounce,
		roots:    make(map[string]struct{}),
		watched:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// State returns the current loop state.
func (w *Watcher) State() State {
	return State(w.state.Load())
}

// Scans returns how many scans the watcher has triggered.
func (w *Watcher) Scans() int64 {
	return w.scans.Load()
}

// Watched returns the subscribed directories, sorted.
func (w *Watcher) Watched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.watched))
	for dir := range w.watched {
		out = append(out, dir)
	}
	slices.Sort(out)
	return out
}

// Run subscribes to the watch directories and processes change batches until
// ctx is cancelled. It returns an error only when the subscription itself
// cannot be created.
func (w *Watcher) Run(ctx context.Context) error {
	w.setState(StateInitializing)
	defer w.setState(StateStopped)

	// Run may be called again after a stop to pick up new directories.
	w.mu.Lock()
	clear(w.roots)
	clear(w.watched)
	w.mu.Unlock()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		metrics.WatcherErrors.Inc()
		logging.Error("Failed to create file watcher: %v", err)
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer func() {
		if err := fsw.Close(); err != nil {
			logging.Error("failed to close file watcher: %v", err)
		}
		metrics.WatcherWatchedDirectories.Set(0)
	}()

	count := w.subscribe(ctx, fsw)
	if count == 0 {
		logging.Warn("Watcher has no directories to watch")
	} else {
		logging.Info("Watcher started, watching %d directories (debounce %v)", count, w.debounce)
	}

	w.setState(StateListening)
	return w.loop(ctx, fsw)
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) error {
	// Stop and Reset never leave a stale tick behind on Go 1.23+ timers.
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	var pending batch

	for {
		select {
		case <-ctx.Done():
			logging.Info("Watcher stopped")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			metrics.WatcherEventsTotal.WithLabelValues(opName(event.Op)).Inc()
			switch {
			case event.Op&fsnotify.Create != 0:
				w.maybeAddSubdir(fsw, event.Name)
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				w.forget(event.Name)
			}

			pending.add(event)
			timer.Reset(w.debounce)
			w.setState(StateDebouncing)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logging.Error("Watcher error: %v", err)
			metrics.WatcherErrors.Inc()

		case <-timer.C:
			w.handleBatch(ctx, pending)
			pending = batch{}
			w.setState(StateListening)
		}
	}
}

// batch summarizes the events collected within one debounce window.
type batch struct {
	events     int
	qualifying bool
}

func (b *batch) add(e fsnotify.Event) {
	b.events++
	if !b.qualifying && qualifyingEvent(e) {
		b.qualifying = true
	}
}

// handleBatch runs a scan when the batch qualifies. Events that arrive
// meanwhile wait in the fsnotify channel.
func (w *Watcher) handleBatch(ctx context.Context, b batch) {
	if !b.qualifying {
		metrics.WatcherBatchesTotal.WithLabelValues("ignored").Inc()
		logging.Debug("Ignoring batch of %d events with no clip changes", b.events)
		return
	}
	metrics.WatcherBatchesTotal.WithLabelValues("qualifying").Inc()

	w.setState(StateScanning)
	w.scans.Add(1)
	logging.Info("Clip changes detected (%d events), rescanning", b.events)

	clips, err := w.scanner.Scan(ctx)
	if err != nil {
		if ctx.Err() != nil {
			logging.Debug("Watcher scan interrupted: %v", err)
			return
		}
		logging.Error("Watcher-triggered scan failed: %v", err)
		return
	}
	logging.Debug("Watcher-triggered scan finished with %d clips", len(clips))
}

// Qualifies reports whether a batch should trigger a scan: at least one
// create or write of an .mp4 file. fsnotify reports a rename as Rename on the
// old name and Create on the new one, so a clip moved in qualifies through
// its Create. Removals and moves out alone are picked up by the next scan's
// orphan pass.
func Qualifies(events []fsnotify.Event) bool {
	for _, e := range events {
		if qualifyingEvent(e) {
			return true
		}
	}
	return false
}

func qualifyingEvent(e fsnotify.Event) bool {
	return e.Op&(fsnotify.Create|fsnotify.Write) != 0 &&
		strings.EqualFold(filepath.Ext(e.Name), ".mp4")
}

// subscribe adds each root and its immediate subdirectories.
func (w *Watcher) subscribe(ctx context.Context, fsw *fsnotify.Watcher) int {
	for _, dir := range w.resolver.Resolve(ctx) {
		abs, err := filepath.Abs(dir)
		if err != nil {
			abs = filepath.Clean(dir)
		}
		info, err := filesystem.Stat(ctx, abs, filesystem.DefaultRetryConfig())
		if err != nil || !info.IsDir() {
			logging.Warn("Watch directory %s does not exist, skipping", abs)
			continue
		}

		w.mu.Lock()
		w.roots[abs] = struct{}{}
		w.mu.Unlock()

		w.add(fsw, abs)

		entries, err := filesystem.ReadDir(ctx, abs, filesystem.DefaultRetryConfig())
		if err != nil {
			logging.Warn("failed to list watch directory %s: %v", abs, err)
			metrics.WatcherErrors.Inc()
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				w.add(fsw, filepath.Join(abs, entry.Name()))
			}
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.watched)
}

// maybeAddSubdir subscribes to a directory created directly under a root.
func (w *Watcher) maybeAddSubdir(fsw *fsnotify.Watcher, path string) {
	w.mu.Lock()
	_, underRoot := w.roots[filepath.Dir(path)]
	w.mu.Unlock()
	if !underRoot {
		return
	}

	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	if w.add(fsw, path) {
		logging.Debug("Added new directory to watcher: %s", path)
	}
}

func (w *Watcher) add(fsw *fsnotify.Watcher, dir string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.watched[dir]; ok {
		return false
	}
	if err := fsw.Add(dir); err != nil {
		logging.Warn("failed to add path to watcher %s: %v", dir, err)
		metrics.WatcherErrors.Inc()
		return false
	}
	w.watched[dir] = struct{}{}
	metrics.WatcherWatchedDirectories.Set(float64(len(w.watched)))
	return true
}

// forget drops a removed subdirectory so it can be re-added if recreated.
// The kernel watch is already gone at this point.
func (w *Watcher) forget(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.watched[path]; !ok {
		return
	}
	if _, isRoot := w.roots[path]; isRoot {
		return
	}
	delete(w.watched, path)
	metrics.WatcherWatchedDirectories.Set(float64(len(w.watched)))
}

func (w *Watcher) setState(s State) {
	w.state.Store(int32(s))
}

// opName returns the metric label for an fsnotify operation.
func opName(op fsnotify.Op) string {
	switch {
	case op&fsnotify.Create != 0:
		return "create"
	case op&fsnotify.Write != 0:
		return "write"
	case op&fsnotify.Remove != 0:
		return "remove"
	case op&fsnotify.Rename != 0:
		return "rename"
	case op&fsnotify.Chmod != 0:
		return "chmod"
	default:
		return "unknown"
	}
}

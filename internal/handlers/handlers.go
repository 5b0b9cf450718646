package handlers

import (
	"context"
	"time"

	"clip-catalog/internal/database"
	"clip-catalog/internal/events"
	"clip-catalog/internal/media"
	"clip-catalog/internal/scanner"
	"clip-catalog/internal/watchdirs"
	"clip-catalog/internal/watcher"
)

// WatcherStatus is the read-only view of the filesystem watcher used by the
// health endpoints.
type WatcherStatus interface {
	State() watcher.State
	Watched() []string
}

type Handlers struct {
	ctx       context.Context
	db        *database.Database
	scanner   *scanner.Scanner
	dirs      *watchdirs.Resolver
	bus       *events.Bus
	watcher   WatcherStatus
	backfill  *media.Backfiller
	waveforms media.Waveformer
	tools     *media.Tools
	origins   []string
	started   time.Time

	onDirsChanged func([]string)
}

// Option configures optional collaborators.
type Option func(*Handlers)

// WithContext sets the context background work started by a request
// (backfill) runs under. Defaults to context.Background().
func WithContext(ctx context.Context) Option {
	return func(h *Handlers) { h.ctx = ctx }
}

func WithWatcher(w WatcherStatus) Option {
	return func(h *Handlers) { h.watcher = w }
}

func WithBackfiller(b *media.Backfiller) Option {
	return func(h *Handlers) { h.backfill = b }
}

// WithMediaTools enables waveforms and the ffmpeg status endpoint.
func WithMediaTools(t media.Tools) Option {
	return func(h *Handlers) {
		h.tools = &t
		h.waveforms = t
	}
}

// WithWaveformer overrides how waveforms are generated.
func WithWaveformer(wf media.Waveformer) Option {
	return func(h *Handlers) { h.waveforms = wf }
}

// WithOrigins sets the host patterns allowed to open the WebSocket stream.
func WithOrigins(patterns ...string) Option {
	return func(h *Handlers) { h.origins = patterns }
}

// OnWatchDirsChanged registers a callback run after the watch directories
// are replaced, typically to resubscribe the watcher.
func OnWatchDirsChanged(fn func([]string)) Option {
	return func(h *Handlers) { h.onDirsChanged = fn }
}

func New(db *database.Database, sc *scanner.Scanner, dirs *watchdirs.Resolver, bus *events.Bus, opts ...Option) *Handlers {
	h := &Handlers{
		ctx:     context.Background(),
		db:      db,
		scanner: sc,
		dirs:    dirs,
		bus:     bus,
		origins: []string{"localhost:*", "127.0.0.1:*"},
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

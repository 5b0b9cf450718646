package media

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"clip-catalog/internal/database"
	"clip-catalog/internal/events"
	"clip-catalog/internal/logging"
	"clip-catalog/internal/metrics"
)

// PhaseThumbnails is the progress phase published while backfilling.
const PhaseThumbnails = "thumbnails"

const backfillProgressEvery = 10

// ErrBackfillRunning is returned when a run is already in progress.
var ErrBackfillRunning = errors.New("backfill already running")

// BackfillStore is the part of the catalog the backfiller touches.
type BackfillStore interface {
	ClipsNeedingBackfill(ctx context.Context) ([]database.Clip, error)
	UpdateClipMeta(ctx context.Context, id string, durationSecs float64, width, height int) error
	UpdateClipThumb(ctx context.Context, id, thumbPath string) error
}

// BackfillResult summarises a run.
type BackfillResult struct {
	Total      int           `json:"total"`
	Thumbnails int           `json:"thumbnails"`
	Probed     int           `json:"probed"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"duration"`
}

// BackfillOption configures a Backfiller.
type BackfillOption func(*Backfiller)

// WithWorkers bounds how many clips are processed at once.
func WithWorkers(n int) BackfillOption {
	return func(b *Backfiller) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithEvents sets where progress and thumb.ready events go.
func WithEvents(p events.Publisher) BackfillOption {
	return func(b *Backfiller) {
		if p != nil {
			b.bus = p
		}
	}
}

// Gate holds back work until it is safe to continue.
type Gate interface {
	Wait(ctx context.Context) error
}

// WithGate makes every clip wait on g before it is processed.
func WithGate(g Gate) BackfillOption {
	return func(b *Backfiller) {
		b.gate = g
	}
}

// Backfiller fills in thumbnails and probe data for clips that lack them.
// It is opportunistic: failures are logged and the clip is retried on the
// next run.
type Backfiller struct {
	store   BackfillStore
	prober  Prober
	thumbs  Processor
	bus     events.Publisher
	gate    Gate
	workers int
	running atomic.Bool
}

// NewBackfiller creates a Backfiller. A nil prober or processor disables
// that half of the work.
func NewBackfiller(store BackfillStore, prober Prober, thumbs Processor, opts ...BackfillOption) *Backfiller {
	b := &Backfiller{
		store:   store,
		prober:  prober,
		thumbs:  thumbs,
		bus:     events.Discard,
		workers: 1,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// IsRunning reports whether a run is in progress.
func (b *Backfiller) IsRunning() bool {
	return b.running.Load()
}

// Run processes every clip missing a thumbnail or duration.
func (b *Backfiller) Run(ctx context.Context) (BackfillResult, error) {
	if !b.running.CompareAndSwap(false, true) {
		return BackfillResult{}, ErrBackfillRunning
	}
	defer b.running.Store(false)

	metrics.BackfillIsRunning.Set(1)
	defer metrics.BackfillIsRunning.Set(0)
	metrics.BackfillRunsTotal.Inc()

	start := time.Now()
	clips, err := b.store.ClipsNeedingBackfill(ctx)
	if err != nil {
		return BackfillResult{}, err
	}

	res := BackfillResult{Total: len(clips)}
	if len(clips) == 0 {
		logging.Debug("Backfill: nothing to do")
		return res, nil
	}
	logging.Info("Backfill starting for %d clips with %d workers", len(clips), b.workers)
	b.bus.Publish(events.ScanProgress(len(clips), 0, PhaseThumbnails))

	var (
		mu   sync.Mutex
		done atomic.Int64
	)
	p := pool.New().WithMaxGoroutines(b.workers)
	for _, clip := range clips {
		p.Go(func() {
			if ctx.Err() != nil {
				return
			}
			if b.gate != nil {
				if err := b.gate.Wait(ctx); err != nil {
					return
				}
			}
			thumbed, probed, failed := b.processClip(ctx, clip)

			mu.Lock()
			if thumbed {
				res.Thumbnails++
			}
			if probed {
				res.Probed++
			}
			if failed {
				res.Failed++
			}
			mu.Unlock()

			if n := done.Add(1); n%backfillProgressEvery == 0 {
				b.bus.Publish(events.ScanProgress(len(clips), int(n), PhaseThumbnails))
			}
		})
	}
	p.Wait()

	res.Duration = time.Since(start)
	b.bus.Publish(events.ScanProgress(len(clips), len(clips), "complete"))
	logging.Info("Backfill complete: %d thumbnails, %d probed, %d failed in %v",
		res.Thumbnails, res.Probed, res.Failed, res.Duration.Round(time.Millisecond))

	return res, ctx.Err()
}

func (b *Backfiller) processClip(ctx context.Context, clip database.Clip) (thumbed, probed, failed bool) {
	if clip.ThumbPath == nil && b.thumbs != nil {
		start := time.Now()
		thumbPath, err := b.thumbs.Thumbnail(ctx, clip.ID, clip.Path)
		metrics.BackfillDuration.WithLabelValues("thumbnail").Observe(time.Since(start).Seconds())
		if err == nil {
			err = b.store.UpdateClipThumb(ctx, clip.ID, thumbPath)
		}
		if err != nil {
			logging.Warn("thumb %s: %v", clip.Filename, err)
			metrics.BackfillItemsTotal.WithLabelValues("thumbnail", "error").Inc()
			failed = true
		} else {
			metrics.BackfillItemsTotal.WithLabelValues("thumbnail", "success").Inc()
			b.bus.Publish(events.ThumbReady(clip.ID, thumbPath))
			thumbed = true
		}
	}

	if clip.DurationSecs == nil && b.prober != nil {
		start := time.Now()
		info, err := b.prober.Probe(ctx, clip.Path)
		metrics.BackfillDuration.WithLabelValues("probe").Observe(time.Since(start).Seconds())
		if err == nil {
			err = b.store.UpdateClipMeta(ctx, clip.ID, info.DurationSecs, info.Width, info.Height)
		}
		if err != nil {
			logging.Warn("probe %s: %v", clip.Filename, err)
			metrics.BackfillItemsTotal.WithLabelValues("probe", "error").Inc()
			failed = true
		} else {
			metrics.BackfillItemsTotal.WithLabelValues("probe", "success").Inc()
			probed = true
		}
	}
	return thumbed, probed, failed
}

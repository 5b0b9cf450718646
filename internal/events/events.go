// Package events fans catalog notifications out to in-process subscribers
// such as the HTTP event stream and the CLI progress bar.
package events

import (
	"sync"
	"time"

	"clip-catalog/internal/logging"
	"clip-catalog/internal/metrics"
)

// Kind names a notification.
type Kind string

const (
	// KindCatalogChanged follows every completed scan and carries the clip count.
	KindCatalogChanged Kind = "catalog.changed"
	// KindScanProgress reports {total, done, phase} during scans and backfills.
	KindScanProgress Kind = "scan.progress"
	// KindThumbReady announces a newly generated thumbnail.
	KindThumbReady Kind = "thumb.ready"
)

// Progress is the payload of a scan.progress event.
type Progress struct {
	Total int    `json:"total"`
	Done  int    `json:"done"`
	Phase string `json:"phase"`
}

// Event is one notification.
type Event struct {
	Kind      Kind      `json:"kind"`
	Time      time.Time `json:"time"`
	Count     int       `json:"count,omitempty"`
	Progress  *Progress `json:"progress,omitempty"`
	ClipID    string    `json:"clipId,omitempty"`
	ThumbPath string    `json:"thumbPath,omitempty"`
}

// CatalogChanged builds a catalog.changed event.
func CatalogChanged(count int) Event {
	return Event{Kind: KindCatalogChanged, Time: time.Now(), Count: count}
}

// ScanProgress builds a scan.progress event.
func ScanProgress(total, done int, phase string) Event {
	return Event{Kind: KindScanProgress, Time: time.Now(), Progress: &Progress{Total: total, Done: done, Phase: phase}}
}

// ThumbReady builds a thumb.ready event.
func ThumbReady(clipID, thumbPath string) Event {
	return Event{Kind: KindThumbReady, Time: time.Now(), ClipID: clipID, ThumbPath: thumbPath}
}

// Publisher accepts notifications. Publish must not block.
type Publisher interface {
	Publish(Event)
}

// Discard is a Publisher that drops everything.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}

// Bus is a non-blocking fan-out. A subscriber whose buffer is full misses
// the event; the drop is counted, never waited on.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]chan Event
	nextID uint64
	closed bool
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]chan Event)}
}

// Subscribe registers a listener with the given buffer size. The returned
// func unsubscribes and closes the channel; calling it more than once is
// safe.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	metrics.EventSubscribers.Set(float64(len(b.subs)))
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
				metrics.EventSubscribers.Set(float64(len(b.subs)))
			}
		})
	}
}

// Publish delivers e to every subscriber that has room.
func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	metrics.EventsPublishedTotal.WithLabelValues(string(e.Kind)).Inc()
	for id, ch := range b.subs {
		select {
		case ch <- e:
		default:
			metrics.EventsDroppedTotal.WithLabelValues(string(e.Kind)).Inc()
			logging.Debug("Event subscriber %d is full, dropped %s", id, e.Kind)
		}
	}
}

// Close unsubscribes everyone. Later Publish calls are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	metrics.EventSubscribers.Set(0)
}

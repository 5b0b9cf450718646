package events

import (
	"sync"
	"testing"
	"time"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e, ok := <-ch:
		if !ok {
			t.Fatal("channel closed unexpectedly")
		}
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestBusFanOut(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	a, cancelA := bus.Subscribe(4)
	b, cancelB := bus.Subscribe(4)
	defer cancelA()
	defer cancelB()

	bus.Publish(CatalogChanged(7))

	for name, ch := range map[string]<-chan Event{"a": a, "b": b} {
		e := receive(t, ch)
		if e.Kind != KindCatalogChanged || e.Count != 7 {
			t.Errorf("subscriber %s got %+v", name, e)
		}
		if e.Time.IsZero() {
			t.Errorf("subscriber %s got event without timestamp", name)
		}
	}
}

func TestBusDropsForSlowSubscriber(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	slow, cancel := bus.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(ScanProgress(10, i, "walking"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	e := receive(t, slow)
	if e.Progress == nil || e.Progress.Done != 0 {
		t.Errorf("Expected the first progress event to be kept, got %+v", e)
	}
	select {
	case extra := <-slow:
		t.Errorf("Expected later events to be dropped, got %+v", extra)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	ch, cancel := bus.Subscribe(1)
	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("Expected channel to be closed after unsubscribe")
	}

	// Publishing after unsubscribe must not panic.
	bus.Publish(ThumbReady("id", "/t.jpg"))
}

func TestCloseEndsAllSubscriptions(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	a, cancelA := bus.Subscribe(1)
	bus.Close()
	cancelA()

	if _, ok := <-a; ok {
		t.Error("Expected subscriber channel closed by Close")
	}

	late, cancelLate := bus.Subscribe(1)
	defer cancelLate()
	if _, ok := <-late; ok {
		t.Error("Subscribe after Close should return a closed channel")
	}
	bus.Publish(CatalogChanged(1))
}

func TestConcurrentPublishAndUnsubscribe(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, cancel := bus.Subscribe(2)
			for j := 0; j < 20; j++ {
				bus.Publish(CatalogChanged(j))
			}
			cancel()
			for range ch {
			}
		}()
	}
	wg.Wait()
}

func TestEventConstructors(t *testing.T) {
	t.Parallel()

	p := ScanProgress(100, 40, "thumbnails")
	if p.Kind != KindScanProgress || p.Progress.Total != 100 || p.Progress.Done != 40 || p.Progress.Phase != "thumbnails" {
		t.Errorf("ScanProgress = %+v", p)
	}
	r := ThumbReady("clip", "/thumbs/clip.jpg")
	if r.Kind != KindThumbReady || r.ClipID != "clip" || r.ThumbPath != "/thumbs/clip.jpg" {
		t.Errorf("ThumbReady = %+v", r)
	}
	Discard.Publish(r)
}

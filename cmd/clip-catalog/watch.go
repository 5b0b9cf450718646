package main

import (
	"context"
	"time"

	"clip-catalog/internal/logging"
)

// restartBackoff spaces out restarts after the watcher fails to start.
const restartBackoff = 5 * time.Second

type runner interface {
	Run(ctx context.Context) error
}

// watchSupervisor keeps one watcher running and restarts it when the watch
// directories change.
type watchSupervisor struct {
	w       runner
	restart chan struct{}
}

func newWatchSupervisor(w runner) *watchSupervisor {
	return &watchSupervisor{w: w, restart: make(chan struct{}, 1)}
}

// Restart asks the running watcher to resubscribe. Requests made while one
// is pending are coalesced.
func (s *watchSupervisor) Restart() {
	select {
	case s.restart <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled.
func (s *watchSupervisor) Run(ctx context.Context) {
	for {
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- s.w.Run(runCtx) }()

		select {
		case <-ctx.Done():
			cancel()
			<-done
			return
		case <-s.restart:
			logging.Info("Watch directories changed, restarting watcher")
			cancel()
			<-done
		case err := <-done:
			cancel()
			if err != nil {
				logging.Error("Watcher stopped: %v (retrying in %v)", err, restartBackoff)
			}
			select {
			case <-ctx.Done():
				return
			case <-s.restart:
			case <-time.After(restartBackoff):
			}
		}
	}
}

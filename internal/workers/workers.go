package workers

import (
	"runtime"
)

// MaxBackfill caps the backfill pool; each worker runs an ffmpeg process.
const MaxBackfill = 8

// Count returns the number of workers for a task type, respecting container
// CPU limits via GOMAXPROCS (Go 1.19+).
//
// The multiplier adjusts for task characteristics:
//   - 1.0 for CPU-bound tasks
//   - 2.0 for I/O-bound tasks
//   - 1.5 for mixed tasks
//
// The limit caps the result; use 0 for no limit.
func Count(multiplier float64, limit int) int {
	available := runtime.GOMAXPROCS(0)

	workers := int(float64(available) * multiplier)

	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}

	return workers
}

// ForCPU returns worker count for CPU-bound tasks (1 per CPU).
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForIO returns worker count for I/O-bound tasks (2 per CPU).
func ForIO(limit int) int {
	return Count(2.0, limit)
}

// ForMixed returns worker count for mixed tasks (1.5 per CPU).
func ForMixed(limit int) int {
	return Count(1.5, limit)
}

// Backfill sizes the thumbnail/probe pool. A positive configured value wins
// (still capped at MaxBackfill); otherwise the pool is sized for I/O.
func Backfill(configured int) int {
	if configured > 0 {
		return min(configured, MaxBackfill)
	}
	return ForIO(MaxBackfill)
}

// Package memory keeps the server inside a container memory limit.
//
// Go does not derive GOMEMLIMIT from cgroup limits the way it derives
// GOMAXPROCS, so [Configure] sets it from CLIPS_MEMORY_LIMIT (bytes,
// typically injected through the Kubernetes Downward API) scaled by
// CLIPS_MEMORY_RATIO. An explicit GOMEMLIMIT always takes precedence.
//
// Thumbnail generation decodes full frames, which is the only part of the
// catalog that allocates heavily. [Monitor] samples the heap and, once usage
// crosses the critical mark, makes [Monitor.Wait] block until it falls back
// below the high-water mark. The backfill pool waits on it before each clip:
//
//	mon := memory.NewMonitor(memory.DefaultConfig())
//	go mon.Run(ctx)
//	bf := media.NewBackfiller(db, prober, thumbs, media.WithGate(mon))
//
// Scanning and the watcher are never held back.
package memory

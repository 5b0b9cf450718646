/*
Package workers sizes worker pools in containerized environments.

runtime.NumCPU reports the host's CPUs even when a container is limited to a
few of them. GOMAXPROCS follows the cgroup limit (Go 1.19+), so every helper
here derives its count from it:

	workers.ForCPU(8)   // 1 per CPU, at most 8
	workers.ForIO(16)   // 2 per CPU, at most 16
	workers.ForMixed(0) // 1.5 per CPU, no cap

The backfill pool, which shells out to ffprobe and ffmpeg per clip, is sized
with Backfill. Operators override it with CLIPS_BACKFILL_WORKERS (or the
--backfill-workers flag); the value is capped at MaxBackfill.
*/
package workers

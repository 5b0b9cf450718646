// Package main provides the clip-catalog command.
//
// clip-catalog keeps a SQLite catalog of recorder clips in sync with one or
// more watch directories. A clip is an .mp4 whose filename carries its
// recording time, such as "2026-01-28 18-40-28.mp4" or
// "2026-01-28_18-40-28.mp4".
//
// # Commands
//
//   - serve: HTTP API, filesystem watcher, periodic rescan and backfill
//   - scan: one reconciliation pass, with a progress bar on a terminal
//   - dirs, dirs set: show or replace the watch directories
//   - backfill: generate missing thumbnails and durations with ffmpeg
//
// # Application Lifecycle (serve)
//
//  1. Configuration: flags, CLIPS_* environment variables and an optional
//     config file are merged by viper
//  2. Database: opens clips.db and applies pending migrations
//  3. Memory: sets GOMEMLIMIT from CLIPS_MEMORY_LIMIT and starts the monitor
//     that holds back thumbnail work under pressure
//  4. Components: scanner, watcher supervisor, backfiller, metrics collector
//  5. HTTP server: routes, logging, compression and metrics middleware
//  6. Initial scan, then backfill of whatever it found
//  7. Graceful shutdown on SIGINT/SIGTERM
//
// # Background Services
//
//   - Watcher: rescans after changes settle for the debounce window and is
//     restarted whenever the watch directories are replaced
//   - Periodic rescan: optional, every CLIPS_RESCAN_INTERVAL
//   - Backfill: after any scan that inserted clips
//   - Metrics Collector: samples catalog counts every minute
//
// # Graceful Shutdown
//
//  1. Close event streams so SSE and WebSocket clients disconnect
//  2. Shut down the HTTP server (30s timeout)
//  3. Stop the watcher, periodic rescan, backfill and memory monitor
//  4. Stop the metrics collector
//  5. Close the database
//
// See [clip-catalog/internal/startup] for every configuration key.
package main

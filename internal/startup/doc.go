// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// Configuration is resolved by viper from, in order of precedence, command
// line flags, CLIPS_* environment variables, an optional config file named
// by --config, and built-in defaults:
//
//   - CLIPS_DATABASE_DIR: Directory holding clips.db (default: user config dir/clip-catalog)
//   - CLIPS_CACHE_DIR: Directory for thumbnails (default: user cache dir/clip-catalog)
//   - CLIPS_PORT: HTTP server port (default: 8080)
//   - CLIPS_METRICS_ENABLED: Serve Prometheus metrics on /metrics (default: true)
//   - CLIPS_DEBOUNCE: Watcher quiet period as Go duration (default: 2s)
//   - CLIPS_RESCAN_INTERVAL: Periodic full rescan as Go duration, 0 disables (default: 0)
//   - CLIPS_LOG_LEVEL: debug, info, warn, error (default: info)
//   - CLIPS_LOG_FILE: Mirror logs into a size-rotated file
//   - CLIPS_LOG_HEALTH_CHECKS: Log /healthz requests (default: false)
//   - CLIPS_FFMPEG_PATH / CLIPS_FFPROBE_PATH: Media tool binaries (default: from PATH)
//   - CLIPS_BACKFILL_WORKERS: Thumbnail/probe pool size, 0 sizes it from the CPU count
//   - CLIPS_TIMEZONE: IANA zone recorder filenames are written in (default: local)
//   - CLIPS_MEMORY_LIMIT / CLIPS_MEMORY_RATIO: Container memory limit in bytes
//     and the share of it given to the Go heap (default ratio: 0.85)
//
// # Directory Setup
//
// The database directory is required and must be writable. The thumbnail
// directory under the cache directory is optional; when it cannot be
// created or written, thumbnails are disabled and everything else runs.
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo]:
//   - Version: Application version
//   - Commit: Git commit hash
//   - BuildTime: Build timestamp
//   - GoVersion: Go compiler version
//
// # Example Usage
//
//	v := startup.NewViper()
//	config, err := startup.LoadConfig(v)
//	if err != nil {
//	    startup.LogFatal("Configuration error: %v", err)
//	}
//
//	startup.LogDatabaseInit(time.Since(dbStart), clipCount)
//	startup.LogWatchInit(dirs, config.Debounce)
//
//	startup.LogServerStarted(startup.ServerConfig{
//	    Port:            config.Port,
//	    MetricsEnabled:  config.MetricsEnabled,
//	    StartupDuration: time.Since(startTime),
//	})
//
//	startup.LogShutdownInitiated("SIGTERM")
//	// ... cleanup ...
//	startup.LogShutdownComplete()
package startup

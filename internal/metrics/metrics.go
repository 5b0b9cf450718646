package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip_catalog_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clip_catalog_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clip_catalog_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip_catalog_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clip_catalog_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clip_catalog_db_transaction_duration_seconds",
			Help:    "Duration of database transactions by outcome",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"outcome"},
	)

	DBSchemaVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clip_catalog_db_schema_version",
			Help: "Schema version recorded in app_meta",
		},
	)

	DBSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clip_catalog_db_size_bytes",
			Help: "Size of SQLite database files in bytes",
		},
		[]string{"file"}, // "main", "wal", "shm"
	)
)

// Scanner metrics
var (
	ScannerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip_catalog_scanner_runs_total",
			Help: "Total number of scan passes by status",
		},
		[]string{"status"},
	)

	ScannerRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clip_catalog_scanner_run_duration_seconds",
			Help:    "Duration of complete scan passes",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	ScannerLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clip_catalog_scanner_last_run_timestamp",
			Help: "Unix timestamp of the last completed scan",
		},
	)

	ScannerIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clip_catalog_scanner_is_running",
			Help: "Whether a scan pass is currently in progress (1 = running)",
		},
	)

	ScannerClipsInserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clip_catalog_scanner_clips_inserted_total",
			Help: "Total number of clips added to the catalog by scans",
		},
	)

	ScannerItemsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip_catalog_scanner_items_skipped_total",
			Help: "Total number of files skipped during scans by reason",
		},
		[]string{"reason"},
	)

	ScannerOrphansRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clip_catalog_scanner_orphans_removed_total",
			Help: "Total number of catalog entries removed because their file disappeared",
		},
	)
)

// Watcher metrics
var (
	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip_catalog_watcher_events_total",
			Help: "Total filesystem events received by type",
		},
		[]string{"type"},
	)

	WatcherBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip_catalog_watcher_batches_total",
			Help: "Debounced event batches by outcome",
		},
		[]string{"outcome"}, // "qualifying", "ignored"
	)

	WatcherErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clip_catalog_watcher_errors_total",
			Help: "Total filesystem watcher errors",
		},
	)

	WatcherWatchedDirectories = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clip_catalog_watcher_watched_directories",
			Help: "Number of directories currently subscribed for change events",
		},
	)
)

// Backfill metrics
var (
	BackfillRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clip_catalog_backfill_runs_total",
			Help: "Total number of metadata/thumbnail backfill runs",
		},
	)

	BackfillItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip_catalog_backfill_items_total",
			Help: "Backfill work items by kind and status",
		},
		[]string{"kind", "status"}, // kind: "probe", "thumbnail"
	)

	BackfillDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clip_catalog_backfill_duration_seconds",
			Help:    "Duration of individual external media tool invocations",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"kind"},
	)

	BackfillIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clip_catalog_backfill_is_running",
			Help: "Whether a backfill run is currently active (1 = running)",
		},
	)
)

// Event bus metrics
var (
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip_catalog_events_published_total",
			Help: "Total notifications published by kind",
		},
		[]string{"kind"},
	)

	EventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip_catalog_events_dropped_total",
			Help: "Notifications dropped because a subscriber was not keeping up",
		},
		[]string{"kind"},
	)

	EventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clip_catalog_event_subscribers",
			Help: "Number of active notification subscribers",
		},
	)
)

// Catalog contents
var (
	CatalogClipsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clip_catalog_clips_total",
			Help: "Number of clips in the catalog",
		},
	)

	CatalogStarredTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clip_catalog_clips_starred_total",
			Help: "Number of starred clips",
		},
	)

	CatalogBytesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clip_catalog_clips_bytes_total",
			Help: "Sum of catalogued clip file sizes in bytes",
		},
	)

	CatalogObjectsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clip_catalog_objects_total",
			Help: "Number of catalog objects by kind",
		},
		[]string{"kind"}, // "tag", "collection", "smart_folder", "embedding", "waveform"
	)

	CatalogPendingBackfill = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clip_catalog_clips_pending_backfill",
			Help: "Clips still missing a thumbnail or duration",
		},
	)
)

// Memory backpressure
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clip_catalog_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the configured memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clip_catalog_memory_paused",
			Help: "Whether backfill is paused for memory pressure (1 = paused)",
		},
	)
)

// Filesystem retry metrics
var (
	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip_catalog_filesystem_stale_errors_total",
			Help: "Stale file handle errors seen on watch directories by operation",
		},
		[]string{"operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip_catalog_filesystem_retry_attempts_total",
			Help: "Retries of filesystem operations after a stale file handle",
		},
		[]string{"operation"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip_catalog_filesystem_retry_failures_total",
			Help: "Filesystem operations that still failed after all retries",
		},
		[]string{"operation"},
	)
)

// Application info
var AppInfo = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "clip_catalog_app_info",
		Help: "Application build information",
	},
	[]string{"version", "commit", "go_version"},
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}

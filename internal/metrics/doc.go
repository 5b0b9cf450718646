// Package metrics provides Prometheus instrumentation for the clip catalog.
//
// All metrics are prefixed with "clip_catalog_" and registered on the default
// registry through promauto, so exposing promhttp.Handler() is enough to
// publish them.
//
// # Metric Categories
//
// ## HTTP Metrics
//   - HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight
//
// ## Database Metrics
//   - DBQueryTotal / DBQueryDuration: per operation, recorded by the store
//   - DBTransactionDuration: bulk mutation transactions by commit/rollback
//   - DBSchemaVersion, DBSizeBytes: sampled by the Collector
//
// ## Scanner Metrics
//   - ScannerRunsTotal, ScannerRunDuration, ScannerLastRunTimestamp
//   - ScannerClipsInserted, ScannerItemsSkipped (by reason), ScannerOrphansRemoved
//
// ## Watcher Metrics
//   - WatcherEventsTotal (by fsnotify op), WatcherBatchesTotal (qualifying/ignored)
//   - WatcherErrors, WatcherWatchedDirectories
//
// ## Backfill Metrics
//   - BackfillRunsTotal, BackfillItemsTotal, BackfillDuration, BackfillIsRunning
//
// ## Event Bus Metrics
//   - EventsPublishedTotal, EventsDroppedTotal, EventSubscribers
//
// ## Catalog Metrics
//
// Gauges refreshed periodically by Collector from a StatsProvider:
//   - CatalogClipsTotal, CatalogStarredTotal, CatalogBytesTotal
//   - CatalogObjectsTotal (by kind), CatalogPendingBackfill
package metrics

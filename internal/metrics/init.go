package metrics

// SkipReasons are the label values used by ScannerItemsSkipped.
var SkipReasons = []string{"bad_timestamp", "exists_check", "insert", "missing_dir", "unreadable_dir"}

// DBOperations lists the operation labels recorded by the database package.
var DBOperations = []string{
	"initialize", "stats", "get_meta", "set_meta",
	"exists_by_path", "insert_clip", "get_all_clips", "get_clip", "count_clips",
	"clips_needing_backfill", "update_clip_meta", "update_clip_thumb",
	"update_description", "set_starred", "delete_clips",
	"get_all_tags", "create_tag", "delete_tag",
	"bulk_add_tag", "bulk_remove_tag", "bulk_star",
	"get_all_collections", "create_collection", "update_collection", "delete_collection",
	"get_collection_clips", "add_to_collection", "remove_from_collection",
	"get_all_smart_folders", "create_smart_folder", "update_smart_folder", "delete_smart_folder",
	"upsert_embedding", "get_all_embeddings", "get_waveform", "save_waveform",
}

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, op := range DBOperations {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}

	for _, outcome := range []string{"commit", "rollback"} {
		DBTransactionDuration.WithLabelValues(outcome)
	}

	for _, file := range []string{"main", "wal", "shm"} {
		DBSizeBytes.WithLabelValues(file)
	}

	for _, status := range []string{"success", "error", "cancelled"} {
		ScannerRunsTotal.WithLabelValues(status)
	}

	for _, reason := range SkipReasons {
		ScannerItemsSkipped.WithLabelValues(reason)
	}

	for _, t := range []string{"create", "write", "remove", "rename", "chmod"} {
		WatcherEventsTotal.WithLabelValues(t)
	}
	for _, outcome := range []string{"qualifying", "ignored"} {
		WatcherBatchesTotal.WithLabelValues(outcome)
	}

	for _, kind := range []string{"probe", "thumbnail"} {
		BackfillDuration.WithLabelValues(kind)
		for _, status := range []string{"success", "error"} {
			BackfillItemsTotal.WithLabelValues(kind, status)
		}
	}

	for _, kind := range []string{"catalog.changed", "scan.progress", "thumb.ready"} {
		EventsPublishedTotal.WithLabelValues(kind)
		EventsDroppedTotal.WithLabelValues(kind)
	}

	for _, op := range []string{"stat", "readdir"} {
		FilesystemStaleErrors.WithLabelValues(op)
		FilesystemRetryAttempts.WithLabelValues(op)
		FilesystemRetryFailures.WithLabelValues(op)
	}

	for _, kind := range []string{"tag", "collection", "smart_folder", "embedding", "waveform"} {
		CatalogObjectsTotal.WithLabelValues(kind)
	}
}

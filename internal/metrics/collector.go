package metrics

import (
	"context"
	"os"
	"time"

	"clip-catalog/internal/logging"
)

// Stats holds catalog counts sampled by the Collector.
type Stats struct {
	Clips           int64
	Starred         int64
	Bytes           int64
	PendingBackfill int64
	Tags            int64
	Collections     int64
	SmartFolders    int64
	Embeddings      int64
	Waveforms       int64
	SchemaVersion   int
}

// StatsProvider supplies catalog counts to the Collector.
type StatsProvider interface {
	CollectStats(ctx context.Context) (Stats, error)
}

// StatsFunc adapts a plain function to StatsProvider.
type StatsFunc func(ctx context.Context) (Stats, error)

// CollectStats calls f.
func (f StatsFunc) CollectStats(ctx context.Context) (Stats, error) {
	return f(ctx)
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	dbPath        string
	interval      time.Duration
	stopChan      chan struct{}
	doneChan      chan struct{}
}

// NewCollector creates a new metrics collector. dbPath may be empty to skip
// database file size sampling.
func NewCollector(provider StatsProvider, dbPath string, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		dbPath:        dbPath,
		interval:      interval,
		stopChan:      make(chan struct{}),
		doneChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection and waits for the loop to exit.
func (c *Collector) Stop() {
	close(c.stopChan)
	<-c.doneChan
}

func (c *Collector) collectLoop() {
	defer close(c.doneChan)

	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	c.collectFileSizes()

	if c.statsProvider == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := c.statsProvider.CollectStats(ctx)
	if err != nil {
		logging.Warn("Metrics collection failed: %v", err)
		return
	}

	CatalogClipsTotal.Set(float64(stats.Clips))
	CatalogStarredTotal.Set(float64(stats.Starred))
	CatalogBytesTotal.Set(float64(stats.Bytes))
	CatalogPendingBackfill.Set(float64(stats.PendingBackfill))
	CatalogObjectsTotal.WithLabelValues("tag").Set(float64(stats.Tags))
	CatalogObjectsTotal.WithLabelValues("collection").Set(float64(stats.Collections))
	CatalogObjectsTotal.WithLabelValues("smart_folder").Set(float64(stats.SmartFolders))
	CatalogObjectsTotal.WithLabelValues("embedding").Set(float64(stats.Embeddings))
	CatalogObjectsTotal.WithLabelValues("waveform").Set(float64(stats.Waveforms))
	DBSchemaVersion.Set(float64(stats.SchemaVersion))

	logging.Debug("Metrics collected: clips=%d, starred=%d, tags=%d, collections=%d",
		stats.Clips, stats.Starred, stats.Tags, stats.Collections)
}

func (c *Collector) collectFileSizes() {
	if c.dbPath == "" {
		return
	}

	files := map[string]string{
		"main": c.dbPath,
		"wal":  c.dbPath + "-wal",
		"shm":  c.dbPath + "-shm",
	}
	for label, path := range files {
		info, err := os.Stat(path)
		if err != nil {
			DBSizeBytes.WithLabelValues(label).Set(0)
			continue
		}
		DBSizeBytes.WithLabelValues(label).Set(float64(info.Size()))
	}
}

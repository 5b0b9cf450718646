package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"clip-catalog/internal/logging"
	"clip-catalog/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// ErrNotFound is returned when a single-row update or lookup matches nothing.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write collides with a unique name.
var ErrConflict = errors.New("already exists")

// Options tunes how the catalog database is opened. A nil *Options uses
// the defaults.
type Options struct {
	// BusyTimeout is how long SQLite waits on a locked database file before
	// failing. Defaults to 5s.
	BusyTimeout time.Duration
	// QueryTimeout bounds each individual store call. Defaults to 5s.
	QueryTimeout time.Duration
}

func (o *Options) withDefaults() Options {
	out := Options{BusyTimeout: 5 * time.Second, QueryTimeout: defaultTimeout}
	if o == nil {
		return out
	}
	if o.BusyTimeout > 0 {
		out.BusyTimeout = o.BusyTimeout
	}
	if o.QueryTimeout > 0 {
		out.QueryTimeout = o.QueryTimeout
	}
	return out
}

// Database owns the catalog's SQLite file. All access goes through one
// connection guarded by mu, so callers never need their own locking and
// never observe a half-applied bulk mutation.
type Database struct {
	db      *sql.DB
	dbPath  string
	mu      sync.RWMutex
	timeout time.Duration
}

// New opens (creating if needed) the catalog database at dbPath and brings
// its schema up to date. The parent directory must already exist.
func New(ctx context.Context, dbPath string, opts *Options) (*Database, error) {
	o := opts.withDefaults()
	logging.Info("Database path: %s", dbPath)

	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Database permission diagnostics: %v", err)
	}

	connStr := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=%d",
		dbPath, o.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One logical connection: SQLite serializes writers anyway and the
	// foreign_keys pragma is per-connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, o.QueryTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	d := &Database{
		db:      db,
		dbPath:  dbPath,
		timeout: o.QueryTimeout,
	}

	if err := d.Initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Database initialized successfully at %s", dbPath)
	return d, nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.db.Close()
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.dbPath
}

// withTimeout derives the per-call deadline.
func (d *Database) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.timeout)
}

// withTx runs fn inside a single transaction under the write lock. Any error
// from fn rolls the whole unit back.
func (d *Database) withTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	txStart := time.Now()
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(ctx, tx); err != nil {
		err = classify(err)
		metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(time.Since(txStart).Seconds())
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(time.Since(txStart).Seconds())
		return fmt.Errorf("commit transaction: %w", err)
	}
	metrics.DBTransactionDuration.WithLabelValues("commit").Observe(time.Since(txStart).Seconds())
	return nil
}

// classify marks SQLite constraint failures with ErrConflict or ErrNotFound
// so callers can tell bad input from storage faults.
func classify(err error) error {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case sqlite3.ErrConstraintForeignKey:
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}

// CatalogStats holds aggregate counts over the catalog.
type CatalogStats struct {
	Clips           int64 `json:"clips"`
	Starred         int64 `json:"starred"`
	TotalBytes      int64 `json:"totalBytes"`
	PendingBackfill int64 `json:"pendingBackfill"`
	Tags            int64 `json:"tags"`
	Collections     int64 `json:"collections"`
	SmartFolders    int64 `json:"smartFolders"`
	Embeddings      int64 `json:"embeddings"`
	Waveforms       int64 `json:"waveforms"`
	SchemaVersion   int   `json:"schemaVersion"`
}

// Stats returns aggregate counts for metrics and the status endpoint.
func (d *Database) Stats(ctx context.Context) (stats CatalogStats, err error) {
	done := observeQuery("stats")
	defer func() { done(err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	err = d.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM clips),
			(SELECT COUNT(*) FROM clips WHERE starred = 1),
			(SELECT COALESCE(SUM(file_size), 0) FROM clips),
			(SELECT COUNT(*) FROM clips WHERE thumb_path IS NULL OR duration_secs IS NULL),
			(SELECT COUNT(*) FROM tags),
			(SELECT COUNT(*) FROM collections),
			(SELECT COUNT(*) FROM smart_folders),
			(SELECT COUNT(*) FROM embeddings),
			(SELECT COUNT(*) FROM waveforms)
	`).Scan(&stats.Clips, &stats.Starred, &stats.TotalBytes, &stats.PendingBackfill,
		&stats.Tags, &stats.Collections, &stats.SmartFolders, &stats.Embeddings, &stats.Waveforms)
	if err != nil {
		return stats, fmt.Errorf("query catalog stats: %w", err)
	}

	stats.SchemaVersion, err = d.schemaVersion(ctx, d.db)
	return stats, err
}

// CollectStats adapts Stats for the metrics collector.
func (d *Database) CollectStats(ctx context.Context) (metrics.Stats, error) {
	s, err := d.Stats(ctx)
	if err != nil {
		return metrics.Stats{}, err
	}
	return metrics.Stats{
		Clips:           s.Clips,
		Starred:         s.Starred,
		Bytes:           s.TotalBytes,
		PendingBackfill: s.PendingBackfill,
		Tags:            s.Tags,
		Collections:     s.Collections,
		SmartFolders:    s.SmartFolders,
		Embeddings:      s.Embeddings,
		Waveforms:       s.Waveforms,
		SchemaVersion:   s.SchemaVersion,
	}, nil
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// observeQuery starts timing operation; call the returned func with the
// final error.
func observeQuery(operation string) func(error) {
	start := time.Now()
	return func(err error) {
		recordQuery(operation, start, err)
	}
}

// closeRows closes rows and logs a failure.
func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		logging.Error("error closing rows: %v", err)
	}
}

// nowUnix is the timestamp written to created_at/updated_at columns.
func nowUnix() int64 {
	return time.Now().Unix()
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}
	logging.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	for _, suffix := range []string{"", "-wal", "-shm"} {
		path := dbPath + suffix
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		logging.Debug("Database file exists: %s (mode: %v, size: %d bytes)", path, info.Mode(), info.Size())
		if info.Mode().Perm()&0o200 == 0 {
			logging.Warn("Database file %s is read-only (mode %v), writes will fail", path, info.Mode())
		}
	}

	return nil
}

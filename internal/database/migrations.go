package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"clip-catalog/internal/logging"
)

const schemaVersionKey = "schema_version"

// LatestSchemaVersion is the version Initialize migrates to.
const LatestSchemaVersion = 2

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// migration is one additive schema step. Steps never drop or rewrite data.
type migration struct {
	version int
	name    string
	apply   func(ctx context.Context, tx *sql.Tx) error
}

var migrations = []migration{
	{version: 1, name: "clips, tags and embeddings", apply: migrateV1},
	{version: 2, name: "stars, collections, smart folders and waveforms", apply: migrateV2},
}

const appMetaSchema = `
	CREATE TABLE IF NOT EXISTS app_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`

func migrateV1(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS clips (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		path TEXT NOT NULL UNIQUE,
		dir_source TEXT NOT NULL,
		recorded_at INTEGER NOT NULL,
		file_size INTEGER NOT NULL,
		duration_secs REAL,
		width INTEGER,
		height INTEGER,
		thumb_path TEXT,
		description TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_clips_recorded ON clips(recorded_at);
	CREATE INDEX IF NOT EXISTS idx_clips_path ON clips(path);

	CREATE TABLE IF NOT EXISTS tags (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		color TEXT NOT NULL DEFAULT '#6366f1',
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS clip_tags (
		clip_id TEXT NOT NULL REFERENCES clips(id) ON DELETE CASCADE,
		tag_id TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
		PRIMARY KEY (clip_id, tag_id)
	);
	CREATE INDEX IF NOT EXISTS idx_ct_clip ON clip_tags(clip_id);
	CREATE INDEX IF NOT EXISTS idx_ct_tag ON clip_tags(tag_id);

	CREATE TABLE IF NOT EXISTS embeddings (
		clip_id TEXT PRIMARY KEY REFERENCES clips(id) ON DELETE CASCADE,
		vector BLOB NOT NULL,
		model_version TEXT NOT NULL DEFAULT 'hashed-bow-v1',
		updated_at INTEGER NOT NULL
	);`)
	return err
}

func migrateV2(ctx context.Context, tx *sql.Tx) error {
	// A file touched by an older build may already carry the column.
	var starredExists bool
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) > 0
		FROM pragma_table_info('clips')
		WHERE name = 'starred'
	`).Scan(&starredExists)
	if err != nil {
		return fmt.Errorf("failed to check for starred column: %w", err)
	}

	if !starredExists {
		if _, err := tx.ExecContext(ctx, `ALTER TABLE clips ADD COLUMN starred INTEGER NOT NULL DEFAULT 0`); err != nil {
			return fmt.Errorf("failed to add starred column: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS collections (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		color TEXT NOT NULL DEFAULT '#6366f1',
		sort_order INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS collection_clips (
		collection_id TEXT NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
		clip_id TEXT NOT NULL REFERENCES clips(id) ON DELETE CASCADE,
		sort_order INTEGER NOT NULL DEFAULT 0,
		added_at INTEGER NOT NULL,
		PRIMARY KEY (collection_id, clip_id)
	);
	CREATE INDEX IF NOT EXISTS idx_cc_collection ON collection_clips(collection_id);
	CREATE INDEX IF NOT EXISTS idx_cc_clip ON collection_clips(clip_id);

	CREATE TABLE IF NOT EXISTS smart_folders (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		color TEXT NOT NULL DEFAULT '#06b6d4',
		rules TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS waveforms (
		clip_id TEXT PRIMARY KEY REFERENCES clips(id) ON DELETE CASCADE,
		samples BLOB NOT NULL,
		sample_count INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);`)
	return err
}

// Initialize creates app_meta, then applies every migration newer than the
// persisted schema version, each in its own transaction that also records
// the version it reached. Calling it again on a current database is a no-op.
func (d *Database) Initialize(ctx context.Context) (err error) {
	done := observeQuery("initialize")
	defer func() { done(err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.db.ExecContext(ctx, appMetaSchema); err != nil {
		return fmt.Errorf("failed to create app_meta: %w", err)
	}

	current, err := d.schemaVersion(ctx, d.db)
	if err != nil {
		return err
	}

	if current > LatestSchemaVersion {
		logging.Warn("Database schema version %d is newer than this build (%d); leaving it untouched",
			current, LatestSchemaVersion)
		return nil
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		logging.Info("Migrating database to schema version %d: %s", m.version, m.name)
		if err := d.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		current = m.version
	}

	return nil
}

func (d *Database) applyMigration(ctx context.Context, m migration) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				logging.Error("failed to rollback migration %d: %v", m.version, rbErr)
			}
		}
	}()

	if err := m.apply(ctx, tx); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO app_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, schemaVersionKey, strconv.Itoa(m.version)); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// SchemaVersion returns the persisted schema version, 0 when absent or
// unparsable.
func (d *Database) SchemaVersion(ctx context.Context) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	return d.schemaVersion(ctx, d.db)
}

// schemaVersion reads the version without locking; callers hold d.mu.
func (d *Database) schemaVersion(ctx context.Context, q queryRower) (int, error) {
	var raw string
	err := q.QueryRowContext(ctx, "SELECT value FROM app_meta WHERE key = ?", schemaVersionKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}

	v, convErr := strconv.Atoi(raw)
	if convErr != nil {
		logging.Warn("Ignoring unparsable schema version %q", raw)
		return 0, nil
	}
	return v, nil
}

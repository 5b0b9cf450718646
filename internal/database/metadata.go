package database

import (
	"context"
	"database/sql"
	"errors"
)

// GetMeta returns an app_meta value. ok is false when the key is absent.
func (d *Database) GetMeta(ctx context.Context, key string) (value string, ok bool, err error) {
	done := observeQuery("get_meta")
	defer func() { done(err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	err = d.db.QueryRowContext(ctx, "SELECT value FROM app_meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetMeta upserts an app_meta value.
func (d *Database) SetMeta(ctx context.Context, key, value string) (err error) {
	done := observeQuery("set_meta")
	defer func() { done(err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO app_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

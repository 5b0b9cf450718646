package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GetAllCollections returns collections in display order with clip counts.
func (d *Database) GetAllCollections(ctx context.Context) (cols []Collection, err error) {
	done := observeQuery("get_all_collections")
	defer func() { done(err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.description, c.color, c.sort_order, c.created_at, c.updated_at,
			(SELECT COUNT(*) FROM collection_clips cc WHERE cc.collection_id = c.id) AS clip_count
		FROM collections c
		ORDER BY c.sort_order, c.name COLLATE NOCASE
	`)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	cols = []Collection{}
	for rows.Next() {
		var c Collection
		var created, updated int64
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Color, &c.SortOrder,
			&created, &updated, &c.ClipCount); err != nil {
			return nil, err
		}
		c.CreatedAt = time.Unix(created, 0).UTC()
		c.UpdatedAt = time.Unix(updated, 0).UTC()
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// CreateCollection adds an empty collection at the end of the display order.
func (d *Database) CreateCollection(ctx context.Context, name, description, color string) (col *Collection, err error) {
	done := observeQuery("create_collection")
	defer func() { done(err) }()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("collection name cannot be empty")
	}
	if color == "" {
		color = DefaultTagColor
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	var next int
	if err := d.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(sort_order) + 1, 0) FROM collections",
	).Scan(&next); err != nil {
		return nil, err
	}

	now := nowUnix()
	col = &Collection{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Color:       color,
		SortOrder:   next,
		CreatedAt:   time.Unix(now, 0).UTC(),
		UpdatedAt:   time.Unix(now, 0).UTC(),
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO collections (id, name, description, color, sort_order, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, col.ID, col.Name, col.Description, col.Color, col.SortOrder, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	return col, nil
}

// UpdateCollection rewrites a collection's name, description, color and
// sort order.
func (d *Database) UpdateCollection(ctx context.Context, col *Collection) (err error) {
	done := observeQuery("update_collection")
	defer func() { done(err) }()

	if strings.TrimSpace(col.Name) == "" {
		return errors.New("collection name cannot be empty")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	now := nowUnix()
	res, err := d.db.ExecContext(ctx, `
		UPDATE collections SET name = ?, description = ?, color = ?, sort_order = ?, updated_at = ?
		WHERE id = ?
	`, col.Name, col.Description, col.Color, col.SortOrder, now, col.ID)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}
	col.UpdatedAt = time.Unix(now, 0).UTC()
	return nil
}

// DeleteCollection removes a collection; memberships cascade, clips stay.
func (d *Database) DeleteCollection(ctx context.Context, id string) (err error) {
	done := observeQuery("delete_collection")
	defer func() { done(err) }()

	return d.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE clips SET updated_at = ?
			WHERE id IN (SELECT clip_id FROM collection_clips WHERE collection_id = ?)
		`, nowUnix(), id); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, "DELETE FROM collections WHERE id = ?", id)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

// GetCollectionClipIDs returns member clip ids ordered by position, then by
// when they were added.
func (d *Database) GetCollectionClipIDs(ctx context.Context, collectionID string) (ids []string, err error) {
	done := observeQuery("get_collection_clips")
	defer func() { done(err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT clip_id FROM collection_clips
		WHERE collection_id = ?
		ORDER BY sort_order, added_at
	`, collectionID)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	ids = []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

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

// DefaultTagColor is used when a tag is created without a color.
const DefaultTagColor = "#6366f1"

// GetAllTags returns every tag, alphabetically, with its clip count.
func (d *Database) GetAllTags(ctx context.Context) (tags []Tag, err error) {
	done := observeQuery("get_all_tags")
	defer func() { done(err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.color, t.created_at,
			(SELECT COUNT(*) FROM clip_tags ct WHERE ct.tag_id = t.id) AS clip_count
		FROM tags t
		ORDER BY t.name COLLATE NOCASE
	`)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	tags = []Tag{}
	for rows.Next() {
		var tag Tag
		var createdAt int64
		if err := rows.Scan(&tag.ID, &tag.Name, &tag.Color, &createdAt, &tag.ClipCount); err != nil {
			return nil, err
		}
		tag.CreatedAt = time.Unix(createdAt, 0).UTC()
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// CreateTag adds a tag. Names are unique; an empty color uses DefaultTagColor.
func (d *Database) CreateTag(ctx context.Context, name, color string) (tag *Tag, err error) {
	done := observeQuery("create_tag")
	defer func() { done(err) }()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("tag name cannot be empty")
	}
	if color == "" {
		color = DefaultTagColor
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	now := nowUnix()
	tag = &Tag{ID: uuid.NewString(), Name: name, Color: color, CreatedAt: time.Unix(now, 0).UTC()}

	_, err = d.db.ExecContext(ctx,
		"INSERT INTO tags (id, name, color, created_at) VALUES (?, ?, ?, ?)",
		tag.ID, tag.Name, tag.Color, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tag: %w", classify(err))
	}
	return tag, nil
}

// DeleteTag removes a tag; its clip associations cascade.
func (d *Database) DeleteTag(ctx context.Context, id string) (err error) {
	done := observeQuery("delete_tag")
	defer func() { done(err) }()

	return d.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		// Clips losing the tag count as modified.
		if _, err := tx.ExecContext(ctx, `
			UPDATE clips SET updated_at = ?
			WHERE id IN (SELECT clip_id FROM clip_tags WHERE tag_id = ?)
		`, nowUnix(), id); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, "DELETE FROM tags WHERE id = ?", id)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

// AddClipTag attaches a tag to one clip. Re-adding is a no-op.
func (d *Database) AddClipTag(ctx context.Context, clipID, tagID string) error {
	return d.BulkAddTag(ctx, []string{clipID}, tagID)
}

// RemoveClipTag detaches a tag from one clip.
func (d *Database) RemoveClipTag(ctx context.Context, clipID, tagID string) error {
	return d.BulkRemoveTag(ctx, []string{clipID}, tagID)
}

// GetClipTagIDs returns the tag ids attached to a clip.
func (d *Database) GetClipTagIDs(ctx context.Context, clipID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	return d.clipTagIDsUnlocked(ctx, clipID)
}

// clipTagIDsUnlocked returns tags without acquiring lock.
// Caller must hold at least a read lock.
func (d *Database) clipTagIDsUnlocked(ctx context.Context, clipID string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT tag_id FROM clip_tags WHERE clip_id = ? ORDER BY tag_id", clipID)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// requireRow turns a zero-row result into ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

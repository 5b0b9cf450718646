package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Bulk mutations run in one transaction: either every targeted clip is
// updated or none is. Each touched clip gets a fresh updated_at, and an
// unknown clip id fails the whole batch.

// BulkAddTag attaches tagID to every clip in clipIDs.
func (d *Database) BulkAddTag(ctx context.Context, clipIDs []string, tagID string) (err error) {
	done := observeQuery("bulk_add_tag")
	defer func() { done(err) }()

	if len(clipIDs) == 0 {
		return nil
	}

	return d.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		now := nowUnix()
		for _, clipID := range clipIDs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO clip_tags (clip_id, tag_id) VALUES (?, ?)
				ON CONFLICT(clip_id, tag_id) DO NOTHING
			`, clipID, tagID); err != nil {
				return fmt.Errorf("tag clip %s: %w", clipID, err)
			}
			if err := touchClip(ctx, tx, clipID, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// BulkRemoveTag detaches tagID from every clip in clipIDs.
func (d *Database) BulkRemoveTag(ctx context.Context, clipIDs []string, tagID string) (err error) {
	done := observeQuery("bulk_remove_tag")
	defer func() { done(err) }()

	if len(clipIDs) == 0 {
		return nil
	}

	return d.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		now := nowUnix()
		for _, clipID := range clipIDs {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM clip_tags WHERE clip_id = ? AND tag_id = ?", clipID, tagID,
			); err != nil {
				return fmt.Errorf("untag clip %s: %w", clipID, err)
			}
			if err := touchClip(ctx, tx, clipID, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// BulkStar sets the starred flag on every clip in clipIDs.
func (d *Database) BulkStar(ctx context.Context, clipIDs []string, starred bool) (err error) {
	done := observeQuery("bulk_star")
	defer func() { done(err) }()

	if len(clipIDs) == 0 {
		return nil
	}

	return d.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, "UPDATE clips SET starred = ?, updated_at = ? WHERE id = ?")
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := nowUnix()
		for _, clipID := range clipIDs {
			res, err := stmt.ExecContext(ctx, boolToInt(starred), now, clipID)
			if err != nil {
				return fmt.Errorf("star clip %s: %w", clipID, err)
			}
			if err := requireRow(res); err != nil {
				return fmt.Errorf("clip %s: %w", clipID, err)
			}
		}
		return nil
	})
}

// AddClipsToCollection appends clips to a collection after its current last
// entry. Clips already present keep their position.
func (d *Database) AddClipsToCollection(ctx context.Context, collectionID string, clipIDs []string) (err error) {
	done := observeQuery("add_to_collection")
	defer func() { done(err) }()

	if len(clipIDs) == 0 {
		return nil
	}

	return d.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var next int
		if err := tx.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(sort_order) + 1, 0) FROM collection_clips WHERE collection_id = ?",
			collectionID,
		).Scan(&next); err != nil {
			return err
		}

		now := nowUnix()
		for _, clipID := range clipIDs {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO collection_clips (collection_id, clip_id, sort_order, added_at)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(collection_id, clip_id) DO NOTHING
			`, collectionID, clipID, next, now)
			if err != nil {
				return fmt.Errorf("add clip %s to collection: %w", clipID, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				next++
			}
			if err := touchClip(ctx, tx, clipID, now); err != nil {
				return err
			}
		}
		return touchCollection(ctx, tx, collectionID, now)
	})
}

// RemoveClipsFromCollection drops clips from a collection.
func (d *Database) RemoveClipsFromCollection(ctx context.Context, collectionID string, clipIDs []string) (err error) {
	done := observeQuery("remove_from_collection")
	defer func() { done(err) }()

	if len(clipIDs) == 0 {
		return nil
	}

	return d.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		now := nowUnix()
		for _, clipID := range clipIDs {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM collection_clips WHERE collection_id = ? AND clip_id = ?",
				collectionID, clipID,
			); err != nil {
				return fmt.Errorf("remove clip %s from collection: %w", clipID, err)
			}
			if err := touchClip(ctx, tx, clipID, now); err != nil {
				return err
			}
		}
		return touchCollection(ctx, tx, collectionID, now)
	})
}

func touchClip(ctx context.Context, tx *sql.Tx, clipID string, now int64) error {
	res, err := tx.ExecContext(ctx, "UPDATE clips SET updated_at = ? WHERE id = ?", now, clipID)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return fmt.Errorf("clip %s: %w", clipID, err)
	}
	return nil
}

func touchCollection(ctx context.Context, tx *sql.Tx, collectionID string, now int64) error {
	res, err := tx.ExecContext(ctx, "UPDATE collections SET updated_at = ? WHERE id = ?", now, collectionID)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return fmt.Errorf("collection %s: %w", collectionID, err)
	}
	return nil
}

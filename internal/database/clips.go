package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const clipColumns = `id, filename, path, dir_source, recorded_at, file_size,
	duration_secs, width, height, thumb_path, description, starred, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClip(row rowScanner) (Clip, error) {
	var (
		c                            Clip
		recordedAt, created, updated int64
		duration                     sql.NullFloat64
		width, height                sql.NullInt64
		thumb                        sql.NullString
		starred                      int
	)

	err := row.Scan(&c.ID, &c.Filename, &c.Path, &c.DirSource, &recordedAt, &c.FileSize,
		&duration, &width, &height, &thumb, &c.Description, &starred, &created, &updated)
	if err != nil {
		return c, err
	}

	c.RecordedAt = time.Unix(recordedAt, 0).UTC()
	c.CreatedAt = time.Unix(created, 0).UTC()
	c.UpdatedAt = time.Unix(updated, 0).UTC()
	c.Starred = starred != 0
	if duration.Valid {
		c.DurationSecs = &duration.Float64
	}
	if width.Valid {
		w := int(width.Int64)
		c.Width = &w
	}
	if height.Valid {
		h := int(height.Int64)
		c.Height = &h
	}
	if thumb.Valid {
		c.ThumbPath = &thumb.String
	}
	c.Tags = []string{}
	return c, nil
}

// ExistsByPath reports whether a clip with this absolute path is catalogued.
func (d *Database) ExistsByPath(ctx context.Context, path string) (exists bool, err error) {
	done := observeQuery("exists_by_path")
	defer func() { done(err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	err = d.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM clips WHERE path = ?)", path,
	).Scan(&exists)
	return exists, err
}

// InsertIfAbsent adds clip unless its path is already catalogued, in which
// case the existing row and its id are kept and inserted is false. An empty
// ID is filled with a fresh UUID; zero CreatedAt/UpdatedAt default to now.
func (d *Database) InsertIfAbsent(ctx context.Context, clip *Clip) (inserted bool, err error) {
	done := observeQuery("insert_clip")
	defer func() { done(err) }()

	if clip.Path == "" {
		return false, fmt.Errorf("clip path is empty")
	}
	if clip.ID == "" {
		clip.ID = uuid.NewString()
	}
	now := time.Now().UTC().Truncate(time.Second)
	if clip.CreatedAt.IsZero() {
		clip.CreatedAt = now
	}
	if clip.UpdatedAt.IsZero() {
		clip.UpdatedAt = now
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	res, err := d.db.ExecContext(ctx, `
		INSERT INTO clips (id, filename, path, dir_source, recorded_at, file_size,
			duration_secs, width, height, thumb_path, description, starred, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO NOTHING
	`, clip.ID, clip.Filename, clip.Path, clip.DirSource, clip.RecordedAt.Unix(), clip.FileSize,
		clip.DurationSecs, clip.Width, clip.Height, clip.ThumbPath, clip.Description,
		boolToInt(clip.Starred), clip.CreatedAt.Unix(), clip.UpdatedAt.Unix())
	if err != nil {
		return false, fmt.Errorf("insert clip %s: %w", clip.Path, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetAllClips returns every clip, newest recording first, with tag ids
// attached.
func (d *Database) GetAllClips(ctx context.Context) (clips []Clip, err error) {
	done := observeQuery("get_all_clips")
	defer func() { done(err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	// Tags first: the single connection is busy while rows are open.
	tagMap, err := d.loadClipTagsUnlocked(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := d.db.QueryContext(ctx,
		"SELECT "+clipColumns+" FROM clips ORDER BY recorded_at DESC, path ASC")
	if err != nil {
		return nil, fmt.Errorf("query clips: %w", err)
	}
	defer closeRows(rows)

	clips = []Clip{}
	for rows.Next() {
		c, err := scanClip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan clip: %w", err)
		}
		if tags, ok := tagMap[c.ID]; ok {
			c.Tags = tags
		}
		clips = append(clips, c)
	}
	return clips, rows.Err()
}

func (d *Database) loadClipTagsUnlocked(ctx context.Context) (map[string][]string, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT clip_id, tag_id FROM clip_tags ORDER BY clip_id, tag_id")
	if err != nil {
		return nil, fmt.Errorf("query clip tags: %w", err)
	}
	defer closeRows(rows)

	tagMap := make(map[string][]string)
	for rows.Next() {
		var clipID, tagID string
		if err := rows.Scan(&clipID, &tagID); err != nil {
			return nil, err
		}
		tagMap[clipID] = append(tagMap[clipID], tagID)
	}
	return tagMap, rows.Err()
}

// GetClip returns a single clip or ErrNotFound.
func (d *Database) GetClip(ctx context.Context, id string) (clip *Clip, err error) {
	done := observeQuery("get_clip")
	defer func() { done(err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	c, err := scanClip(d.db.QueryRowContext(ctx, "SELECT "+clipColumns+" FROM clips WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	c.Tags, err = d.clipTagIDsUnlocked(ctx, id)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ClipsNeedingBackfill returns clips still missing a thumbnail or duration.
func (d *Database) ClipsNeedingBackfill(ctx context.Context) (clips []Clip, err error) {
	done := observeQuery("clips_needing_backfill")
	defer func() { done(err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, "SELECT "+clipColumns+` FROM clips
		WHERE thumb_path IS NULL OR duration_secs IS NULL
		ORDER BY recorded_at DESC`)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	for rows.Next() {
		c, err := scanClip(rows)
		if err != nil {
			return nil, err
		}
		clips = append(clips, c)
	}
	return clips, rows.Err()
}

// updateClip runs a single-row UPDATE that also bumps updated_at.
func (d *Database) updateClip(ctx context.Context, operation, set, id string, args ...any) (err error) {
	done := observeQuery(operation)
	defer func() { done(err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	args = append(args, nowUnix(), id)
	res, err := d.db.ExecContext(ctx, "UPDATE clips SET "+set+", updated_at = ? WHERE id = ?", args...)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// UpdateClipMeta stores probe results.
func (d *Database) UpdateClipMeta(ctx context.Context, id string, durationSecs float64, width, height int) error {
	return d.updateClip(ctx, "update_clip_meta", "duration_secs = ?, width = ?, height = ?", id,
		durationSecs, width, height)
}

// UpdateClipThumb stores the generated thumbnail path.
func (d *Database) UpdateClipThumb(ctx context.Context, id, thumbPath string) error {
	return d.updateClip(ctx, "update_clip_thumb", "thumb_path = ?", id, thumbPath)
}

// UpdateDescription replaces a clip's free-text description.
func (d *Database) UpdateDescription(ctx context.Context, id, description string) error {
	return d.updateClip(ctx, "update_description", "description = ?", id, description)
}

// SetStarred sets or clears a clip's star.
func (d *Database) SetStarred(ctx context.Context, id string, starred bool) error {
	return d.updateClip(ctx, "set_starred", "starred = ?", id, boolToInt(starred))
}

// DeleteClips removes the given clips in one transaction; associations and
// cached artifacts cascade. It returns the number of rows removed.
func (d *Database) DeleteClips(ctx context.Context, ids []string) (deleted int64, err error) {
	done := observeQuery("delete_clips")
	defer func() { done(err) }()

	if len(ids) == 0 {
		return 0, nil
	}

	err = d.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, "DELETE FROM clips WHERE id = ?")
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, id := range ids {
			res, err := stmt.ExecContext(ctx, id)
			if err != nil {
				return fmt.Errorf("delete clip %s: %w", id, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			deleted += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// CountClips returns the number of catalogued clips.
func (d *Database) CountClips(ctx context.Context) (n int, err error) {
	done := observeQuery("count_clips")
	defer func() { done(err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	err = d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM clips").Scan(&n)
	return n, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

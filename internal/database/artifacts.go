package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// DefaultEmbeddingModel labels vectors written without an explicit model.
const DefaultEmbeddingModel = "hashed-bow-v1"

// UpsertEmbedding stores a clip's vector, replacing any previous one.
func (d *Database) UpsertEmbedding(ctx context.Context, clipID string, vector []byte, modelVersion string) (err error) {
	done := observeQuery("upsert_embedding")
	defer func() { done(err) }()

	if modelVersion == "" {
		modelVersion = DefaultEmbeddingModel
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO embeddings (clip_id, vector, model_version, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(clip_id) DO UPDATE SET
			vector = excluded.vector,
			model_version = excluded.model_version,
			updated_at = excluded.updated_at
	`, clipID, vector, modelVersion, nowUnix())
	return err
}

// GetAllEmbeddings returns every stored vector.
func (d *Database) GetAllEmbeddings(ctx context.Context) (out []Embedding, err error) {
	done := observeQuery("get_all_embeddings")
	defer func() { done(err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	rows, err := d.db.QueryContext(ctx,
		"SELECT clip_id, vector, model_version, updated_at FROM embeddings")
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	for rows.Next() {
		var e Embedding
		var updated int64
		if err := rows.Scan(&e.ClipID, &e.Vector, &e.ModelVersion, &updated); err != nil {
			return nil, err
		}
		e.UpdatedAt = time.Unix(updated, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetWaveform returns the cached waveform for a clip, or nil when none is
// cached.
func (d *Database) GetWaveform(ctx context.Context, clipID string) (wf *Waveform, err error) {
	done := observeQuery("get_waveform")
	defer func() { done(err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	var w Waveform
	var created int64
	err = d.db.QueryRowContext(ctx,
		"SELECT clip_id, samples, sample_count, created_at FROM waveforms WHERE clip_id = ?", clipID,
	).Scan(&w.ClipID, &w.Samples, &w.SampleCount, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	w.CreatedAt = time.Unix(created, 0).UTC()
	return &w, nil
}

// SaveWaveform caches waveform samples for a clip, replacing any previous
// entry.
func (d *Database) SaveWaveform(ctx context.Context, clipID string, samples []byte, sampleCount int) (err error) {
	done := observeQuery("save_waveform")
	defer func() { done(err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO waveforms (clip_id, samples, sample_count, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(clip_id) DO UPDATE SET
			samples = excluded.samples,
			sample_count = excluded.sample_count,
			created_at = excluded.created_at
	`, clipID, samples, sampleCount, nowUnix())
	return err
}

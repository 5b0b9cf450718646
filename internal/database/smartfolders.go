package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultSmartFolderColor is used when a smart folder is created without a color.
const DefaultSmartFolderColor = "#06b6d4"

// GetAllSmartFolders returns smart folders alphabetically.
func (d *Database) GetAllSmartFolders(ctx context.Context) (folders []SmartFolder, err error) {
	done := observeQuery("get_all_smart_folders")
	defer func() { done(err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, name, color, rules, created_at, updated_at
		FROM smart_folders
		ORDER BY name COLLATE NOCASE
	`)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	folders = []SmartFolder{}
	for rows.Next() {
		var f SmartFolder
		var created, updated int64
		if err := rows.Scan(&f.ID, &f.Name, &f.Color, &f.Rules, &created, &updated); err != nil {
			return nil, err
		}
		f.CreatedAt = time.Unix(created, 0).UTC()
		f.UpdatedAt = time.Unix(updated, 0).UTC()
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

// CreateSmartFolder stores a named rule set.
func (d *Database) CreateSmartFolder(ctx context.Context, name, color string, rules RuleSet) (folder *SmartFolder, err error) {
	done := observeQuery("create_smart_folder")
	defer func() { done(err) }()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("smart folder name cannot be empty")
	}
	if color == "" {
		color = DefaultSmartFolderColor
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	now := nowUnix()
	folder = &SmartFolder{
		ID:        uuid.NewString(),
		Name:      name,
		Color:     color,
		Rules:     rules,
		CreatedAt: time.Unix(now, 0).UTC(),
		UpdatedAt: time.Unix(now, 0).UTC(),
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO smart_folders (id, name, color, rules, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, folder.ID, folder.Name, folder.Color, folder.Rules, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create smart folder: %w", err)
	}
	return folder, nil
}

// UpdateSmartFolder replaces a smart folder's name, color and rules.
func (d *Database) UpdateSmartFolder(ctx context.Context, id, name, color string, rules RuleSet) (err error) {
	done := observeQuery("update_smart_folder")
	defer func() { done(err) }()

	if strings.TrimSpace(name) == "" {
		return errors.New("smart folder name cannot be empty")
	}
	if color == "" {
		color = DefaultSmartFolderColor
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	res, err := d.db.ExecContext(ctx, `
		UPDATE smart_folders SET name = ?, color = ?, rules = ?, updated_at = ?
		WHERE id = ?
	`, name, color, rules, nowUnix(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// DeleteSmartFolder removes a smart folder.
func (d *Database) DeleteSmartFolder(ctx context.Context, id string) (err error) {
	done := observeQuery("delete_smart_folder")
	defer func() { done(err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	res, err := d.db.ExecContext(ctx, "DELETE FROM smart_folders WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

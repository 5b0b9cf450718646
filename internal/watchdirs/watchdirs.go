// Package watchdirs resolves which directories the scanner and watcher
// operate on: the list persisted in app_meta, or the platform's default
// videos directory when none is configured.
package watchdirs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"clip-catalog/internal/logging"
)

// MetaKey is the app_meta key holding the JSON array of watch directories.
const MetaKey = "watch_dirs"

// MetaStore is the slice of the catalog store the resolver needs.
type MetaStore interface {
	GetMeta(ctx context.Context, key string) (string, bool, error)
	SetMeta(ctx context.Context, key, value string) error
}

// Resolver reads and writes the active watch directory list.
type Resolver struct {
	store      MetaStore
	defaultDir func() string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithDefault overrides the platform default directory lookup. fn may
// return "" to mean no default.
func WithDefault(fn func() string) Option {
	return func(r *Resolver) {
		r.defaultDir = fn
	}
}

// NewResolver returns a resolver backed by store.
func NewResolver(store MetaStore, opts ...Option) *Resolver {
	r := &Resolver{store: store, defaultDir: DefaultVideosDir}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the configured directories, or the platform default when
// the persisted list is absent, empty or unparsable. It returns nil when no
// default can be determined. Directories are not checked for existence.
func (r *Resolver) Resolve(ctx context.Context) []string {
	dirs, err := r.Configured(ctx)
	if err != nil {
		logging.Warn("Falling back to default watch directory: %v", err)
	}
	if len(dirs) > 0 {
		return dirs
	}

	if def := r.defaultDir(); def != "" {
		return []string{def}
	}
	return nil
}

// Configured returns only the persisted list, which may be empty.
func (r *Resolver) Configured(ctx context.Context) ([]string, error) {
	raw, ok, err := r.store.GetMeta(ctx, MetaKey)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", MetaKey, err)
	}
	if !ok {
		return nil, nil
	}

	var dirs []string
	if err := json.Unmarshal([]byte(raw), &dirs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", MetaKey, err)
	}
	return dirs, nil
}

// Set normalizes dirs (absolute, cleaned, de-duplicated, order kept) and
// persists them. An empty list reverts to the platform default.
func (r *Resolver) Set(ctx context.Context, dirs []string) ([]string, error) {
	normalized, err := Normalize(dirs)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(normalized)
	if err != nil {
		return nil, err
	}
	if err := r.store.SetMeta(ctx, MetaKey, string(data)); err != nil {
		return nil, fmt.Errorf("save %s: %w", MetaKey, err)
	}

	logging.Info("Watch directories set to %v", normalized)
	return normalized, nil
}

// Normalize makes each entry absolute and clean, dropping duplicates.
func Normalize(dirs []string) ([]string, error) {
	out := make([]string, 0, len(dirs))
	seen := make(map[string]bool, len(dirs))

	for _, d := range dirs {
		d = strings.TrimSpace(d)
		if d == "" {
			return nil, errors.New("watch directory path is empty")
		}
		abs, err := filepath.Abs(expandHome(d))
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", d, err)
		}
		if seen[abs] {
			continue
		}
		seen[abs] = true
		out = append(out, abs)
	}
	return out, nil
}

// Existing filters dirs down to those that currently exist as directories.
func Existing(dirs []string) []string {
	var out []string
	for _, d := range dirs {
		info, err := os.Stat(d)
		if err != nil || !info.IsDir() {
			continue
		}
		out = append(out, d)
	}
	return out
}

// DefaultVideosDir returns the user's videos directory for this platform,
// or "" when the home directory is unknown.
func DefaultVideosDir() string {
	if runtime.GOOS == "linux" || runtime.GOOS == "freebsd" || runtime.GOOS == "openbsd" {
		if xdg := os.Getenv("XDG_VIDEOS_DIR"); xdg != "" {
			return expandHome(xdg)
		}
	}

	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Movies")
	}
	return filepath.Join(home, "Videos")
}

// expandHome rewrites a leading ~ or $HOME, as written in user-dirs.dirs.
func expandHome(p string) string {
	var rest string
	switch {
	case p == "~":
	case strings.HasPrefix(p, "~/"):
		rest = p[2:]
	case strings.HasPrefix(p, "$HOME"):
		rest = strings.TrimPrefix(p[len("$HOME"):], "/")
	default:
		return p
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, rest)
}

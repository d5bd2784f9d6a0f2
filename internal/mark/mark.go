// Package mark records which chapters have already been delivered so that
// later runs never fetch or send them again.
package mark

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// Key identifies one chapter of one comic on one source.
type Key struct {
	Source    string
	ComicID   string
	ChapterID string
}

// String returns the stable "{source}_{comic}_{chapter}" form used as the
// marker file name and as the Redis key suffix.
func (k Key) String() string {
	return k.Source + "_" + k.ComicID + "_" + k.ChapterID
}

// Store is a durable, idempotent set of delivered chapters.
//
// Mark must succeed when the key is already present. IsMarked must not have
// side effects; it is called concurrently from every fetch branch.
type Store interface {
	IsMarked(ctx context.Context, key Key) (bool, error)
	Mark(ctx context.Context, key Key) error
	Close() error
}

// Open returns the store selected by rawURL. An empty URL selects the
// marker directory under repoDir.
//
// Supported schemes: file, sqlite, postgres/postgresql, redis/rediss.
func Open(ctx context.Context, rawURL, repoDir string) (Store, error) {
	if rawURL == "" {
		return NewFileStore(filepath.Join(repoDir, "mark")), nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid mark store url: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		dir := u.Path
		if dir == "" {
			dir = filepath.Join(repoDir, "mark")
		}
		return NewFileStore(dir), nil
	case "sqlite":
		return NewSQLiteStore(u.Host + u.Path)
	case "postgres", "postgresql":
		return NewGormStore(rawURL)
	case "redis", "rediss":
		return NewRedisStore(ctx, rawURL)
	default:
		return nil, fmt.Errorf("unsupported mark store scheme %q", u.Scheme)
	}
}

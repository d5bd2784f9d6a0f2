// Package cache holds downloaded page images for the duration of one run.
package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Cache is a directory of page files named after the page they hold.
// Concurrent branches always write distinct names, so no locking is needed.
type Cache struct {
	root   string
	logger *slog.Logger
	once   sync.Once
}

// New returns a cache rooted at root. Nothing touches the disk until the
// first Create.
func New(root string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{root: root, logger: logger}
}

// Root returns the cache directory.
func (c *Cache) Root() string {
	return c.root
}

// Name returns the file name for one page: {tag}_{comic}_{chapter}_{index}.{ext}.
func Name(tag, comicID, chapterID string, index int, ext string) string {
	return fmt.Sprintf("%s_%s_%s_%d.%s", tag, comicID, chapterID, index, ext)
}

// Create opens a fresh writable file for one page. The caller closes it;
// the file itself lives until Teardown.
func (c *Cache) Create(tag, comicID, chapterID string, index int, ext string) (*os.File, error) {
	if err := os.MkdirAll(c.root, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	path := filepath.Join(c.root, Name(tag, comicID, chapterID, index, ext))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create cache file: %w", err)
	}
	return f, nil
}

// Teardown removes the whole cache directory. Only the first call does any
// work; failures are logged.
func (c *Cache) Teardown() {
	c.once.Do(func() {
		c.logger.Debug("[Cache] start clean up context", slog.String("root", c.root))
		if _, err := os.Stat(c.root); errors.Is(err, fs.ErrNotExist) {
			c.logger.Debug("[Cache] complete clean up context")
			return
		}
		if err := os.RemoveAll(c.root); err != nil {
			c.logger.Error("[Cache] failed to clean up cache", slog.Any("error", err))
			return
		}
		c.logger.Debug("[Cache] complete clean up context")
	})
}

package mark

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// nameReplacer keeps identifiers from escaping the mark directory.
var nameReplacer = strings.NewReplacer("/", "-", `\`, "-")

// FileStore keeps one empty file per delivered chapter inside dir.
type FileStore struct {
	dir string
}

// NewFileStore returns a store rooted at dir. The directory is created on
// the first Mark.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the marker directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(key Key) string {
	return filepath.Join(s.dir, nameReplacer.Replace(key.String()))
}

// IsMarked reports whether the marker file for key exists.
func (s *FileStore) IsMarked(_ context.Context, key Key) (bool, error) {
	_, err := os.Stat(s.path(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat mark %s: %w", key, err)
}

// Mark creates the marker file for key.
func (s *FileStore) Mark(_ context.Context, key Key) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create mark directory: %w", err)
	}
	f, err := os.OpenFile(s.path(key), os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create mark %s: %w", key, err)
	}
	return f.Close()
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

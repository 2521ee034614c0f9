// Package storage handles poster image files kept outside the
// database. The catalog stores only relative paths; this package owns
// the directory they resolve against.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PosterStore abstracts poster file removal so the catalog service can
// clean up after a permanent delete without knowing about the
// filesystem.
type PosterStore interface {
	// Remove deletes the poster at the given relative path. A missing
	// file is not an error; the movie row is already gone either way.
	Remove(relPath string) error
}

// FilePosterStore keeps posters under a base directory on local disk.
type FilePosterStore struct {
	baseDir string
}

func NewFilePosterStore(baseDir string) (*FilePosterStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating poster dir: %w", err)
	}
	return &FilePosterStore{baseDir: baseDir}, nil
}

// Remove deletes one poster file. Paths are cleaned and confined to the
// base directory so a crafted value cannot reach outside it.
func (s *FilePosterStore) Remove(relPath string) error {
	if relPath == "" {
		return nil
	}

	clean := filepath.Clean("/" + relPath) // forces the path absolute, then strips the root
	full := filepath.Join(s.baseDir, clean)
	if !strings.HasPrefix(full, filepath.Clean(s.baseDir)+string(os.PathSeparator)) {
		return fmt.Errorf("storage: poster path %q escapes base dir", relPath)
	}

	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: removing poster: %w", err)
	}
	return nil
}

var _ PosterStore = (*FilePosterStore)(nil)

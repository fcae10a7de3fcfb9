// Package local persists the cache as a JSON file on the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/community-finder/internal/cache"
)

// Config captures the parameters for the file store.
type Config struct {
	// Path is the cache file location.
	Path string `mapstructure:"path" yaml:"path"`
}

// FileStore reads and atomically replaces a single file.
type FileStore struct {
	path string
}

// New validates the file location, creating its directory if needed.
func New(cfg Config) (*FileStore, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("cache path is required")
	}
	dir := filepath.Dir(cfg.Path)

	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat cache directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("cache directory path is not a directory")
	}

	if info, err := os.Stat(cfg.Path); err == nil && info.IsDir() {
		return nil, fmt.Errorf("cache path %s is a directory", cfg.Path)
	}
	return &FileStore{path: cfg.Path}, nil
}

// Path returns the cache file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load returns the file contents, or cache.ErrNotFound when it does not exist.
func (s *FileStore) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read cache file: %w", err)
	}
	return data, nil
}

// Save writes data to a temporary file next to the target and renames it
// into place, so readers never observe a partially written cache.
func (s *FileStore) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("save cache file: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".cache-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace cache file: %w", err)
	}
	return nil
}

// Package local implements a local filesystem blob store.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Config captures the parameters for the local filesystem blob store.
type Config struct {
	// BaseDir is the root directory where blobs will be stored.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// BlobStore writes artifacts beneath a directory. Object paths are resolved
// through an os.Root, so they cannot escape the base directory.
type BlobStore struct {
	baseDir string
	root    *os.Root
}

// New creates a new local filesystem-backed blob store, creating the base
// directory if needed.
func New(cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	root, err := os.OpenRoot(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("open base directory: %w", err)
	}

	// Probe for write permission up front.
	const probe = ".writable_test"
	if err := root.WriteFile(probe, []byte("test"), 0o600); err != nil {
		_ = root.Close()
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := root.Remove(probe); err != nil {
		_ = root.Close()
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	abs, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		abs = cfg.BaseDir
	}
	return &BlobStore{baseDir: abs, root: root}, nil
}

// PutObject writes data to path under the base directory and returns a
// file:// URI.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, data io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	rel := filepath.Clean(filepath.FromSlash(path))

	if dir := filepath.Dir(rel); dir != "." {
		if err := s.root.MkdirAll(dir, 0o750); err != nil {
			return "", fmt.Errorf("failed to create parent directories: %w", err)
		}
	}

	f, err := s.root.OpenFile(rel, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close file: %w", err)
	}

	return "file://" + filepath.ToSlash(filepath.Join(s.baseDir, rel)), nil
}

// Close releases the directory handle.
func (s *BlobStore) Close() error {
	return s.root.Close()
}

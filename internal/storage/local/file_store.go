// Package local implements a filesystem-backed cache backend. Records live as
// plain files below a base directory, by default the project's
// node_modules/.progress directory.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/JakeFAU/build-progress/internal/storage"
)

// Config captures the parameters for the filesystem backend.
type Config struct {
	// BaseDir is the directory that holds cache files. It is created lazily on
	// the first write.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// FileStore reads and writes cache payloads on a filesystem.
type FileStore struct {
	fs      afero.Fs
	baseDir string
}

// New creates a filesystem-backed store. A nil fs selects the OS filesystem.
func New(cfg Config, fsys afero.Fs) (*FileStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	info, err := fsys.Stat(cfg.BaseDir)
	switch {
	case err == nil && !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("failed to stat base directory: %w", err)
	}

	return &FileStore{
		fs:      fsys,
		baseDir: filepath.Clean(cfg.BaseDir),
	}, nil
}

// Read returns the file content stored under name, or storage.ErrNotFound.
func (s *FileStore) Read(_ context.Context, name string) ([]byte, error) {
	fullPath, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", fullPath, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// Write creates the base directory if needed and replaces the file content.
func (s *FileStore) Write(_ context.Context, name string, data []byte) error {
	fullPath, err := s.resolve(name)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return fmt.Errorf("failed to create parent directories: %w", err)
	}
	if err := afero.WriteFile(s.fs, fullPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// Path returns the absolute location a name maps to. It is informational and
// used for diagnostics only.
func (s *FileStore) Path(name string) string {
	return filepath.Join(s.baseDir, name)
}

func (s *FileStore) resolve(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("path is required")
	}
	fullPath := filepath.Clean(filepath.Join(s.baseDir, name))
	// Keep every file inside baseDir.
	if !strings.HasPrefix(fullPath, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return fullPath, nil
}

// Package scan counts the project's own source files. The count seeds the
// cold-mode estimate when no cache record exists.
package scan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/spf13/afero"
)

// DefaultExtensions lists the source file types counted by default.
var DefaultExtensions = []string{"vue", "ts", "js", "jsx", "tsx", "css", "scss", "sass", "styl", "less"}

// ErrNoExtensions is returned when a Scanner is built with an empty allow-list.
var ErrNoExtensions = errors.New("at least one extension is required")

// Config describes what to count.
type Config struct {
	// Root is the directory to walk, usually <project>/src.
	Root string
	// Extensions is the allow-list without leading dots.
	Extensions []string
}

// Scanner walks Root and counts files whose name matches the allow-list.
type Scanner struct {
	fs      afero.Fs
	root    string
	pattern string
	matcher glob.Glob
}

// New compiles the extension allow-list. A nil fs selects the OS filesystem.
func New(cfg Config, fsys afero.Fs) (*Scanner, error) {
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, fmt.Errorf("scan root is required")
	}
	exts := make([]string, 0, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			exts = append(exts, ext)
		}
	}
	if len(exts) == 0 {
		return nil, ErrNoExtensions
	}
	pattern := "*.{" + strings.Join(exts, ",") + "}"
	matcher, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Scanner{fs: fsys, root: filepath.Clean(cfg.Root), pattern: pattern, matcher: matcher}, nil
}

// Pattern returns the compiled file name pattern.
func (s *Scanner) Pattern() string {
	return s.pattern
}

// Root returns the directory the scanner walks.
func (s *Scanner) Root() string {
	return s.root
}

// Count returns the number of matching regular files below Root, hidden ones
// included. Extensions match case-insensitively. A missing root is an error;
// callers decide how to degrade.
func (s *Scanner) Count(ctx context.Context) (int, error) {
	info, err := s.fs.Stat(s.root)
	if err != nil {
		return 0, fmt.Errorf("stat scan root %s: %w", s.root, err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("scan root %s is not a directory", s.root)
	}

	count := 0
	err = afero.Walk(s.fs, s.root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.Mode().IsRegular() && s.matcher.Match(strings.ToLower(info.Name())) {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk %s: %w", s.root, err)
	}
	return count, nil
}

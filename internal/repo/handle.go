// Package repo validates local repository paths before any git work runs.
package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	gogit "github.com/go-git/go-git/v5"
)

// ErrNotRepository is returned when a path is not the root of a git working tree.
var ErrNotRepository = errors.New("not a git repository")

// Handle is a validated repository path. It holds no git state; callers
// re-check it before each use because the directory can change underneath.
type Handle struct {
	path string
}

// Open validates that path is an existing directory containing .git (a
// directory or a gitfile) that go-git can open.
func Open(path string) (Handle, error) {
	if path == "" {
		return Handle{}, fmt.Errorf("%w: empty path", ErrNotRepository)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return Handle{}, fmt.Errorf("resolve %s: %w", path, err)
	}
	h := Handle{path: filepath.Clean(abs)}
	if err := h.Check(); err != nil {
		return Handle{}, err
	}

	if _, err := gogit.PlainOpenWithOptions(h.path, &gogit.PlainOpenOptions{EnableDotGitCommonDir: true}); err != nil {
		return Handle{}, fmt.Errorf("%w: %s: %v", ErrNotRepository, h.path, err)
	}
	return h, nil
}

// Path returns the cleaned absolute path of the working tree.
func (h Handle) Path() string {
	return h.path
}

// Check confirms the path still exists and still contains .git.
func (h Handle) Check() error {
	if h.path == "" {
		return fmt.Errorf("%w: zero handle", ErrNotRepository)
	}
	info, err := os.Stat(h.path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotRepository, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrNotRepository, h.path)
	}
	if _, err := os.Stat(filepath.Join(h.path, ".git")); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s has no .git", ErrNotRepository, h.path)
		}
		return fmt.Errorf("%w: %v", ErrNotRepository, err)
	}
	return nil
}

func (h Handle) String() string {
	return h.path
}

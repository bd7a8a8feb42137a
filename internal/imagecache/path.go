package imagecache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrEmptyPath is returned by Canonicalize for a blank path.
var ErrEmptyPath = errors.New("empty path")

// Canonicalize expands a user-supplied path to the absolute form used as the
// cache key. "~" and "~/..." resolve against the user's home directory,
// relative paths against the working directory, and symlinks are resolved
// when the target exists. Equivalent spellings of one file therefore map to
// the same key.
func Canonicalize(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", ErrEmptyPath
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to expand %q: %w", path, err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q: %w", path, err)
	}

	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}

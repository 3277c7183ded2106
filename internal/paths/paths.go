// Package paths provides path resolution utilities.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultBoardsDir is used when no boards directory is configured.
const DefaultBoardsDir = "boards"

// ResolveBoardsDir turns the configured boards directory into an absolute,
// cleaned path. It does not create the directory.
//
// Input normalization:
//   - "" -> "<cwd>/boards"
//   - "~/boards" -> "<home>/boards"
//   - "./out/../boards" -> "<cwd>/boards"
//
// Absolute paths let watcher events be matched against catalogued files.
func ResolveBoardsDir(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		dir = DefaultBoardsDir
	}
	expanded, err := ExpandHome(dir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("resolving boards directory %q: %w", dir, err)
	}
	return abs, nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, `~\`) {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expanding %q: %w", path, err)
	}
	return filepath.Join(home, path[1:]), nil
}

// EnsureDir creates dir (and parents) if it does not exist.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	return nil
}

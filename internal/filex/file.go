// Package filex manages the on-disk directories a browser profile lives in.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDir creates dir (relative paths resolve against the working
// directory) with owner-only permissions and returns its absolute path. An
// existing non-directory at that path is an error.
func EnsureDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", abs, err)
	}
	return abs, nil
}

// TempProfileDir creates an isolated, empty browser profile directory under
// base (os.TempDir when empty). The returned cleanup removes it recursively
// and is safe to call more than once.
func TempProfileDir(base, sessionID string) (string, func(), error) {
	dir, err := os.MkdirTemp(base, fmt.Sprintf("tms-seeder-%s-", sessionID))
	if err != nil {
		return "", func() {}, fmt.Errorf("create profile dir: %w", err)
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

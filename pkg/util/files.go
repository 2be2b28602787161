package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// CleanupFiles removes multiple files, ignoring errors
func CleanupFiles(paths ...string) {
	for _, path := range paths {
		_ = os.Remove(path)
	}
}

// Workspace is a scratch directory owned by one unit of work.
// Everything created under it goes away with Close.
type Workspace struct {
	dir string
}

// NewWorkspace creates a fresh directory under base (os.TempDir when empty).
func NewWorkspace(base, prefix string) (*Workspace, error) {
	if base != "" {
		if err := EnsureDir(base); err != nil {
			return nil, fmt.Errorf("failed to create temp root: %w", err)
		}
	}
	dir, err := os.MkdirTemp(base, prefix+"-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

// Dir returns the workspace root.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path joins name onto the workspace root.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// Close removes the workspace and all of its contents.
func (w *Workspace) Close() error {
	if w == nil || w.dir == "" {
		return nil
	}
	return os.RemoveAll(w.dir)
}

package ingest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const workspacePattern = "docintake-*"

// Workspace owns one temporary directory tree. Every file extracted for a
// request, including nested sub-workspaces, lives beneath Root.
type Workspace struct {
	root string
}

// AcquireWorkspace creates a fresh, uniquely named directory under baseDir,
// or under os.TempDir when baseDir is empty.
func AcquireWorkspace(baseDir string) (*Workspace, error) {
	if baseDir != "" {
		if err := os.MkdirAll(baseDir, 0o700); err != nil {
			return nil, fmt.Errorf("create workspace base dir: %w", err)
		}
	}
	dir, err := os.MkdirTemp(baseDir, workspacePattern)
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	// Resolve once so containment checks compare canonical paths
	// (e.g. /var -> /private/var on macOS).
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}
	return &Workspace{root: dir}, nil
}

func (w *Workspace) Root() string {
	if w == nil {
		return ""
	}
	return w.root
}

// Release recursively deletes the workspace. It is safe to call on a nil
// workspace, more than once, or after the directory was removed externally.
func (w *Workspace) Release() error {
	if w == nil || w.root == "" {
		return nil
	}
	err := os.RemoveAll(w.root)
	if err == nil {
		return nil
	}
	// Discovery tolerates unreadable subtrees, so restore owner permissions
	// and retry before giving up.
	restoreOwnerPermissions(w.root)
	if err := os.RemoveAll(w.root); err != nil {
		return fmt.Errorf("remove workspace %s: %w", w.root, err)
	}
	return nil
}

func restoreOwnerPermissions(root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err == nil && d.IsDir() {
			_ = os.Chmod(path, 0o700)
		}
		return nil
	})
}

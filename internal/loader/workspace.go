package loader

import (
	"fmt"
	"os"
	"path/filepath"
)

// Workspace is a private temporary directory holding loaded files and
// intermediate outputs of one session or export.
type Workspace struct {
	dir string
}

// NewWorkspace creates a fresh directory under base.
func NewWorkspace(base, prefix string) (*Workspace, error) {
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0755); err != nil {
		return nil, fmt.Errorf("create workspace base: %w", err)
	}
	dir, err := os.MkdirTemp(base, prefix+"-")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

func (w *Workspace) Dir() string { return w.dir }

func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// Remove deletes the workspace and everything in it.
func (w *Workspace) Remove() error {
	return os.RemoveAll(w.dir)
}

// Package scratch manages the temporary working directory that each ingestion
// job owns for the artifacts it generates before they are published.
package scratch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gipjazes/ingest-api/log"
)

type Manager struct {
	root string
}

// Dir is the scratch directory for a single job. Exclusively owned by the
// job that acquired it; never shared.
type Dir struct {
	Path  string
	jobID string
}

func NewManager(root string) (*Manager, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "ingest-uploads")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create scratch root %q: %w", root, err)
	}
	return &Manager{root: root}, nil
}

// Acquire creates a fresh directory keyed by the job ID. Collision-freedom
// between concurrent jobs comes from job ID uniqueness, so an already-existing
// directory is an error rather than something to silently reuse.
func (m *Manager) Acquire(jobID string) (*Dir, error) {
	path := filepath.Join(m.root, jobID)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("scratch directory %q already exists", path)
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory %q: %w", path, err)
	}
	return &Dir{Path: path, jobID: jobID}, nil
}

// Release removes the directory and everything in it. Idempotent: releasing a
// directory that is already gone is a no-op. Errors are logged and never
// escalated, so callers can defer this on every exit path.
func (d *Dir) Release() {
	if d == nil {
		return
	}
	if err := os.RemoveAll(d.Path); err != nil {
		log.LogError(d.jobID, "failed to remove scratch directory", err, "path", d.Path)
	}
}

// Join resolves a filename inside the scratch directory.
func (d *Dir) Join(elem ...string) string {
	return filepath.Join(append([]string{d.Path}, elem...)...)
}

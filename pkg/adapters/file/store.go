// Package file provides a filesystem-backed CheckpointStore. One JSON file
// per run, written atomically, so a crash mid-save never leaves a torn
// checkpoint behind.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/quarrydata/quarry/pkg/domain"
)

// DefaultDir is where checkpoints land when no directory is configured.
const DefaultDir = ".quarry/runs"

// Store implements ports.CheckpointStore on the local filesystem.
type Store struct {
	dir string
}

// New creates a file store rooted at dir. An empty dir falls back to
// DefaultDir; the directory is created on first save.
func New(dir string) *Store {
	if dir == "" {
		dir = DefaultDir
	}
	return &Store{dir: dir}
}

// Dir returns the directory the store writes into.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(runID string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("file: empty run id")
	}
	// Run IDs become file names; reject anything that could escape the dir.
	if strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return "", fmt.Errorf("file: run id %q is not a valid file name", runID)
	}
	return filepath.Join(s.dir, runID+".json"), nil
}

// Save replaces the run's checkpoint. The write goes to a temp file in the
// same directory, is fsynced, then renamed over the destination; rename on
// the same filesystem is atomic.
func (s *Store) Save(ctx context.Context, cp *domain.Checkpoint) error {
	if cp == nil || cp.RunID == "" {
		return fmt.Errorf("file: checkpoint has no run id")
	}
	dest, err := s.path(cp.RunID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("file: ensure checkpoint dir: %w", err)
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("file: marshal checkpoint %s: %w", cp.RunID, err)
	}

	tmp, err := os.CreateTemp(s.dir, "tmp-"+cp.RunID+"-*.json")
	if err != nil {
		return fmt.Errorf("file: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath) // gone already when the rename succeeded
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("file: write checkpoint %s: %w", cp.RunID, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("file: fsync checkpoint %s: %w", cp.RunID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("file: close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("file: rename checkpoint %s: %w", cp.RunID, err)
	}
	return nil
}

// Load retrieves the latest checkpoint for a run.
func (s *Store) Load(ctx context.Context, runID string) (*domain.Checkpoint, error) {
	p, err := s.path(runID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file: run %s: %w", runID, domain.ErrRunNotFound)
		}
		return nil, fmt.Errorf("file: read checkpoint %s: %w", runID, err)
	}

	cp := new(domain.Checkpoint)
	if err := json.Unmarshal(data, cp); err != nil {
		return nil, fmt.Errorf("file: unmarshal checkpoint %s: %w", runID, err)
	}
	return cp, nil
}

// Delete removes the run's checkpoint file. Deleting an unknown run is not
// an error.
func (s *Store) Delete(ctx context.Context, runID string) error {
	p, err := s.path(runID)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("file: delete checkpoint %s: %w", runID, err)
	}
	return nil
}

// ListRuns returns the IDs of all checkpointed runs.
func (s *Store) ListRuns(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("file: list runs: %w", err)
	}

	var runs []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, "tmp-") {
			continue
		}
		runs = append(runs, strings.TrimSuffix(name, ".json"))
	}
	return runs, nil
}

// Package memory provides in-process implementations of the persistence
// ports. They back tests, examples and the default wiring when nothing
// external is configured.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/quarrydata/quarry/pkg/domain"
)

// CheckpointStore implements ports.CheckpointStore in memory.
// Safe for concurrent use.
type CheckpointStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Checkpoint
}

// NewCheckpointStore creates a new in-memory checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{data: make(map[string]*domain.Checkpoint)}
}

// Save replaces the run's checkpoint. The snapshot is deep-copied so later
// state mutations cannot reach stored history.
func (s *CheckpointStore) Save(ctx context.Context, cp *domain.Checkpoint) error {
	if cp == nil || cp.RunID == "" {
		return fmt.Errorf("memory: checkpoint has no run id")
	}
	copied, err := cloneCheckpoint(cp)
	if err != nil {
		return fmt.Errorf("memory: save checkpoint %s: %w", cp.RunID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[cp.RunID] = copied
	return nil
}

// Load retrieves the latest checkpoint for a run.
func (s *CheckpointStore) Load(ctx context.Context, runID string) (*domain.Checkpoint, error) {
	s.mu.RLock()
	cp, ok := s.data[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("memory: run %s: %w", runID, domain.ErrRunNotFound)
	}

	// Copy on read so the caller cannot mutate stored history by pointer.
	copied, err := cloneCheckpoint(cp)
	if err != nil {
		return nil, fmt.Errorf("memory: load checkpoint %s: %w", runID, err)
	}
	return copied, nil
}

// Delete removes the run's checkpoint.
func (s *CheckpointStore) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, runID)
	return nil
}

// ListRuns returns the IDs of all checkpointed runs.
func (s *CheckpointStore) ListRuns(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]string, 0, len(s.data))
	for id := range s.data {
		runs = append(runs, id)
	}
	return runs, nil
}

// cloneCheckpoint deep-copies through serialization; checkpoints are JSON
// round-trippable by construction.
func cloneCheckpoint(cp *domain.Checkpoint) (*domain.Checkpoint, error) {
	raw, err := json.Marshal(cp)
	if err != nil {
		return nil, err
	}
	out := new(domain.Checkpoint)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

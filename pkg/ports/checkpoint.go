package ports

import (
	"context"

	"github.com/quarrydata/quarry/pkg/domain"
)

// CheckpointStore persists the latest checkpoint per run. The executor
// writes after every transition; stores keep whole snapshots, so Save
// replaces any previous checkpoint for the run.
type CheckpointStore interface {
	Save(ctx context.Context, cp *domain.Checkpoint) error

	// Load retrieves the latest checkpoint for a run.
	// Returns domain.ErrRunNotFound if the run is unknown.
	Load(ctx context.Context, runID string) (*domain.Checkpoint, error)

	Delete(ctx context.Context, runID string) error

	// ListRuns returns the IDs of all checkpointed runs.
	ListRuns(ctx context.Context) ([]string, error)
}

// Observer receives a checkpoint event after every transition. Observers
// exist for visualization only; the executor functions identically with none
// attached. Observe must not block.
type Observer interface {
	Observe(ev domain.Event)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(domain.Event)

func (f ObserverFunc) Observe(ev domain.Event) { f(ev) }

// MultiObserver fans one event out to several observers.
type MultiObserver []Observer

func (m MultiObserver) Observe(ev domain.Event) {
	for _, o := range m {
		if o != nil {
			o.Observe(ev)
		}
	}
}

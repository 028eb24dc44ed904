package domain

import (
	"context"
	"time"
)

// Event is the checkpoint notification a run observer receives after every
// transition. Observers are consumed for visualization only; the executor
// behaves identically with none attached.
type Event struct {
	RunID     string    `json:"run_id"`
	SessionID string    `json:"session_id"`
	Seq       int       `json:"seq"`
	Node      NodeID    `json:"node"`
	Outcome   Outcome   `json:"outcome"`
	Next      NodeID    `json:"next"`
	At        time.Time `json:"at"`
}

// LifecycleHooks defines callbacks for executor observability. All fields
// are optional; hooks run synchronously on the run's goroutine and must not
// block.
type LifecycleHooks struct {
	OnNodeStart  func(context.Context, NodeID, *ExecutionState)
	OnTransition func(context.Context, *Event)
	OnRunEnd     func(context.Context, *ExecutionState, error)
}

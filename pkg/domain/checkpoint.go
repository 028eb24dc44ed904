package domain

import "time"

// Transition records one routed hop. Next is the successor actually entered,
// which matches the routing table except when the executor forced
// data_unavailability (retry bound, hop ceiling). The ordered sequence of
// transitions is sufficient to replay a run's node sequence deterministically.
type Transition struct {
	Seq     int       `json:"seq"`
	Node    NodeID    `json:"node"`
	Outcome Outcome   `json:"outcome"`
	Next    NodeID    `json:"next"`
	At      time.Time `json:"at"`
}

// Checkpoint is the snapshot persisted after every transition. The write
// happens-before the next node starts.
type Checkpoint struct {
	RunID     string          `json:"run_id"`
	SessionID string          `json:"session_id"`
	Seq       int             `json:"seq"`
	Node      NodeID          `json:"node"`
	Outcome   Outcome         `json:"outcome"`
	State     *ExecutionState `json:"state,omitempty"`
	At        time.Time       `json:"at"`

	// Sealed carries the encrypted state payload when a persistence
	// middleware seals checkpoints before storage; State is nil in that
	// form. Routing metadata stays in the clear.
	Sealed string `json:"sealed,omitempty"`
}

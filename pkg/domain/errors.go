package domain

import "errors"

// ErrTopology is returned when the routing table and the registered nodes
// disagree: a missing entry, an entry for an unregistered node, or an entry
// for an outcome the node never produces. Fatal at graph build time.
var ErrTopology = errors.New("graph topology misconfigured")

// ErrUnknownOutcome is returned when a node produces an outcome outside its
// declared vocabulary. A programming error, not a runtime condition.
var ErrUnknownOutcome = errors.New("unknown outcome")

// ErrHopCeiling is returned when a run exceeds the total node-hop ceiling
// even after being forced onto the terminal chain.
var ErrHopCeiling = errors.New("node hop ceiling exceeded")

// ErrRunCancelled is returned when a run is cancelled between nodes.
var ErrRunCancelled = errors.New("run cancelled")

// ErrResponseAlreadySet is returned when a second node attempts to set the
// final response. Exactly one terminal node may produce it.
var ErrResponseAlreadySet = errors.New("final response already set")

// ErrNoFinalResponse is returned when a run reaches a terminal node without
// any response having been produced.
var ErrNoFinalResponse = errors.New("terminal state without final response")

// ErrRunNotFound is returned when a run ID cannot be found in the
// checkpoint store.
var ErrRunNotFound = errors.New("run not found")

/*
Package domain contains the core domain models for the Quarry execution graph.

It defines the fundamental entities of the state machine: node identifiers,
outcome tags, the ExecutionState threaded through a run, computation plans and
their results, retry counters, and the checkpoint/transition records used for
replay and observability. This package is kept pure and free of external
dependencies like I/O or persistence, following Hexagonal Architecture
principles.

# Key Entities

  - NodeID / Outcome: the vocabulary the router consumes; nodes never call
    each other, they only return outcomes.
  - ExecutionState: the single mutable record created per user turn, mutated
    exclusively by nodes, persisted by the memory collaborator at run end.
  - Plan / ExecutionResult: what the sandbox boundary consumes and produces.
  - Checkpoint / Transition: the recorded (node, outcome) trail that makes a
    run deterministically replayable.
*/
package domain

/*
Package ports defines the driven ports (interfaces) for the Quarry execution
graph.

These interfaces decouple the core from external collaborators, allowing the
graph to run against different model providers, data warehouses, memory
backends, sandboxes and checkpoint stores.

# Key Interfaces

  - ModelClient: schema-validating language-model invocation.
  - Warehouse: read-only external data access plus schema introspection.
  - MemoryStore: session memory (turn summaries in, run persistence out).
  - Sandbox: the isolation contract around generated-code execution.
  - CheckpointStore: per-transition run snapshots for resume and replay.
  - Observer: optional checkpoint-event sink for visualization.
  - DistributedLocker: cross-replica session locking.

The package also exports contract-test suites (RunCheckpointStoreContract,
RunMemoryStoreContract) that adapter packages run against their
implementations.
*/
package ports

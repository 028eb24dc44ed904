/*
Package session serializes graph runs per session and seeds each run from
persisted memory.

Every turn executes under its session's lock, so two questions for the same
session never interleave; distinct sessions proceed concurrently. Lock
entries are reference counted and garbage collected when idle. Deployments
with multiple replicas add a ports.DistributedLocker on top of the
in-process locks.
*/
package session

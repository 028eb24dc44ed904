/*
Package observability wires graph runs into logs and metrics.

EventLogger emits one structured log line per transition and LoggingHooks
covers node starts and run outcomes. Metrics exports Prometheus counters
and histograms for transitions, node durations and finished runs. Both
attach to the executor through ports.Observer and domain.LifecycleHooks,
so they compose with any other observer the caller registers.
*/
package observability

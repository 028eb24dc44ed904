// Package runtime drives one ExecutionState through the node graph: execute
// the current node, validate its outcome, route, checkpoint, repeat until the
// router yields Terminal. The executor owns no domain decisions; everything
// it enforces (retry guards, hop ceiling, cancellation points) is a bound on
// the loop itself.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/quarrydata/quarry/pkg/domain"
	"github.com/quarrydata/quarry/pkg/graph"
	"github.com/quarrydata/quarry/pkg/ports"
)

// Default loop bounds. The wiring layer overrides them from configuration
// and keeps the retry bounds aligned with the node-level ones.
const (
	DefaultMaxHops    = 24
	defaultRetryBound = 2

	// ceilingGrace is the headroom granted after the hop ceiling forces the
	// run into data_unavailability: enough for the explanation and the
	// summarization to finish, nothing more.
	ceilingGrace = 3
)

// retryKinds maps the retry nodes to the counter each one bumps.
var retryKinds = map[domain.NodeID]domain.RetryKind{
	domain.NodeSelfCorrection: domain.RetryCorrection,
	domain.NodeSelfReflection: domain.RetryReflection,
}

// Executor is the state machine over node identifiers.
type Executor struct {
	graph       *graph.Graph
	checkpoints ports.CheckpointStore
	observer    ports.Observer
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	maxHops     int
	retryBounds map[domain.RetryKind]int
}

// Option configures the Executor.
type Option func(*Executor)

// WithCheckpoints persists a full state snapshot after every transition.
func WithCheckpoints(store ports.CheckpointStore) Option {
	return func(e *Executor) { e.checkpoints = store }
}

// WithObserver notifies obs after every transition.
func WithObserver(obs ports.Observer) Option {
	return func(e *Executor) { e.observer = obs }
}

// WithHooks installs lifecycle callbacks.
func WithHooks(h domain.LifecycleHooks) Option {
	return func(e *Executor) { e.hooks = h }
}

// WithLogger configures the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMaxHops overrides the total node-hop ceiling per run.
func WithMaxHops(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxHops = n
		}
	}
}

// WithRetryBounds overrides the pre-entry guard bounds for the retry nodes.
func WithRetryBounds(correction, reflection int) Option {
	return func(e *Executor) {
		if correction > 0 {
			e.retryBounds[domain.RetryCorrection] = correction
		}
		if reflection > 0 {
			e.retryBounds[domain.RetryReflection] = reflection
		}
	}
}

// New creates an Executor over an already-validated graph.
func New(g *graph.Graph, opts ...Option) *Executor {
	e := &Executor{
		graph:   g,
		logger:  slog.New(slog.DiscardHandler),
		maxHops: DefaultMaxHops,
		retryBounds: map[domain.RetryKind]int{
			domain.RetryCorrection: defaultRetryBound,
			domain.RetryReflection: defaultRetryBound,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the graph from its entry node until Terminal. The state is
// mutated in place; on success it carries a non-empty final response.
//
// Errors returned here are all configuration-class: unknown outcomes, a
// terminal state without a response, the hard hop ceiling, cancellation.
// Collaborator faults never surface here; nodes absorb them.
func (e *Executor) Run(ctx context.Context, st *domain.ExecutionState) error {
	if st == nil {
		return errors.New("runtime: nil execution state")
	}

	current := e.graph.Entry()
	forced := false

	for current != domain.Terminal {
		// Cancellation is honored between nodes only; a node that has
		// started runs to its outcome.
		if ctx.Err() != nil {
			st.Cancelled = true
			st.Reason = domain.ReasonCancelled
			err := fmt.Errorf("runtime: run %s at %s: %w", st.RunID, current, domain.ErrRunCancelled)
			e.end(ctx, st, err)
			return err
		}

		node, ok := e.graph.Node(current)
		if !ok {
			err := fmt.Errorf("runtime: %w: node %q not registered", domain.ErrTopology, current)
			e.end(ctx, st, err)
			return err
		}

		if e.hooks.OnNodeStart != nil {
			e.hooks.OnNodeStart(ctx, current, st)
		}

		outcome, err := node.Execute(ctx, st)
		if err != nil {
			err = fmt.Errorf("runtime: node %s: %w", current, err)
			e.end(ctx, st, err)
			return err
		}

		next, err := e.graph.Router().Route(current, outcome)
		if err != nil {
			err = fmt.Errorf("runtime: %w", err)
			e.end(ctx, st, err)
			return err
		}

		// Pre-entry retry guard: never enter a retry node whose counter is
		// already at its bound; the run is redirected to the explanation
		// path instead.
		if kind, isRetry := retryKinds[next]; isRetry && st.Retries(kind) >= e.retryBounds[kind] {
			e.logger.Warn("retry bound reached, forcing data_unavailability",
				"run_id", st.RunID, "kind", kind, "attempts", st.Retries(kind))
			st.Reason = domain.ReasonRetryExhausted
			next = domain.NodeDataUnavailability
		}

		st.Hops++

		// Hop ceiling: force the explanation path once, then grant just
		// enough headroom to respond and summarize. A run still looping
		// past that is aborted.
		hardCeiling := false
		if next != domain.Terminal {
			switch {
			case st.Hops >= e.maxHops+ceilingGrace:
				hardCeiling = true
			case st.Hops >= e.maxHops && !forced && st.FinalResponse == "":
				e.logger.Warn("hop ceiling reached, forcing data_unavailability",
					"run_id", st.RunID, "hops", st.Hops)
				forced = true
				st.Reason = domain.ReasonHopCeiling
				next = domain.NodeDataUnavailability
			}
		}

		tr := domain.Transition{
			Seq:     len(st.Trace) + 1,
			Node:    current,
			Outcome: outcome,
			Next:    next,
			At:      time.Now().UTC(),
		}
		st.Trace = append(st.Trace, tr)

		// Checkpoint write happens-before the next node starts.
		e.checkpoint(ctx, st, tr)
		e.notify(ctx, st, tr)

		if hardCeiling {
			err := fmt.Errorf("runtime: run %s after %d hops: %w", st.RunID, st.Hops, domain.ErrHopCeiling)
			e.end(ctx, st, err)
			return err
		}

		current = next
	}

	if st.FinalResponse == "" {
		err := fmt.Errorf("runtime: run %s: %w", st.RunID, domain.ErrNoFinalResponse)
		e.end(ctx, st, err)
		return err
	}

	e.logger.Info("run finished",
		"run_id", st.RunID,
		"session_id", st.SessionID,
		"hops", st.Hops,
		"responded_by", st.RespondedBy,
		"reason", st.Reason,
		"duration", time.Since(st.StartedAt))
	e.end(ctx, st, nil)
	return nil
}

// checkpoint saves the post-transition snapshot. A broken checkpoint store
// costs replayability, not the run.
func (e *Executor) checkpoint(ctx context.Context, st *domain.ExecutionState, tr domain.Transition) {
	if e.checkpoints == nil {
		return
	}
	cp := &domain.Checkpoint{
		RunID:     st.RunID,
		SessionID: st.SessionID,
		Seq:       tr.Seq,
		Node:      tr.Node,
		Outcome:   tr.Outcome,
		State:     st,
		At:        tr.At,
	}
	if err := e.checkpoints.Save(ctx, cp); err != nil {
		e.logger.Warn("checkpoint save failed", "run_id", st.RunID, "seq", tr.Seq, "error", err)
	}
}

func (e *Executor) notify(ctx context.Context, st *domain.ExecutionState, tr domain.Transition) {
	ev := &domain.Event{
		RunID:     st.RunID,
		SessionID: st.SessionID,
		Seq:       tr.Seq,
		Node:      tr.Node,
		Outcome:   tr.Outcome,
		Next:      tr.Next,
		At:        tr.At,
	}
	if e.observer != nil {
		e.observer.Observe(*ev)
	}
	if e.hooks.OnTransition != nil {
		e.hooks.OnTransition(ctx, ev)
	}
}

func (e *Executor) end(ctx context.Context, st *domain.ExecutionState, err error) {
	if e.hooks.OnRunEnd != nil {
		e.hooks.OnRunEnd(ctx, st, err)
	}
}

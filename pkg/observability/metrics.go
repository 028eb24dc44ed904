package observability

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/quarrydata/quarry/pkg/domain"
)

// Metrics collects Prometheus metrics for graph runs. Wire it twice: as the
// executor's Observer for transition counts, and its Hooks for node
// durations and run outcomes. The two surfaces never overlap, so attaching
// both double-counts nothing.
type Metrics struct {
	transitions  *prometheus.CounterVec
	nodeDuration *prometheus.HistogramVec
	runs         *prometheus.CounterVec
	runHops      prometheus.Histogram

	mu     sync.Mutex
	starts map[string]time.Time // run ID -> current node's start
}

// NewMetrics creates and registers the collectors. A nil registerer uses
// the process-wide default.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quarry_transitions_total",
				Help: "Transitions taken, by node and outcome.",
			},
			[]string{"node", "outcome"},
		),
		nodeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quarry_node_duration_seconds",
				Help:    "Node execution time.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"node"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quarry_runs_total",
				Help: "Finished runs, by status.",
			},
			[]string{"status"},
		),
		runHops: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quarry_run_hops",
				Help:    "Transitions per finished run.",
				Buckets: prometheus.LinearBuckets(2, 2, 12),
			},
		),
		starts: make(map[string]time.Time),
	}
	reg.MustRegister(m.transitions, m.nodeDuration, m.runs, m.runHops)
	return m
}

// Observe implements ports.Observer, counting each transition.
func (m *Metrics) Observe(ev domain.Event) {
	m.transitions.WithLabelValues(string(ev.Node), string(ev.Outcome)).Inc()
}

// Hooks returns lifecycle hooks recording node durations, run statuses and
// hops per run.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeStart: func(ctx context.Context, node domain.NodeID, st *domain.ExecutionState) {
			m.mu.Lock()
			m.starts[st.RunID] = time.Now()
			m.mu.Unlock()
		},
		OnTransition: func(ctx context.Context, ev *domain.Event) {
			m.mu.Lock()
			start, ok := m.starts[ev.RunID]
			m.mu.Unlock()
			if ok {
				m.nodeDuration.WithLabelValues(string(ev.Node)).Observe(time.Since(start).Seconds())
			}
		},
		OnRunEnd: func(ctx context.Context, st *domain.ExecutionState, err error) {
			m.mu.Lock()
			delete(m.starts, st.RunID)
			m.mu.Unlock()

			m.runs.WithLabelValues(runStatus(err)).Inc()
			m.runHops.Observe(float64(st.Hops))
		},
	}
}

func runStatus(err error) string {
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, domain.ErrRunCancelled):
		return "cancelled"
	default:
		return "failed"
	}
}

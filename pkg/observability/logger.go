package observability

import (
	"context"
	"errors"
	"log/slog"

	"github.com/quarrydata/quarry/pkg/domain"
)

// EventLogger implements ports.Observer, writing one structured line per
// transition.
type EventLogger struct {
	log *slog.Logger
}

// NewEventLogger creates an observer that logs transitions through log.
func NewEventLogger(log *slog.Logger) *EventLogger {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &EventLogger{log: log}
}

func (l *EventLogger) Observe(ev domain.Event) {
	l.log.Info("transition",
		"run_id", ev.RunID,
		"session_id", ev.SessionID,
		"seq", ev.Seq,
		"node", ev.Node,
		"outcome", ev.Outcome,
		"next", ev.Next,
	)
}

// LoggingHooks returns lifecycle hooks that trace node starts and run ends.
// They complement EventLogger when the executor's own logger is discarded.
func LoggingHooks(log *slog.Logger) domain.LifecycleHooks {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return domain.LifecycleHooks{
		OnNodeStart: func(ctx context.Context, node domain.NodeID, st *domain.ExecutionState) {
			log.Debug("node start", "run_id", st.RunID, "node", node, "hops", st.Hops)
		},
		OnRunEnd: func(ctx context.Context, st *domain.ExecutionState, err error) {
			switch {
			case err == nil:
				log.Info("run end", "run_id", st.RunID, "status", "completed", "hops", st.Hops)
			case errors.Is(err, domain.ErrRunCancelled):
				log.Info("run end", "run_id", st.RunID, "status", "cancelled", "hops", st.Hops)
			default:
				log.Error("run end", "run_id", st.RunID, "status", "failed", "hops", st.Hops, "error", err)
			}
		},
	}
}

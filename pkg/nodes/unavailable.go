package nodes

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quarrydata/quarry/pkg/domain"
)

// DataUnavailability explains to the user why no answer could be computed.
// The wording is keyed on the state's reason code and fully templated: this
// node must work when every collaborator is down, so it calls none.
type DataUnavailability struct {
	log *slog.Logger
}

func NewDataUnavailability(cfg Config) *DataUnavailability {
	return &DataUnavailability{log: cfg.withDefaults().Logger}
}

func (n *DataUnavailability) ID() domain.NodeID { return domain.NodeDataUnavailability }

func (n *DataUnavailability) Outcomes() []domain.Outcome {
	return []domain.Outcome{domain.OutcomeResponded}
}

func (n *DataUnavailability) Execute(_ context.Context, st *domain.ExecutionState) (domain.Outcome, error) {
	msg := unavailableMessage(st)
	if err := st.SetFinalResponse(n.ID(), msg); err != nil {
		return "", fmt.Errorf("data_unavailability: %w", err)
	}
	st.AppendTurn(domain.RoleAssistant, msg)
	n.log.Info("run ends without data", "run_id", st.RunID, "reason", st.Reason)
	return domain.OutcomeResponded, nil
}

func unavailableMessage(st *domain.ExecutionState) string {
	q := questionOf(st)
	switch st.Reason {
	case domain.ReasonDataEmpty:
		return fmt.Sprintf("I looked for data to answer \"%s\", but the query returned no rows. The warehouse may not cover that entity or period; rephrasing with a different metric, table, or time range might help.", q)
	case domain.ReasonDataFailed:
		return fmt.Sprintf("I couldn't fetch the data needed to answer \"%s\" because the data store did not respond. Nothing is wrong with the question itself; please try again shortly.", q)
	case domain.ReasonRetryExhausted:
		return fmt.Sprintf("I tried several times to compute an answer to \"%s\", but the analysis kept failing. Rather than guess, I'm stopping here; narrowing the question or its time range may help.", q)
	case domain.ReasonHopCeiling:
		return fmt.Sprintf("Answering \"%s\" took more processing steps than a single run allows, so I stopped early. Breaking the question into smaller parts should work.", q)
	default:
		return fmt.Sprintf("I wasn't able to produce an answer to \"%s\" this time.", q)
	}
}

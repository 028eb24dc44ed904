package nodes

import (
	"context"
	"fmt"

	"github.com/quarrydata/quarry/pkg/domain"
	"github.com/quarrydata/quarry/pkg/schema"
)

// Observation judges whether the sandbox output actually answers the
// question. Sufficient results move on to the response; weak ones trigger
// self_reflection.
type Observation struct {
	base
}

func NewObservation(cfg Config) *Observation {
	return &Observation{base: cfg.withDefaults().base()}
}

func (n *Observation) ID() domain.NodeID { return domain.NodeObservation }

func (n *Observation) Outcomes() []domain.Outcome {
	return []domain.Outcome{domain.OutcomeSufficient, domain.OutcomeInsufficient}
}

func (n *Observation) Execute(ctx context.Context, st *domain.ExecutionState) (domain.Outcome, error) {
	if st.ExecResult == nil {
		return "", fmt.Errorf("observation: no execution result in state")
	}

	var out schema.Observation
	if err := n.invoke(ctx, n.ID(), observePrompt(st), schema.ObservationContract, &out); err != nil {
		if !recoverable(err) {
			return "", err
		}
		// Unjudged output is not trusted; the reflection counter bounds the
		// resulting loop.
		n.log.Warn("observation degraded to insufficient", "run_id", st.RunID, "error", err)
		return domain.OutcomeInsufficient, nil
	}

	if out.Status == "sufficient" {
		return domain.OutcomeSufficient, nil
	}
	return domain.OutcomeInsufficient, nil
}

func observePrompt(st *domain.ExecutionState) string {
	p := fmt.Sprintf("Question:\n%s", questionOf(st))
	if !st.Plan.Empty() {
		p += "\n\nPlan steps:"
		for _, s := range st.Plan.Steps {
			p += fmt.Sprintf("\n%d. %s", s.Number, s.Description)
		}
	}
	p += fmt.Sprintf("\n\nExecution output:\n%s", st.ExecResult.Output)
	return p
}

package nodes

import (
	"context"
	"fmt"

	"github.com/quarrydata/quarry/pkg/domain"
	"github.com/quarrydata/quarry/pkg/schema"
)

// RequestClassification routes the run: analytical questions head into the
// data path, small talk goes to direct_response, everything else is punted.
// Classification runs once per turn and the route is immutable afterwards.
type RequestClassification struct {
	base
}

func NewRequestClassification(cfg Config) *RequestClassification {
	return &RequestClassification{base: cfg.withDefaults().base()}
}

func (n *RequestClassification) ID() domain.NodeID { return domain.NodeRequestClassification }

func (n *RequestClassification) Outcomes() []domain.Outcome {
	return []domain.Outcome{
		domain.OutcomeAnalytical,
		domain.OutcomeConversational,
		domain.OutcomeOutOfDomain,
	}
}

func (n *RequestClassification) Execute(ctx context.Context, st *domain.ExecutionState) (domain.Outcome, error) {
	if st.Intent == nil {
		return "", fmt.Errorf("request_classification: no intent in state")
	}

	var out schema.RequestClassification
	if err := n.invoke(ctx, n.ID(), classifyPrompt(st), schema.RequestClassificationContract, &out); err != nil {
		if !recoverable(err) {
			return "", err
		}
		// Without a classification the safe route is a graceful punt.
		n.log.Warn("classification degraded to out_of_domain", "run_id", st.RunID, "error", err)
		st.RouteClass = domain.RouteOutOfDomain
		return domain.OutcomeOutOfDomain, nil
	}

	switch out.Route {
	case "analytical":
		st.RouteClass = domain.RouteAnalytical
		return domain.OutcomeAnalytical, nil
	case "conversational":
		st.RouteClass = domain.RouteConversational
		return domain.OutcomeConversational, nil
	case "out_of_domain":
		st.RouteClass = domain.RouteOutOfDomain
		return domain.OutcomeOutOfDomain, nil
	}
	return "", fmt.Errorf("request_classification: contract admitted unknown route %q", out.Route)
}

func classifyPrompt(st *domain.ExecutionState) string {
	p := fmt.Sprintf("Question:\n%s", st.Intent.Question)
	if st.Intent.Context != "" {
		p += fmt.Sprintf("\n\nContext from earlier turns:\n%s", st.Intent.Context)
	}
	return p
}

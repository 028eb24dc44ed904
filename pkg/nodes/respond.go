package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/quarrydata/quarry/pkg/domain"
)

// The three response nodes phrase the run's ending for the user. Each sets
// final_response exactly once and appends it to the transcript; when the
// model is unreachable they fall back to a deterministic template, because a
// user-visible reply must exist at termination no matter what.

// emitResponse records the final response and mirrors it into the
// transcript.
func emitResponse(st *domain.ExecutionState, id domain.NodeID, text string) error {
	if err := st.SetFinalResponse(id, text); err != nil {
		return fmt.Errorf("%s: %w", id, err)
	}
	st.AppendTurn(domain.RoleAssistant, text)
	return nil
}

// AnalysisResponse renders a verified computation result as the answer.
type AnalysisResponse struct {
	base
}

func NewAnalysisResponse(cfg Config) *AnalysisResponse {
	return &AnalysisResponse{base: cfg.withDefaults().base()}
}

func (n *AnalysisResponse) ID() domain.NodeID { return domain.NodeAnalysisResponse }

func (n *AnalysisResponse) Outcomes() []domain.Outcome {
	return []domain.Outcome{domain.OutcomeResponded}
}

func (n *AnalysisResponse) Execute(ctx context.Context, st *domain.ExecutionState) (domain.Outcome, error) {
	if st.ExecResult == nil || !st.ExecResult.OK {
		return "", fmt.Errorf("analysis_response: no successful execution result in state")
	}

	user := fmt.Sprintf("Question:\n%s\n\nComputed result:\n%s", questionOf(st), st.ExecResult.Output)
	if st.WorkingDataset != nil && st.WorkingDataset.Query != "" {
		user += fmt.Sprintf("\n\nData came from:\n%s", st.WorkingDataset.Query)
	}

	text, err := n.complete(ctx, n.ID(), user)
	if err != nil {
		if !recoverable(err) {
			return "", err
		}
		n.log.Warn("analysis response degraded to template", "run_id", st.RunID, "error", err)
		text = ""
	}
	if strings.TrimSpace(text) == "" {
		// The fallback still carries the computed figure.
		text = fmt.Sprintf("Here is the computed result for \"%s\":\n\n%s", questionOf(st), st.ExecResult.Output)
	}

	if err := emitResponse(st, n.ID(), text); err != nil {
		return "", err
	}
	return domain.OutcomeResponded, nil
}

// DirectResponse answers conversational turns without touching data.
type DirectResponse struct {
	base
}

func NewDirectResponse(cfg Config) *DirectResponse {
	return &DirectResponse{base: cfg.withDefaults().base()}
}

func (n *DirectResponse) ID() domain.NodeID { return domain.NodeDirectResponse }

func (n *DirectResponse) Outcomes() []domain.Outcome {
	return []domain.Outcome{domain.OutcomeResponded}
}

func (n *DirectResponse) Execute(ctx context.Context, st *domain.ExecutionState) (domain.Outcome, error) {
	user := fmt.Sprintf("Prior turn summaries:\n%s\n\nUser turn:\n%s",
		renderSummaries(st.Summaries), questionOf(st))

	text, err := n.complete(ctx, n.ID(), user)
	if err != nil {
		if !recoverable(err) {
			return "", err
		}
		n.log.Warn("direct response degraded to template", "run_id", st.RunID, "error", err)
		text = ""
	}
	if strings.TrimSpace(text) == "" {
		text = "Happy to help. Ask me a question about your data " +
			"and I'll run the numbers for you."
	}

	if err := emitResponse(st, n.ID(), text); err != nil {
		return "", err
	}
	return domain.OutcomeResponded, nil
}

// PuntResponse declines out-of-domain requests in a consistent voice.
type PuntResponse struct {
	base
}

func NewPuntResponse(cfg Config) *PuntResponse {
	return &PuntResponse{base: cfg.withDefaults().base()}
}

func (n *PuntResponse) ID() domain.NodeID { return domain.NodePuntResponse }

func (n *PuntResponse) Outcomes() []domain.Outcome {
	return []domain.Outcome{domain.OutcomeResponded}
}

func (n *PuntResponse) Execute(ctx context.Context, st *domain.ExecutionState) (domain.Outcome, error) {
	user := fmt.Sprintf("User turn:\n%s", questionOf(st))

	text, err := n.complete(ctx, n.ID(), user)
	if err != nil {
		if !recoverable(err) {
			return "", err
		}
		n.log.Warn("punt response degraded to template", "run_id", st.RunID, "error", err)
		text = ""
	}
	if strings.TrimSpace(text) == "" {
		text = "That request is outside what I can help with. I answer questions " +
			"about the connected business data, so feel free to ask about metrics, trends, or comparisons."
	}

	if err := emitResponse(st, n.ID(), text); err != nil {
		return "", err
	}
	return domain.OutcomeResponded, nil
}

package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/quarrydata/quarry/pkg/domain"
	"github.com/quarrydata/quarry/pkg/schema"
)

// IntentComprehension restates the latest user turn as a standalone
// question, selecting the prior turns it depends on. Follow-ups like "and
// for Q2?" only make sense after this step.
type IntentComprehension struct {
	base
}

func NewIntentComprehension(cfg Config) *IntentComprehension {
	return &IntentComprehension{base: cfg.withDefaults().base()}
}

func (n *IntentComprehension) ID() domain.NodeID { return domain.NodeIntentComprehension }

func (n *IntentComprehension) Outcomes() []domain.Outcome {
	return []domain.Outcome{domain.OutcomeIntentResolved}
}

func (n *IntentComprehension) Execute(ctx context.Context, st *domain.ExecutionState) (domain.Outcome, error) {
	turn, ok := st.LatestUserTurn()
	if !ok {
		return "", fmt.Errorf("intent_comprehension: no user turn in state")
	}

	var out schema.IntentComprehension
	if err := n.invoke(ctx, n.ID(), intentPrompt(st, turn.Content), schema.IntentComprehensionContract, &out); err != nil {
		if !recoverable(err) {
			return "", err
		}
		n.log.Warn("intent comprehension degraded to raw turn", "run_id", st.RunID, "error", err)
		st.Intent = &domain.Intent{Question: turn.Content}
		return domain.OutcomeIntentResolved, nil
	}

	rel := clampTurns(out.RelevantTurns, len(st.TurnHistory))
	st.Intent = &domain.Intent{
		Question:      out.Question,
		Context:       contextFrom(st.TurnHistory, rel),
		RelevantTurns: rel,
		Rationale:     out.Rationale,
	}
	return domain.OutcomeIntentResolved, nil
}

func intentPrompt(st *domain.ExecutionState, latest string) string {
	return fmt.Sprintf(
		"Prior turn summaries:\n%s\n\nConversation so far:\n%s\n\nLatest user turn:\n%s",
		renderSummaries(st.Summaries), renderHistory(st.TurnHistory), latest,
	)
}

// clampTurns drops indices outside the transcript. Models occasionally point
// at turns that do not exist.
func clampTurns(idx []int, n int) []int {
	var out []int
	for _, i := range idx {
		if i >= 0 && i < n {
			out = append(out, i)
		}
	}
	return out
}

// contextFrom joins the referenced turns into prompt-ready context.
func contextFrom(turns []domain.ConversationTurn, idx []int) string {
	if len(idx) == 0 {
		return ""
	}
	parts := make([]string, 0, len(idx))
	for _, i := range idx {
		parts = append(parts, fmt.Sprintf("%s: %s", turns[i].Role, turns[i].Content))
	}
	return strings.Join(parts, "\n")
}

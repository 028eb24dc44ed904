package nodes

import (
	"context"
	"fmt"

	"github.com/quarrydata/quarry/pkg/domain"
	"github.com/quarrydata/quarry/pkg/schema"
)

// ComputationPlanning turns the question and the working dataset into an
// ordered executable plan for the sandbox. Plans are regenerated wholesale
// on retry; this node only ever sees the first attempt of a run unless the
// topology is rewired.
type ComputationPlanning struct {
	base
}

func NewComputationPlanning(cfg Config) *ComputationPlanning {
	return &ComputationPlanning{base: cfg.withDefaults().base()}
}

func (n *ComputationPlanning) ID() domain.NodeID { return domain.NodeComputationPlanning }

func (n *ComputationPlanning) Outcomes() []domain.Outcome {
	return []domain.Outcome{domain.OutcomePlanReady}
}

func (n *ComputationPlanning) Execute(ctx context.Context, st *domain.ExecutionState) (domain.Outcome, error) {
	if st.Intent == nil {
		return "", fmt.Errorf("computation_planning: no intent in state")
	}

	var out schema.ComputationPlanning
	if err := n.invoke(ctx, n.ID(), planPrompt(st), schema.ComputationPlanningContract, &out); err != nil {
		if !recoverable(err) {
			return "", err
		}
		// The placeholder's codeless step fails in the sandbox as an eval
		// error and the correction counter bounds the loop from there.
		n.log.Warn("planning degraded to placeholder plan", "run_id", st.RunID, "error", err)
		st.Plan = degradedPlan(planAttempt(st))
		return domain.OutcomePlanReady, nil
	}

	st.Plan = planFromSchema(&out, planAttempt(st))
	return domain.OutcomePlanReady, nil
}

func planPrompt(st *domain.ExecutionState) string {
	p := fmt.Sprintf("Question:\n%s", st.Intent.Question)
	if st.Intent.Context != "" {
		p += fmt.Sprintf("\n\nContext from earlier turns:\n%s", st.Intent.Context)
	}
	if st.Strategy != domain.StrategyUnset {
		p += fmt.Sprintf("\n\nData strategy: %s", st.Strategy)
	}
	p += fmt.Sprintf("\n\nDataset:\n%s", datasetDigest(st.WorkingDataset, 20))
	if !st.Plan.Empty() && st.ExecResult != nil && st.ExecResult.Err != nil {
		p += fmt.Sprintf("\n\nA previous plan failed (%s); regenerate from scratch:\n%s",
			st.ExecResult.Err, renderPlan(st.Plan))
	}
	return p
}

// planAttempt numbers a plan: 0 for the initial one, then the total number
// of regenerations so far.
func planAttempt(st *domain.ExecutionState) int {
	return st.Retries(domain.RetryCorrection) + st.Retries(domain.RetryReflection)
}

// degradedPlan stands in when plan generation itself failed. Its single
// codeless step keeps the plan non-empty alongside any execution result,
// while the sandbox still rejects it and routes the run into
// self-correction.
func degradedPlan(attempt int) *domain.Plan {
	return &domain.Plan{
		Steps:   []domain.Step{{Number: 1, Description: "plan generation failed"}},
		Attempt: attempt,
	}
}

// planFromSchema converts a validated planning result into the domain plan.
// Steps are renumbered positionally so the sandbox's step indices and the
// model's numbering cannot drift apart.
func planFromSchema(out *schema.ComputationPlanning, attempt int) *domain.Plan {
	p := &domain.Plan{
		AnalysisType: domain.AnalysisType(out.AnalysisType),
		Rationale:    out.Rationale,
		Attempt:      attempt,
	}
	for i, s := range out.Steps {
		p.Steps = append(p.Steps, domain.Step{
			Number:      i + 1,
			Description: s.Description,
			Code:        s.Code,
			Rationale:   s.Rationale,
		})
	}
	return p
}

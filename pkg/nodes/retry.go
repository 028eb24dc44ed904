package nodes

import (
	"context"
	"fmt"

	"github.com/quarrydata/quarry/pkg/domain"
	"github.com/quarrydata/quarry/pkg/schema"
)

// retryNode is the shared shape of self_correction and self_reflection:
// bump a bounded counter and regenerate the computation plan wholesale. The
// two differ only in what went wrong and therefore in what the model is told.
type retryNode struct {
	base
	id   domain.NodeID
	kind domain.RetryKind
	max  int
}

func (n *retryNode) ID() domain.NodeID { return n.id }

func (n *retryNode) Outcomes() []domain.Outcome {
	return []domain.Outcome{domain.OutcomePlanReady, domain.OutcomeRetryExhausted}
}

func (n *retryNode) Execute(ctx context.Context, st *domain.ExecutionState) (domain.Outcome, error) {
	// The executor guards this entry too; the node-level check keeps the
	// counter invariant independent of who drives the graph.
	if st.Retries(n.kind) >= n.max {
		st.Reason = domain.ReasonRetryExhausted
		return domain.OutcomeRetryExhausted, nil
	}
	attempt := st.BumpRetry(n.kind)

	var out schema.ComputationPlanning
	if err := n.invoke(ctx, n.id, n.prompt(st), schema.ComputationPlanningContract, &out); err != nil {
		if !recoverable(err) {
			return "", err
		}
		// The placeholder plan fails in the sandbox and comes straight back
		// here; the counter just bumped, so the loop stays bounded.
		n.log.Warn("plan regeneration degraded to placeholder plan",
			"node", n.id, "run_id", st.RunID, "attempt", attempt, "error", err)
		st.Plan = degradedPlan(planAttempt(st))
		return domain.OutcomePlanReady, nil
	}

	st.Plan = planFromSchema(&out, planAttempt(st))
	return domain.OutcomePlanReady, nil
}

func (n *retryNode) prompt(st *domain.ExecutionState) string {
	p := fmt.Sprintf("Question:\n%s", questionOf(st))
	switch n.kind {
	case domain.RetryCorrection:
		if st.ExecResult != nil && st.ExecResult.Err != nil {
			p += fmt.Sprintf("\n\nThe previous plan failed at step %d (%s): %s",
				st.ExecResult.Err.Step, st.ExecResult.Err.Kind, st.ExecResult.Err.Message)
		}
		p += fmt.Sprintf("\n\nFailed plan:\n%s", renderPlan(st.Plan))
	case domain.RetryReflection:
		p += "\n\nThe previous plan ran without error, but its output was judged insufficient to answer the question."
		if st.ExecResult != nil {
			p += fmt.Sprintf("\n\nInsufficient output:\n%s", st.ExecResult.Output)
		}
		p += fmt.Sprintf("\n\nPlan that produced it:\n%s", renderPlan(st.Plan))
	}
	p += fmt.Sprintf("\n\nDataset:\n%s", datasetDigest(st.WorkingDataset, 20))
	return p
}

// SelfCorrection regenerates the plan after a sandbox failure.
type SelfCorrection struct {
	retryNode
}

func NewSelfCorrection(cfg Config) *SelfCorrection {
	cfg = cfg.withDefaults()
	return &SelfCorrection{retryNode{
		base: cfg.base(),
		id:   domain.NodeSelfCorrection,
		kind: domain.RetryCorrection,
		max:  cfg.MaxCorrection,
	}}
}

// SelfReflection regenerates the plan after observation judged a successful
// run's output insufficient.
type SelfReflection struct {
	retryNode
}

func NewSelfReflection(cfg Config) *SelfReflection {
	cfg = cfg.withDefaults()
	return &SelfReflection{retryNode{
		base: cfg.base(),
		id:   domain.NodeSelfReflection,
		kind: domain.RetryReflection,
		max:  cfg.MaxReflection,
	}}
}

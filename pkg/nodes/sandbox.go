package nodes

import (
	"context"
	"log/slog"

	"github.com/quarrydata/quarry/pkg/domain"
	"github.com/quarrydata/quarry/pkg/ports"
)

// SandboxEnvironment hands the current plan to the isolation boundary and
// records the result. The boundary guarantees faults come back as structured
// exec errors, so this node never degrades anything itself.
type SandboxEnvironment struct {
	sandbox ports.Sandbox
	limits  ports.ResourceLimits
	log     *slog.Logger
}

func NewSandboxEnvironment(cfg Config) *SandboxEnvironment {
	cfg = cfg.withDefaults()
	return &SandboxEnvironment{sandbox: cfg.Sandbox, limits: cfg.Limits, log: cfg.Logger}
}

func (n *SandboxEnvironment) ID() domain.NodeID { return domain.NodeSandboxEnvironment }

func (n *SandboxEnvironment) Outcomes() []domain.Outcome {
	return []domain.Outcome{domain.OutcomeExecSuccess, domain.OutcomeExecError}
}

func (n *SandboxEnvironment) Execute(ctx context.Context, st *domain.ExecutionState) (domain.Outcome, error) {
	res := n.sandbox.Run(ctx, st.Plan, st.WorkingDataset, n.limits)
	if res == nil {
		res = &domain.ExecutionResult{
			Err: &domain.ExecError{Kind: domain.ExecErrRuntime, Message: "sandbox returned no result"},
		}
	}
	st.ExecResult = res

	if res.OK {
		n.log.Debug("sandbox run succeeded", "run_id", st.RunID, "steps", res.Steps, "duration", res.Duration)
		return domain.OutcomeExecSuccess, nil
	}
	if res.Err != nil {
		n.log.Info("sandbox run failed", "run_id", st.RunID, "step", res.Err.Step, "kind", res.Err.Kind, "error", res.Err.Message)
	}
	return domain.OutcomeExecError, nil
}

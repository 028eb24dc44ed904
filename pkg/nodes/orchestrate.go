package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/quarrydata/quarry/pkg/domain"
	"github.com/quarrydata/quarry/pkg/ports"
	"github.com/quarrydata/quarry/pkg/schema"
)

// AnalysisOrchestration decides how an analytical question gets its data:
// reuse the working dataset, retrieve from the warehouse (emitting the SQL to
// run), or compute directly. It consults the warehouse schema so generated
// SQL targets real tables.
type AnalysisOrchestration struct {
	base
	warehouse   ports.Warehouse
	dataTimeout time.Duration
}

func NewAnalysisOrchestration(cfg Config) *AnalysisOrchestration {
	cfg = cfg.withDefaults()
	return &AnalysisOrchestration{
		base:        cfg.base(),
		warehouse:   cfg.Warehouse,
		dataTimeout: cfg.WarehouseTimeout,
	}
}

func (n *AnalysisOrchestration) ID() domain.NodeID { return domain.NodeAnalysisOrchestration }

func (n *AnalysisOrchestration) Outcomes() []domain.Outcome {
	return []domain.Outcome{
		domain.OutcomeDataSufficient,
		domain.OutcomeNeedRetrieval,
		domain.OutcomeReadyToCompute,
	}
}

func (n *AnalysisOrchestration) Execute(ctx context.Context, st *domain.ExecutionState) (domain.Outcome, error) {
	if st.Intent == nil {
		return "", fmt.Errorf("analysis_orchestration: no intent in state")
	}

	var out schema.AnalysisOrchestration
	prompt := orchestratePrompt(st, n.describeWarehouse(ctx, st))
	if err := n.invoke(ctx, n.ID(), prompt, schema.AnalysisOrchestrationContract, &out); err != nil {
		if !recoverable(err) {
			return "", err
		}
		// No strategy means no query either; retrieval will fail the empty
		// query and the run lands in data_unavailability.
		n.log.Warn("orchestration degraded to retrieval", "run_id", st.RunID, "error", err)
		st.Strategy = domain.StrategyRetrieveData
		st.PendingQuery = ""
		return domain.OutcomeNeedRetrieval, nil
	}

	switch out.Route {
	case "use_existing_data":
		if st.WorkingDataset.Empty() {
			n.log.Warn("orchestration chose existing data with none present", "run_id", st.RunID)
			st.Strategy = domain.StrategyRetrieveData
			st.PendingQuery = out.SQLQuery
			return domain.OutcomeNeedRetrieval, nil
		}
		st.Strategy = domain.StrategyUseExistingData
		return domain.OutcomeDataSufficient, nil
	case "retrieve_external_data":
		st.Strategy = domain.StrategyRetrieveData
		st.PendingQuery = out.SQLQuery
		return domain.OutcomeNeedRetrieval, nil
	case "compute_now":
		st.Strategy = domain.StrategyComputeNow
		return domain.OutcomeReadyToCompute, nil
	}
	return "", fmt.Errorf("analysis_orchestration: contract admitted unknown route %q", out.Route)
}

// describeWarehouse fetches the schema snapshot for the prompt. The snapshot
// is advisory: when the warehouse is unreachable the model still decides a
// strategy, it just writes SQL blind.
func (n *AnalysisOrchestration) describeWarehouse(ctx context.Context, st *domain.ExecutionState) string {
	if n.warehouse == nil {
		return "(warehouse schema unavailable)"
	}
	ctx, cancel := context.WithTimeout(ctx, n.dataTimeout)
	defer cancel()
	snap, err := n.warehouse.Snapshot(ctx)
	if err != nil {
		n.log.Warn("warehouse snapshot failed", "run_id", st.RunID, "error", err)
		return "(warehouse schema unavailable)"
	}
	return snap.Describe()
}

func orchestratePrompt(st *domain.ExecutionState, warehouseSchema string) string {
	p := fmt.Sprintf("Question:\n%s", st.Intent.Question)
	if st.Intent.Context != "" {
		p += fmt.Sprintf("\n\nContext from earlier turns:\n%s", st.Intent.Context)
	}
	p += fmt.Sprintf("\n\nWarehouse schema:\n%s", warehouseSchema)
	p += fmt.Sprintf("\n\nWorking dataset:\n%s", datasetDigest(st.WorkingDataset, 5))
	return p
}

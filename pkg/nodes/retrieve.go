package nodes

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/quarrydata/quarry/pkg/domain"
	"github.com/quarrydata/quarry/pkg/ports"
)

// DataRetrieval runs the pending query against the warehouse and replaces
// the working dataset with the result. It is one of the two nodes allowed a
// side effect. Data absence is terminal for the run (there is no retrieval
// retry), so empty and failed both carry a reason for data_unavailability.
type DataRetrieval struct {
	warehouse ports.Warehouse
	log       *slog.Logger
	timeout   time.Duration
}

func NewDataRetrieval(cfg Config) *DataRetrieval {
	cfg = cfg.withDefaults()
	return &DataRetrieval{warehouse: cfg.Warehouse, log: cfg.Logger, timeout: cfg.WarehouseTimeout}
}

func (n *DataRetrieval) ID() domain.NodeID { return domain.NodeDataRetrieval }

func (n *DataRetrieval) Outcomes() []domain.Outcome {
	return []domain.Outcome{
		domain.OutcomeRetrievalOK,
		domain.OutcomeRetrievalEmpty,
		domain.OutcomeRetrievalFailed,
	}
}

func (n *DataRetrieval) Execute(ctx context.Context, st *domain.ExecutionState) (domain.Outcome, error) {
	query := strings.TrimSpace(st.PendingQuery)
	st.PendingQuery = ""
	if query == "" {
		n.log.Warn("data retrieval entered without a query", "run_id", st.RunID)
		st.Reason = domain.ReasonDataFailed
		return domain.OutcomeRetrievalFailed, nil
	}
	st.LastQuery = query

	if n.warehouse == nil {
		n.log.Warn("data retrieval without a warehouse", "run_id", st.RunID)
		st.Reason = domain.ReasonDataFailed
		return domain.OutcomeRetrievalFailed, nil
	}

	qctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	ds, err := n.warehouse.Query(qctx, query)
	if err != nil {
		if de, ok := ports.AsDataError(err); ok && de.Kind == ports.DataNotFound {
			st.Reason = domain.ReasonDataEmpty
			return domain.OutcomeRetrievalEmpty, nil
		}
		n.log.Warn("warehouse query failed", "run_id", st.RunID, "query", query, "error", err)
		st.Reason = domain.ReasonDataFailed
		return domain.OutcomeRetrievalFailed, nil
	}
	if ds.Empty() {
		st.Reason = domain.ReasonDataEmpty
		return domain.OutcomeRetrievalEmpty, nil
	}

	if ds.Query == "" {
		ds.Query = query
	}
	st.ReplaceDataset(ds)
	return domain.OutcomeRetrievalOK, nil
}

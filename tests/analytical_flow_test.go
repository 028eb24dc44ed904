package tests

import (
	"context"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrydata/quarry/pkg/domain"
)

const revenueQuery = "SELECT quarter, SUM(amount) AS total FROM revenue_by_quarter GROUP BY quarter ORDER BY quarter"

// sumTotalsCode sums the last CSV column of its input. The totals of the
// seeded warehouse are 2180 and 2230, so the expected output is 4410.
const sumTotalsCode = `
import (
	"encoding/csv"
	"strconv"
	"strings"
)

func RunStep(input string) (string, error) {
	rows, err := csv.NewReader(strings.NewReader(input)).ReadAll()
	if err != nil {
		return "", err
	}
	total := 0
	for _, row := range rows[1:] {
		v, err := strconv.Atoi(row[len(row)-1])
		if err != nil {
			return "", err
		}
		total += v
	}
	return strconv.Itoa(total), nil
}
`

// planJSON renders a computation plan reply with one step per code block.
func planJSON(codes ...string) string {
	steps := ""
	for i, code := range codes {
		if i > 0 {
			steps += ","
		}
		steps += fmt.Sprintf(`{"number": %d, "description": "step %d", "code": %s, "rationale": ""}`,
			i+1, i+1, strconv.Quote(code))
	}
	return fmt.Sprintf(`{"analysis_type": "descriptive", "steps": [%s], "rationale": "scripted"}`, steps)
}

func traceNodes(st *domain.ExecutionState) []domain.NodeID {
	out := make([]domain.NodeID, 0, len(st.Trace))
	for _, tr := range st.Trace {
		out = append(out, tr.Node)
	}
	return out
}

func TestAnalyticalRunRetrievesComputesAndResponds(t *testing.T) {
	model := &scriptedModel{
		replies: map[string]string{
			"intent_comprehension":   `{"question": "show me total revenue last quarter", "relevant_turns": [], "rationale": "revenue question"}`,
			"request_classification": `{"route": "analytical", "rationale": "asks for a figure"}`,
			"analysis_orchestration": fmt.Sprintf(`{"route": "retrieve_external_data", "sql_query": %s, "rationale": "needs warehouse data"}`, strconv.Quote(revenueQuery)),
			"computation_planning":   planJSON(sumTotalsCode),
			"observation":            `{"status": "sufficient", "rationale": "figure computed"}`,
			"summarization":          `{"summary": "total revenue is 4410"}`,
		},
		texts: map[string]string{
			"analysis_response": "Total revenue across the covered quarters is 4410.",
		},
	}
	eng := newEngine(t, model)

	st, err := eng.Ask(context.Background(), "s1", "show me total revenue last quarter")
	require.NoError(t, err)

	assert.Equal(t, "Total revenue across the covered quarters is 4410.", st.FinalResponse)
	assert.Equal(t, domain.NodeAnalysisResponse, st.RespondedBy)
	assert.Equal(t, domain.RouteAnalytical, st.RouteClass)
	assert.Equal(t, revenueQuery, st.LastQuery)

	// The retrieval really ran: the working dataset is the grouped result.
	require.NotNil(t, st.WorkingDataset)
	assert.Equal(t, []string{"quarter", "total"}, st.WorkingDataset.Columns)
	assert.Len(t, st.WorkingDataset.Rows, 2)

	// The sandbox really ran the generated code.
	require.NotNil(t, st.ExecResult)
	assert.True(t, st.ExecResult.OK)
	assert.Equal(t, "4410", st.ExecResult.Output)

	assert.Equal(t, []domain.NodeID{
		domain.NodeIntentComprehension,
		domain.NodeRequestClassification,
		domain.NodeAnalysisOrchestration,
		domain.NodeDataRetrieval,
		domain.NodeComputationPlanning,
		domain.NodeSandboxEnvironment,
		domain.NodeObservation,
		domain.NodeAnalysisResponse,
		domain.NodeSummarization,
	}, traceNodes(st))

	// The turn survived into session memory.
	turns, err := eng.History(context.Background(), "s1", 0)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, domain.RoleUser, turns[0].Role)
	assert.Equal(t, st.FinalResponse, turns[1].Content)
}

func TestEmptyRetrievalEndsWithoutComputation(t *testing.T) {
	noRows := "SELECT quarter, SUM(amount) AS total FROM revenue_by_quarter WHERE quarter = '2030-Q4' GROUP BY quarter"
	model := &scriptedModel{
		replies: map[string]string{
			"intent_comprehension":   `{"question": "revenue for 2030-Q4", "relevant_turns": [], "rationale": "revenue question"}`,
			"request_classification": `{"route": "analytical", "rationale": "asks for a figure"}`,
			"analysis_orchestration": fmt.Sprintf(`{"route": "retrieve_external_data", "sql_query": %s, "rationale": "needs warehouse data"}`, strconv.Quote(noRows)),
			"summarization":          `{"summary": "no data for 2030-Q4"}`,
		},
	}
	eng := newEngine(t, model)

	st, err := eng.Ask(context.Background(), "s1", "revenue for 2030-Q4")
	require.NoError(t, err)

	assert.Equal(t, domain.NodeDataUnavailability, st.RespondedBy)
	assert.Equal(t, domain.ReasonDataEmpty, st.Reason)
	assert.Contains(t, st.FinalResponse, "returned no rows")

	// The run never reached planning or the sandbox.
	assert.Zero(t, model.called("computation_planning"))
	assert.NotContains(t, traceNodes(st), domain.NodeComputationPlanning)
	assert.NotContains(t, traceNodes(st), domain.NodeSandboxEnvironment)
}

package tests

import (
	"context"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrydata/quarry"
	"github.com/quarrydata/quarry/pkg/domain"
)

const passthroughCode = `
func RunStep(input string) (string, error) {
	return input, nil
}
`

// divideByZeroCode faults at run time, not eval time: the divisor is only
// zero once the step executes.
const divideByZeroCode = `
import "strconv"

func RunStep(input string) (string, error) {
	zero := len(input) - len(input)
	return strconv.Itoa(100 / zero), nil
}
`

func analyticalScript(extra map[string]string) *scriptedModel {
	m := &scriptedModel{
		replies: map[string]string{
			"intent_comprehension":   `{"question": "total revenue", "relevant_turns": [], "rationale": "revenue question"}`,
			"request_classification": `{"route": "analytical", "rationale": "asks for a figure"}`,
			"analysis_orchestration": fmt.Sprintf(`{"route": "retrieve_external_data", "sql_query": %s, "rationale": "needs warehouse data"}`, strconv.Quote(revenueQuery)),
			"observation":            `{"status": "sufficient", "rationale": "figure computed"}`,
			"summarization":          `{"summary": "computed total revenue"}`,
		},
		texts: map[string]string{
			"analysis_response": "The total is 4410.",
		},
		queues: map[string][]string{},
	}
	for k, v := range extra {
		m.replies[k] = v
	}
	return m
}

func TestSelfCorrectionRecoversFromFailingStep(t *testing.T) {
	model := analyticalScript(map[string]string{
		"computation_planning": planJSON(passthroughCode, divideByZeroCode, passthroughCode),
		"self_correction":      planJSON(sumTotalsCode),
	})

	// Capture the failure the corrector saw before the plan was replaced.
	var failedStep int
	hooks := domain.LifecycleHooks{
		OnNodeStart: func(_ context.Context, id domain.NodeID, st *domain.ExecutionState) {
			if id == domain.NodeSelfCorrection && st.ExecResult != nil && st.ExecResult.Err != nil {
				failedStep = st.ExecResult.Err.Step
			}
		},
	}

	eng := newEngine(t, model, quarry.WithLifecycleHooks(hooks))

	st, err := eng.Ask(context.Background(), "s1", "total revenue")
	require.NoError(t, err)

	assert.Equal(t, 2, failedStep)
	assert.Equal(t, 1, model.called("self_correction"))
	assert.Equal(t, 1, st.Retries(domain.RetryCorrection))

	// The corrected plan ran to completion.
	require.NotNil(t, st.ExecResult)
	assert.True(t, st.ExecResult.OK)
	assert.Equal(t, "4410", st.ExecResult.Output)
	assert.Equal(t, domain.NodeAnalysisResponse, st.RespondedBy)

	nodes := traceNodes(st)
	assert.Contains(t, nodes, domain.NodeSelfCorrection)
	// The sandbox appears twice: the failing attempt and the corrected one.
	count := 0
	for _, n := range nodes {
		if n == domain.NodeSandboxEnvironment {
			count++
		}
	}
	assert.Equal(t, 2, count)
}

func TestCorrectionExhaustionEndsAtDataUnavailability(t *testing.T) {
	model := analyticalScript(map[string]string{
		"computation_planning": planJSON(divideByZeroCode),
		"self_correction":      planJSON(divideByZeroCode),
	})

	eng := newEngine(t, model, quarry.WithRetryBounds(1, 1))

	st, err := eng.Ask(context.Background(), "s1", "total revenue")
	require.NoError(t, err)

	assert.Equal(t, domain.NodeDataUnavailability, st.RespondedBy)
	assert.Equal(t, domain.ReasonRetryExhausted, st.Reason)
	assert.Contains(t, st.FinalResponse, "tried several times")

	// One regeneration, then the bounded counter stops the loop.
	assert.Equal(t, 1, model.called("self_correction"))
	assert.Equal(t, 1, st.Retries(domain.RetryCorrection))
	assert.Zero(t, model.called("analysis_response"))
}

func TestSelfReflectionRerunsInsufficientAnalysis(t *testing.T) {
	model := analyticalScript(map[string]string{
		"computation_planning": planJSON(passthroughCode),
		"self_reflection":      planJSON(sumTotalsCode),
	})
	// First output (the raw CSV echo) is judged insufficient; the reflected
	// plan's sum passes.
	model.queues["observation"] = []string{
		`{"status": "insufficient", "rationale": "no figure in output"}`,
		`{"status": "sufficient", "rationale": "figure computed"}`,
	}

	eng := newEngine(t, model)

	st, err := eng.Ask(context.Background(), "s1", "total revenue")
	require.NoError(t, err)

	assert.Equal(t, 1, st.Retries(domain.RetryReflection))
	assert.Equal(t, "4410", st.ExecResult.Output)
	assert.Equal(t, domain.NodeAnalysisResponse, st.RespondedBy)
	assert.Contains(t, traceNodes(st), domain.NodeSelfReflection)
	assert.Equal(t, 2, model.called("observation"))
}

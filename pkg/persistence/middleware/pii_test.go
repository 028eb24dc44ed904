package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrydata/quarry/pkg/adapters/memory"
	"github.com/quarrydata/quarry/pkg/domain"
)

func TestPIIMasksPersistedCopyOnly(t *testing.T) {
	inner := memory.NewCheckpointStore()
	store := NewPIIMiddleware(DefaultPIIPatterns())(inner)
	ctx := context.Background()

	st := domain.NewExecutionState("run-1", "s1")
	st.AppendTurn(domain.RoleUser, "orders by carol@corp.io last month?")
	st.Intent = &domain.Intent{Question: "orders placed by carol@corp.io last month"}
	st.LastQuery = "SELECT * FROM orders WHERE email = 'carol@corp.io'"
	st.ReplaceDataset(&domain.Dataset{
		Columns: []string{"email", "total"},
		Rows:    [][]string{{"carol@corp.io", "120.50"}},
	})
	require.NoError(t, st.SetFinalResponse(domain.NodeAnalysisResponse,
		"carol@corp.io placed 3 orders."))

	cp := &domain.Checkpoint{
		RunID: "run-1", SessionID: "s1", Seq: 1,
		Node: domain.NodeAnalysisResponse, Outcome: domain.OutcomeResponded,
		State: st, At: time.Now().UTC(),
	}
	require.NoError(t, store.Save(ctx, cp))

	persisted, err := inner.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "orders by *** last month?", persisted.State.TurnHistory[0].Content)
	assert.Equal(t, "orders placed by *** last month", persisted.State.Intent.Question)
	assert.Equal(t, "SELECT * FROM orders WHERE email = '***'", persisted.State.LastQuery)
	assert.Equal(t, "***", persisted.State.WorkingDataset.Rows[0][0])
	assert.Equal(t, "120.50", persisted.State.WorkingDataset.Rows[0][1], "non-PII cells survive")
	assert.Equal(t, "*** placed 3 orders.", persisted.State.FinalResponse)

	// The live state the run keeps mutating is untouched.
	assert.Equal(t, "orders by carol@corp.io last month?", st.TurnHistory[0].Content)
	assert.Equal(t, "carol@corp.io", st.WorkingDataset.Rows[0][0])
}

func TestPIIDefaultPatterns(t *testing.T) {
	inner := memory.NewCheckpointStore()
	store := NewPIIMiddleware(DefaultPIIPatterns())(inner)
	ctx := context.Background()

	st := domain.NewExecutionState("run-1", "s1")
	st.AppendTurn(domain.RoleUser, "card 4111 1111 1111 1111, ssn 123-45-6789, 42 orders")

	require.NoError(t, store.Save(ctx, &domain.Checkpoint{
		RunID: "run-1", SessionID: "s1", Seq: 1, State: st, At: time.Now().UTC(),
	}))

	persisted, err := inner.Load(ctx, "run-1")
	require.NoError(t, err)
	masked := persisted.State.TurnHistory[0].Content
	assert.NotContains(t, masked, "4111")
	assert.NotContains(t, masked, "123-45-6789")
	assert.Contains(t, masked, "42 orders", "short digit runs are not card numbers")
}

func TestPIISaveWithoutState(t *testing.T) {
	inner := memory.NewCheckpointStore()
	store := NewPIIMiddleware(DefaultPIIPatterns())(inner)

	cp := &domain.Checkpoint{RunID: "run-1", SessionID: "s1", Seq: 1, At: time.Now().UTC()}
	require.NoError(t, store.Save(context.Background(), cp))

	persisted, err := inner.Load(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Nil(t, persisted.State)
}

func TestNewPIIMiddlewarePanicsOnBadPattern(t *testing.T) {
	assert.Panics(t, func() {
		NewPIIMiddleware([]string{"("})
	})
}

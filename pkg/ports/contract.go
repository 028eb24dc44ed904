package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrydata/quarry/pkg/domain"
)

// RunCheckpointStoreContract runs a suite of tests verifying that a
// CheckpointStore implementation adheres to the interface contract.
func RunCheckpointStoreContract(t *testing.T, store CheckpointStore) {
	ctx := context.Background()
	runID := "contract-run-" + time.Now().Format("20060102150405.000")

	newCheckpoint := func(seq int) *domain.Checkpoint {
		st := domain.NewExecutionState(runID, "contract-session")
		st.AppendTurn(domain.RoleUser, "total revenue last quarter?")
		st.RouteClass = domain.RouteAnalytical
		st.BumpRetry(domain.RetryCorrection)
		st.Hops = seq
		return &domain.Checkpoint{
			RunID:     runID,
			SessionID: st.SessionID,
			Seq:       seq,
			Node:      domain.NodeRequestClassification,
			Outcome:   domain.OutcomeAnalytical,
			State:     st,
			At:        time.Now().UTC(),
		}
	}

	t.Run("Save and Load", func(t *testing.T) {
		cp := newCheckpoint(1)
		require.NoError(t, store.Save(ctx, cp), "Save should not return error")

		loaded, err := store.Load(ctx, runID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, cp.RunID, loaded.RunID)
		assert.Equal(t, cp.Seq, loaded.Seq)
		assert.Equal(t, cp.Node, loaded.Node)
		assert.Equal(t, cp.Outcome, loaded.Outcome)
		require.NotNil(t, loaded.State)
		assert.Equal(t, domain.RouteAnalytical, loaded.State.RouteClass)
		assert.Equal(t, 1, loaded.State.Retries(domain.RetryCorrection))
		assert.Len(t, loaded.State.TurnHistory, 1)
	})

	t.Run("Save Replaces", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, newCheckpoint(1)))
		require.NoError(t, store.Save(ctx, newCheckpoint(7)))

		loaded, err := store.Load(ctx, runID)
		require.NoError(t, err)
		assert.Equal(t, 7, loaded.Seq, "latest checkpoint should win")
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound)
	})

	t.Run("ListRuns", func(t *testing.T) {
		other := runID + "-b"
		cp := newCheckpoint(1)
		cp.RunID = other
		require.NoError(t, store.Save(ctx, newCheckpoint(1)))
		require.NoError(t, store.Save(ctx, cp))
		defer func() { _ = store.Delete(ctx, other) }()

		runs, err := store.ListRuns(ctx)
		require.NoError(t, err)
		assert.Contains(t, runs, runID)
		assert.Contains(t, runs, other)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, newCheckpoint(1)))
		require.NoError(t, store.Delete(ctx, runID))

		_, err := store.Load(ctx, runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound, "Load after Delete should return ErrRunNotFound")
	})
}

// RunMemoryStoreContract runs a suite of tests verifying that a MemoryStore
// implementation adheres to the interface contract.
func RunMemoryStoreContract(t *testing.T, store MemoryStore) {
	ctx := context.Background()
	sessionID := "contract-session-" + time.Now().Format("20060102150405.000")

	finishedRun := func(turn int, question, answer, query string) *domain.ExecutionState {
		st := domain.NewExecutionState("run", sessionID)
		st.TurnNum = turn
		st.AppendTurn(domain.RoleUser, question)
		require.NoError(t, st.SetFinalResponse(domain.NodeAnalysisResponse, answer))
		st.AppendTurn(domain.RoleAssistant, answer)
		st.LastQuery = query
		st.Summaries = append(st.Summaries, domain.TurnSummary{
			Turn:     turn,
			Summary:  "asked about " + question,
			SQLQuery: query,
			At:       time.Now().UTC(),
		})
		return st
	}

	t.Run("Empty Session", func(t *testing.T) {
		snap, err := store.LoadSummary(ctx, sessionID)
		require.NoError(t, err, "unknown session is empty, not an error")
		require.NotNil(t, snap)
		assert.Zero(t, snap.Turns)
		assert.Empty(t, snap.Summaries)
	})

	t.Run("Persist and Load", func(t *testing.T) {
		st := finishedRun(1, "revenue?", "Revenue was 42.", "SELECT sum(amount) FROM orders")
		require.NoError(t, store.Persist(ctx, sessionID, st))

		snap, err := store.LoadSummary(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, 1, snap.Turns)
		require.Len(t, snap.Summaries, 1)
		assert.Equal(t, 1, snap.Summaries[0].Turn)
		assert.Contains(t, snap.Summaries[0].Summary, "revenue?")
		assert.Equal(t, "SELECT sum(amount) FROM orders", snap.Summaries[0].SQLQuery)
	})

	t.Run("Accumulates Turns", func(t *testing.T) {
		st := finishedRun(2, "and by region?", "EMEA leads.", "SELECT region, sum(amount) FROM orders GROUP BY region")
		require.NoError(t, store.Persist(ctx, sessionID, st))

		snap, err := store.LoadSummary(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, 2, snap.Turns)
		assert.Len(t, snap.Summaries, 2)
	})

	t.Run("History Order and Limit", func(t *testing.T) {
		history, err := store.History(ctx, sessionID, 0)
		require.NoError(t, err)
		require.Len(t, history, 4, "two persisted turns are four messages")
		assert.Equal(t, domain.RoleUser, history[0].Role)
		assert.Equal(t, "revenue?", history[0].Content)
		assert.Equal(t, domain.RoleAssistant, history[3].Role)

		recent, err := store.History(ctx, sessionID, 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, "and by region?", recent[0].Content, "limit keeps the most recent turns, oldest first")
	})
}

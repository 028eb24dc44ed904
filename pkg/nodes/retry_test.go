package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrydata/quarry/pkg/domain"
)

func failedExecState() *domain.ExecutionState {
	st := planningState()
	st.Plan = onePlan()
	st.ExecResult = &domain.ExecutionResult{
		Err: &domain.ExecError{Kind: domain.ExecErrRuntime, Message: "integer divide by zero", Step: 1},
	}
	return st
}

func TestSelfCorrectionRegeneratesPlan(t *testing.T) {
	node := NewSelfCorrection(Config{Model: scripted("self_correction", planReply), MaxCorrection: 2})

	st := failedExecState()
	out, err := node.Execute(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomePlanReady, out)
	assert.Equal(t, 1, st.Retries(domain.RetryCorrection))
	require.Len(t, st.Plan.Steps, 2, "the plan is replaced wholesale")
	assert.Equal(t, 1, st.Plan.Attempt)
}

func TestSelfCorrectionExhaustsAtBound(t *testing.T) {
	node := NewSelfCorrection(Config{Model: &fakeModel{}, MaxCorrection: 2})

	st := failedExecState()
	st.RetryCounters[domain.RetryCorrection] = 2

	out, err := node.Execute(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRetryExhausted, out)
	assert.Equal(t, domain.ReasonRetryExhausted, st.Reason)
	assert.Equal(t, 2, st.Retries(domain.RetryCorrection), "the counter never passes the bound")
}

func TestSelfCorrectionCounterStaysBounded(t *testing.T) {
	// A model outage during regeneration still bumps the counter, so even a
	// permanently failing loop terminates.
	node := NewSelfCorrection(Config{Model: failing("self_correction"), MaxCorrection: 2})

	st := failedExecState()
	var outs []domain.Outcome
	for range 5 {
		out, err := node.Execute(context.Background(), st)
		require.NoError(t, err)
		outs = append(outs, out)
		assert.LessOrEqual(t, st.Retries(domain.RetryCorrection), 2)
	}
	assert.Equal(t, []domain.Outcome{
		domain.OutcomePlanReady,
		domain.OutcomePlanReady,
		domain.OutcomeRetryExhausted,
		domain.OutcomeRetryExhausted,
		domain.OutcomeRetryExhausted,
	}, outs)
}

func TestSelfCorrectionDegradesToPlaceholderPlan(t *testing.T) {
	node := NewSelfCorrection(Config{Model: failing("self_correction"), MaxCorrection: 2})

	st := failedExecState()
	out, err := node.Execute(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomePlanReady, out)

	// Even the degraded plan carries a step: the plan stays non-empty next
	// to the execution result, and the sandbox rejects the codeless step.
	require.NotNil(t, st.Plan)
	assert.False(t, st.Plan.Empty())
	require.Len(t, st.Plan.Steps, 1)
	assert.Empty(t, st.Plan.Steps[0].Code)
}

func TestSelfReflectionRegeneratesPlan(t *testing.T) {
	node := NewSelfReflection(Config{Model: scripted("self_reflection", planReply), MaxReflection: 2})

	st := observedState("all zeros")
	out, err := node.Execute(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomePlanReady, out)
	assert.Equal(t, 1, st.Retries(domain.RetryReflection))
	assert.Zero(t, st.Retries(domain.RetryCorrection), "reflection never touches the correction counter")
}

func TestSelfReflectionExhaustsAtBound(t *testing.T) {
	node := NewSelfReflection(Config{Model: &fakeModel{}, MaxReflection: 1})

	st := observedState("weak output")
	st.RetryCounters[domain.RetryReflection] = 1

	out, err := node.Execute(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRetryExhausted, out)
	assert.Equal(t, domain.ReasonRetryExhausted, st.Reason)
}

func TestRetryAttemptNumbersPlansAcrossKinds(t *testing.T) {
	correction := NewSelfCorrection(Config{Model: scripted("self_correction", planReply), MaxCorrection: 2})
	reflection := NewSelfReflection(Config{Model: scripted("self_reflection", planReply), MaxReflection: 2})

	st := failedExecState()
	_, err := correction.Execute(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Plan.Attempt)

	st.ExecResult = &domain.ExecutionResult{OK: true, Output: "weak"}
	_, err = reflection.Execute(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Plan.Attempt, "attempts count regenerations of either kind")
}

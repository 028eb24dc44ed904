package runtime

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrydata/quarry/pkg/domain"
	"github.com/quarrydata/quarry/pkg/graph"
	"github.com/quarrydata/quarry/pkg/ports"
)

// stubNode plays scripted outcomes in call order, repeating the last one.
// fn, when set, mutates state before the outcome is returned, the way real
// nodes do.
type stubNode struct {
	id     domain.NodeID
	vocab  []domain.Outcome
	script []domain.Outcome
	fn     func(context.Context, *domain.ExecutionState) error
	err    error
	calls  int
}

func (n *stubNode) ID() domain.NodeID          { return n.id }
func (n *stubNode) Outcomes() []domain.Outcome { return n.vocab }

func (n *stubNode) Execute(ctx context.Context, st *domain.ExecutionState) (domain.Outcome, error) {
	n.calls++
	if n.err != nil {
		return "", n.err
	}
	if n.fn != nil {
		if err := n.fn(ctx, st); err != nil {
			return "", err
		}
	}
	return n.script[min(n.calls-1, len(n.script)-1)], nil
}

func respondStub(id domain.NodeID) *stubNode {
	return &stubNode{
		id:     id,
		vocab:  []domain.Outcome{domain.OutcomeResponded},
		script: []domain.Outcome{domain.OutcomeResponded},
		fn: func(_ context.Context, st *domain.ExecutionState) error {
			return st.SetFinalResponse(id, "answer from "+string(id))
		},
	}
}

func bumpFn(kind domain.RetryKind) func(context.Context, *domain.ExecutionState) error {
	return func(_ context.Context, st *domain.ExecutionState) error {
		st.BumpRetry(kind)
		return nil
	}
}

// defaultStubs builds one stub per node of the default topology, scripted
// for the simplest path through each. Tests override the nodes they care
// about before assembling the graph.
func defaultStubs() map[domain.NodeID]*stubNode {
	vocab := graph.DefaultVocabulary()
	m := make(map[domain.NodeID]*stubNode, len(vocab))
	add := func(id domain.NodeID, script ...domain.Outcome) *stubNode {
		n := &stubNode{id: id, vocab: vocab[id], script: script}
		m[id] = n
		return n
	}

	add(domain.NodeIntentComprehension, domain.OutcomeIntentResolved)
	add(domain.NodeRequestClassification, domain.OutcomeConversational)
	add(domain.NodeAnalysisOrchestration, domain.OutcomeReadyToCompute)
	add(domain.NodeDataRetrieval, domain.OutcomeRetrievalOK)
	add(domain.NodeComputationPlanning, domain.OutcomePlanReady)
	add(domain.NodeSandboxEnvironment, domain.OutcomeExecSuccess)
	add(domain.NodeObservation, domain.OutcomeSufficient)
	add(domain.NodeSelfCorrection, domain.OutcomePlanReady).fn = bumpFn(domain.RetryCorrection)
	add(domain.NodeSelfReflection, domain.OutcomePlanReady).fn = bumpFn(domain.RetryReflection)
	add(domain.NodeSummarization, domain.OutcomePersisted)

	m[domain.NodeDataUnavailability] = respondStub(domain.NodeDataUnavailability)
	m[domain.NodeAnalysisResponse] = respondStub(domain.NodeAnalysisResponse)
	m[domain.NodeDirectResponse] = respondStub(domain.NodeDirectResponse)
	m[domain.NodePuntResponse] = respondStub(domain.NodePuntResponse)
	return m
}

func buildGraph(t *testing.T, stubs map[domain.NodeID]*stubNode) *graph.Graph {
	t.Helper()
	nodes := make([]domain.Node, 0, len(stubs))
	for _, n := range stubs {
		nodes = append(nodes, n)
	}
	g, err := graph.New(graph.DefaultEntry, nodes, graph.DefaultRoutes())
	require.NoError(t, err)
	return g
}

func newState() *domain.ExecutionState {
	st := domain.NewExecutionState("run-1", "sess-1")
	st.AppendTurn(domain.RoleUser, "what was revenue last quarter?")
	return st
}

func traceNodes(st *domain.ExecutionState) []domain.NodeID {
	out := make([]domain.NodeID, len(st.Trace))
	for i, tr := range st.Trace {
		out[i] = tr.Node
	}
	return out
}

type fakeCheckpoints struct {
	saves   []domain.Checkpoint
	failing bool
	onSave  func(*domain.Checkpoint)
}

func (f *fakeCheckpoints) Save(_ context.Context, cp *domain.Checkpoint) error {
	if f.onSave != nil {
		f.onSave(cp)
	}
	if f.failing {
		return errors.New("checkpoint store down")
	}
	f.saves = append(f.saves, *cp)
	return nil
}

func (f *fakeCheckpoints) Load(context.Context, string) (*domain.Checkpoint, error) {
	return nil, domain.ErrRunNotFound
}
func (f *fakeCheckpoints) Delete(context.Context, string) error { return nil }

func (f *fakeCheckpoints) ListRuns(context.Context) ([]string, error) { return nil, nil }

func TestRunConversationalPath(t *testing.T) {
	stubs := defaultStubs()
	g := buildGraph(t, stubs)

	var endErr error
	endCalls := 0
	e := New(g, WithHooks(domain.LifecycleHooks{
		OnRunEnd: func(_ context.Context, _ *domain.ExecutionState, err error) {
			endCalls++
			endErr = err
		},
	}))

	st := newState()
	require.NoError(t, e.Run(context.Background(), st))

	assert.Equal(t, []domain.NodeID{
		domain.NodeIntentComprehension,
		domain.NodeRequestClassification,
		domain.NodeDirectResponse,
		domain.NodeSummarization,
	}, traceNodes(st))
	assert.Equal(t, 4, st.Hops)
	assert.Equal(t, "answer from direct_response", st.FinalResponse)
	assert.Equal(t, domain.NodeDirectResponse, st.RespondedBy)
	assert.Equal(t, 1, endCalls)
	assert.NoError(t, endErr)

	// Seq is contiguous from 1 and every recorded successor matches the
	// table, ending at Terminal.
	for i, tr := range st.Trace {
		assert.Equal(t, i+1, tr.Seq)
	}
	assert.Equal(t, domain.Terminal, st.Trace[len(st.Trace)-1].Next)

	visited, err := g.Router().Replay(st.Trace)
	require.NoError(t, err)
	assert.Equal(t, domain.Terminal, visited[len(visited)-1])
}

func TestRunAnalyticalPathWithRetrieval(t *testing.T) {
	stubs := defaultStubs()
	stubs[domain.NodeRequestClassification].script = []domain.Outcome{domain.OutcomeAnalytical}
	stubs[domain.NodeAnalysisOrchestration].script = []domain.Outcome{domain.OutcomeNeedRetrieval}
	g := buildGraph(t, stubs)

	st := newState()
	require.NoError(t, New(g).Run(context.Background(), st))

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
	assert.Equal(t, domain.NodeAnalysisResponse, st.RespondedBy)
	assert.Zero(t, st.Retries(domain.RetryCorrection))
	assert.Zero(t, st.Retries(domain.RetryReflection))

	// Exactly one response and one persistence per run.
	responded, persisted := 0, 0
	for _, tr := range st.Trace {
		switch tr.Outcome {
		case domain.OutcomeResponded:
			responded++
		case domain.OutcomePersisted:
			persisted++
		}
	}
	assert.Equal(t, 1, responded)
	assert.Equal(t, 1, persisted)
}

func TestRunOutOfDomainSkipsAnalysis(t *testing.T) {
	stubs := defaultStubs()
	stubs[domain.NodeRequestClassification].script = []domain.Outcome{domain.OutcomeOutOfDomain}
	g := buildGraph(t, stubs)

	st := newState()
	require.NoError(t, New(g).Run(context.Background(), st))

	assert.Equal(t, domain.NodePuntResponse, st.RespondedBy)
	for _, id := range traceNodes(st) {
		assert.NotContains(t, []domain.NodeID{
			domain.NodeDataRetrieval,
			domain.NodeComputationPlanning,
			domain.NodeSandboxEnvironment,
			domain.NodeSummarization,
		}, id)
	}
	assert.Equal(t, 3, st.Hops)
}

func TestRunForcesUnavailabilityWhenCorrectionExhausted(t *testing.T) {
	stubs := defaultStubs()
	stubs[domain.NodeRequestClassification].script = []domain.Outcome{domain.OutcomeAnalytical}
	stubs[domain.NodeSandboxEnvironment].script = []domain.Outcome{domain.OutcomeExecError}
	g := buildGraph(t, stubs)

	e := New(g,
		WithRetryBounds(2, 2),
		WithHooks(domain.LifecycleHooks{
			OnNodeStart: func(_ context.Context, _ domain.NodeID, st *domain.ExecutionState) {
				// The bound holds before every node, not just at the end.
				require.LessOrEqual(t, st.Retries(domain.RetryCorrection), 2)
			},
		}))

	st := newState()
	require.NoError(t, e.Run(context.Background(), st))

	assert.Equal(t, 2, stubs[domain.NodeSelfCorrection].calls)
	assert.Equal(t, 2, st.Retries(domain.RetryCorrection))
	assert.Equal(t, 3, stubs[domain.NodeSandboxEnvironment].calls)
	assert.Equal(t, domain.ReasonRetryExhausted, st.Reason)
	assert.Equal(t, domain.NodeDataUnavailability, st.RespondedBy)

	// The third exec_error is redirected away from self_correction, and the
	// recorded trace says so.
	last := st.Trace[len(st.Trace)-3]
	assert.Equal(t, domain.NodeSandboxEnvironment, last.Node)
	assert.Equal(t, domain.OutcomeExecError, last.Outcome)
	assert.Equal(t, domain.NodeDataUnavailability, last.Next)

	// A forced trace still replays.
	visited, err := g.Router().Replay(st.Trace)
	require.NoError(t, err)
	assert.Equal(t, domain.Terminal, visited[len(visited)-1])
}

func TestRunForcesUnavailabilityWhenReflectionExhausted(t *testing.T) {
	stubs := defaultStubs()
	stubs[domain.NodeRequestClassification].script = []domain.Outcome{domain.OutcomeAnalytical}
	stubs[domain.NodeObservation].script = []domain.Outcome{domain.OutcomeInsufficient}
	g := buildGraph(t, stubs)

	st := newState()
	require.NoError(t, New(g, WithRetryBounds(2, 2)).Run(context.Background(), st))

	assert.Equal(t, 2, stubs[domain.NodeSelfReflection].calls)
	assert.Equal(t, 2, st.Retries(domain.RetryReflection))
	assert.Equal(t, domain.ReasonRetryExhausted, st.Reason)
	assert.Equal(t, domain.NodeDataUnavailability, st.RespondedBy)
	assert.NotEmpty(t, st.FinalResponse)
}

func TestRunCancelledBetweenNodes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	stubs := defaultStubs()
	stubs[domain.NodeRequestClassification].fn = func(context.Context, *domain.ExecutionState) error {
		cancel()
		return nil
	}
	g := buildGraph(t, stubs)

	var endErr error
	e := New(g, WithHooks(domain.LifecycleHooks{
		OnRunEnd: func(_ context.Context, _ *domain.ExecutionState, err error) { endErr = err },
	}))

	st := newState()
	err := e.Run(ctx, st)
	require.ErrorIs(t, err, domain.ErrRunCancelled)
	assert.ErrorIs(t, endErr, domain.ErrRunCancelled)

	assert.True(t, st.Cancelled)
	assert.Equal(t, domain.ReasonCancelled, st.Reason)
	assert.Empty(t, st.FinalResponse)

	// The node that cancelled still ran to its outcome; nothing after it
	// started.
	assert.Len(t, st.Trace, 2)
	assert.Zero(t, stubs[domain.NodeDirectResponse].calls)
	assert.Zero(t, stubs[domain.NodeSummarization].calls)
}

func TestRunNodeErrorIsFatal(t *testing.T) {
	stubs := defaultStubs()
	boom := errors.New("prompt document corrupted")
	stubs[domain.NodeRequestClassification].err = boom
	g := buildGraph(t, stubs)

	var endErr error
	e := New(g, WithHooks(domain.LifecycleHooks{
		OnRunEnd: func(_ context.Context, _ *domain.ExecutionState, err error) { endErr = err },
	}))

	st := newState()
	err := e.Run(context.Background(), st)
	require.ErrorIs(t, err, boom)
	assert.ErrorIs(t, endErr, boom)
	assert.Contains(t, err.Error(), "request_classification")
	assert.Len(t, st.Trace, 1)
	assert.False(t, st.Cancelled)
}

func TestRunRogueOutcomeIsFatal(t *testing.T) {
	stubs := defaultStubs()
	// Declared vocabulary says responded; the implementation misbehaves.
	stubs[domain.NodeDirectResponse].script = []domain.Outcome{"shrug"}
	stubs[domain.NodeDirectResponse].fn = nil
	g := buildGraph(t, stubs)

	st := newState()
	err := New(g).Run(context.Background(), st)
	require.ErrorIs(t, err, domain.ErrUnknownOutcome)
}

func TestRunTerminalWithoutResponseIsFatal(t *testing.T) {
	stubs := defaultStubs()
	stubs[domain.NodeRequestClassification].script = []domain.Outcome{domain.OutcomeOutOfDomain}
	// Punt forgets to set a response.
	stubs[domain.NodePuntResponse].fn = nil
	g := buildGraph(t, stubs)

	st := newState()
	err := New(g).Run(context.Background(), st)
	require.ErrorIs(t, err, domain.ErrNoFinalResponse)
}

func TestRunNilState(t *testing.T) {
	g := buildGraph(t, defaultStubs())
	require.Error(t, New(g).Run(context.Background(), nil))
}

func TestRunCheckpointsEveryTransitionBeforeNextNode(t *testing.T) {
	var order []string
	store := &fakeCheckpoints{onSave: func(cp *domain.Checkpoint) {
		order = append(order, fmt.Sprintf("save %d", cp.Seq))
	}}

	stubs := defaultStubs()
	g := buildGraph(t, stubs)
	e := New(g,
		WithCheckpoints(store),
		WithHooks(domain.LifecycleHooks{
			OnNodeStart: func(_ context.Context, id domain.NodeID, _ *domain.ExecutionState) {
				order = append(order, "start "+string(id))
			},
		}))

	st := newState()
	require.NoError(t, e.Run(context.Background(), st))

	assert.Equal(t, []string{
		"start intent_comprehension", "save 1",
		"start request_classification", "save 2",
		"start direct_response", "save 3",
		"start summarization", "save 4",
	}, order)

	require.Len(t, store.saves, 4)
	last := store.saves[3]
	assert.Equal(t, "run-1", last.RunID)
	assert.Equal(t, domain.NodeSummarization, last.Node)
	assert.Equal(t, domain.OutcomePersisted, last.Outcome)
}

func TestRunToleratesCheckpointFailure(t *testing.T) {
	store := &fakeCheckpoints{failing: true}
	g := buildGraph(t, defaultStubs())

	st := newState()
	require.NoError(t, New(g, WithCheckpoints(store)).Run(context.Background(), st))
	assert.NotEmpty(t, st.FinalResponse)
}

func TestRunEventsMatchTrace(t *testing.T) {
	var events []domain.Event
	obs := ports.ObserverFunc(func(ev domain.Event) { events = append(events, ev) })

	var hooked []domain.Event
	hooks := domain.LifecycleHooks{
		OnTransition: func(_ context.Context, ev *domain.Event) { hooked = append(hooked, *ev) },
	}

	g := buildGraph(t, defaultStubs())
	st := newState()
	require.NoError(t, New(g, WithObserver(obs), WithHooks(hooks)).Run(context.Background(), st))

	require.Len(t, events, len(st.Trace))
	require.Len(t, hooked, len(st.Trace))
	for i, tr := range st.Trace {
		assert.Equal(t, st.RunID, events[i].RunID)
		assert.Equal(t, st.SessionID, events[i].SessionID)
		assert.Equal(t, tr.Seq, events[i].Seq)
		assert.Equal(t, tr.Node, events[i].Node)
		assert.Equal(t, tr.Outcome, events[i].Outcome)
		assert.Equal(t, tr.Next, events[i].Next)
		assert.Equal(t, events[i], hooked[i])
	}
}

// Ceiling tests run on a deliberately cyclic two-node topology. give_up is
// never produced by the stubs; its edge exists so the rescue path is
// reachable and the table validates.
const (
	nodePing  = domain.NodeID("ping")
	nodePong  = domain.NodeID("pong")
	outBounce = domain.Outcome("bounce")
	outGiveUp = domain.Outcome("give_up")
)

func pingPongStub(id domain.NodeID) *stubNode {
	return &stubNode{
		id:     id,
		vocab:  []domain.Outcome{outBounce, outGiveUp},
		script: []domain.Outcome{outBounce},
	}
}

func TestRunHopCeilingForcesExplanation(t *testing.T) {
	unavail := respondStub(domain.NodeDataUnavailability)
	summ := &stubNode{
		id:     domain.NodeSummarization,
		vocab:  []domain.Outcome{domain.OutcomePersisted},
		script: []domain.Outcome{domain.OutcomePersisted},
	}
	g, err := graph.New(nodePing,
		[]domain.Node{pingPongStub(nodePing), pingPongStub(nodePong), unavail, summ},
		[]graph.Route{
			{From: nodePing, On: outBounce, To: nodePong},
			{From: nodePing, On: outGiveUp, To: domain.NodeDataUnavailability},
			{From: nodePong, On: outBounce, To: nodePing},
			{From: nodePong, On: outGiveUp, To: domain.NodeDataUnavailability},
			{From: domain.NodeDataUnavailability, On: domain.OutcomeResponded, To: domain.NodeSummarization},
			{From: domain.NodeSummarization, On: domain.OutcomePersisted, To: domain.Terminal},
		})
	require.NoError(t, err)

	st := newState()
	require.NoError(t, New(g, WithMaxHops(6)).Run(context.Background(), st))

	assert.Equal(t, 8, st.Hops)
	assert.Equal(t, domain.ReasonHopCeiling, st.Reason)
	assert.Equal(t, domain.NodeDataUnavailability, st.RespondedBy)
	assert.Equal(t, 1, unavail.calls)

	// The sixth transition was rerouted off the cycle.
	assert.Equal(t, domain.NodeDataUnavailability, st.Trace[5].Next)
}

func TestRunHopCeilingHardAbort(t *testing.T) {
	// The rescue path feeds back into the cycle, so even the forced hop
	// cannot terminate the run.
	unavail := &stubNode{
		id:     domain.NodeDataUnavailability,
		vocab:  []domain.Outcome{domain.OutcomeResponded},
		script: []domain.Outcome{domain.OutcomeResponded},
	}
	g, err := graph.New(nodePing,
		[]domain.Node{pingPongStub(nodePing), pingPongStub(nodePong), unavail},
		[]graph.Route{
			{From: nodePing, On: outBounce, To: nodePong},
			{From: nodePing, On: outGiveUp, To: domain.NodeDataUnavailability},
			{From: nodePong, On: outBounce, To: nodePing},
			{From: nodePong, On: outGiveUp, To: domain.NodeDataUnavailability},
			{From: domain.NodeDataUnavailability, On: domain.OutcomeResponded, To: nodePing},
		})
	require.NoError(t, err)

	st := newState()
	err = New(g, WithMaxHops(6)).Run(context.Background(), st)
	require.ErrorIs(t, err, domain.ErrHopCeiling)
	assert.Equal(t, 9, st.Hops)
}

package nodes

import (
	"context"
	"errors"
	"fmt"

	"github.com/quarrydata/quarry/pkg/domain"
	"github.com/quarrydata/quarry/pkg/ports"
)

// fakeModel scripts replies per call name. Invoke decodes the scripted JSON
// through the real contract, so tests exercise the same validation boundary
// production runs do.
type fakeModel struct {
	replies map[string]string // call name -> raw JSON for Invoke
	texts   map[string]string // call name -> text for Complete
	errs    map[string]error  // call name -> forced error
	calls   []string
}

func (m *fakeModel) Invoke(_ context.Context, req ports.InvokeRequest) error {
	m.calls = append(m.calls, req.Name)
	if err := m.errs[req.Name]; err != nil {
		return err
	}
	raw, ok := m.replies[req.Name]
	if !ok {
		return &ports.ModelError{Kind: ports.ModelTransport, Err: fmt.Errorf("no scripted reply for %s", req.Name)}
	}
	return req.Contract.DecodeJSON(raw, req.Out)
}

func (m *fakeModel) Complete(_ context.Context, req ports.CompleteRequest) (string, error) {
	m.calls = append(m.calls, req.Name)
	if err := m.errs[req.Name]; err != nil {
		return "", err
	}
	return m.texts[req.Name], nil
}

func scripted(name, raw string) *fakeModel {
	return &fakeModel{replies: map[string]string{name: raw}}
}

func failing(name string) *fakeModel {
	return &fakeModel{errs: map[string]error{name: transportErr()}}
}

func transportErr() error {
	return &ports.ModelError{Kind: ports.ModelTransport, Err: errors.New("model unreachable")}
}

type fakeWarehouse struct {
	ds      *domain.Dataset
	err     error
	snap    *ports.WarehouseSnapshot
	snapErr error

	gotQuery string
}

func (w *fakeWarehouse) Query(_ context.Context, query string) (*domain.Dataset, error) {
	w.gotQuery = query
	if w.err != nil {
		return nil, w.err
	}
	return w.ds, nil
}

func (w *fakeWarehouse) Snapshot(context.Context) (*ports.WarehouseSnapshot, error) {
	if w.snapErr != nil {
		return nil, w.snapErr
	}
	if w.snap == nil {
		return &ports.WarehouseSnapshot{}, nil
	}
	return w.snap, nil
}

type fakeSandbox struct {
	res *domain.ExecutionResult

	gotPlan    *domain.Plan
	gotDataset *domain.Dataset
	gotLimits  ports.ResourceLimits
}

func (s *fakeSandbox) Run(_ context.Context, plan *domain.Plan, ds *domain.Dataset, limits ports.ResourceLimits) *domain.ExecutionResult {
	s.gotPlan, s.gotDataset, s.gotLimits = plan, ds, limits
	return s.res
}

type fakeMemory struct {
	persisted  []*domain.ExecutionState
	persistErr error
}

func (m *fakeMemory) LoadSummary(_ context.Context, sessionID string) (*domain.SummarySnapshot, error) {
	return &domain.SummarySnapshot{SessionID: sessionID}, nil
}

func (m *fakeMemory) Persist(_ context.Context, _ string, st *domain.ExecutionState) error {
	if m.persistErr != nil {
		return m.persistErr
	}
	m.persisted = append(m.persisted, st)
	return nil
}

func (m *fakeMemory) History(context.Context, string, int) ([]domain.ConversationTurn, error) {
	return nil, nil
}

// newRunState builds the state a run starts with: one user turn.
func newRunState(question string) *domain.ExecutionState {
	st := domain.NewExecutionState("run-1", "sess-1")
	st.AppendTurn(domain.RoleUser, question)
	return st
}

func revenueDataset() *domain.Dataset {
	return &domain.Dataset{
		Name:    "revenue",
		Columns: []string{"quarter", "revenue"},
		Rows:    [][]string{{"2025-Q1", "1200"}, {"2025-Q2", "1350"}},
		Query:   "SELECT quarter, revenue FROM revenue_by_quarter",
	}
}

func onePlan() *domain.Plan {
	return &domain.Plan{
		AnalysisType: domain.AnalysisDescriptive,
		Steps: []domain.Step{{
			Number:      1,
			Description: "sum the revenue column",
			Code:        "package main\nfunc RunStep(input string) (string, error) { return \"2550\", nil }",
		}},
	}
}

package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestNewExecutionState(t *testing.T) {
	st := NewExecutionState("run-1", "sess-1")

	if st.RunID != "run-1" || st.SessionID != "sess-1" {
		t.Fatalf("identifiers not set: %+v", st)
	}
	if st.RetryCounters == nil {
		t.Fatal("retry counters must be initialized")
	}
	if st.TurnNum != 1 {
		t.Errorf("TurnNum = %d, want 1", st.TurnNum)
	}
	if st.FinalResponse != "" || st.RespondedBy != "" {
		t.Error("fresh state must carry no response")
	}
}

func TestLatestUserTurn(t *testing.T) {
	st := NewExecutionState("run-1", "sess-1")

	if _, ok := st.LatestUserTurn(); ok {
		t.Fatal("empty history should report no user turn")
	}

	st.AppendTurn(RoleUser, "first question")
	st.AppendTurn(RoleAssistant, "first answer")
	st.AppendTurn(RoleUser, "second question")

	turn, ok := st.LatestUserTurn()
	if !ok {
		t.Fatal("expected a user turn")
	}
	if turn.Content != "second question" {
		t.Errorf("LatestUserTurn = %q, want %q", turn.Content, "second question")
	}
	if turn.At.IsZero() {
		t.Error("appended turns must be timestamped")
	}
}

func TestRetryCounters(t *testing.T) {
	st := NewExecutionState("run-1", "sess-1")

	if got := st.Retries(RetryCorrection); got != 0 {
		t.Fatalf("Retries = %d, want 0", got)
	}
	if got := st.BumpRetry(RetryCorrection); got != 1 {
		t.Fatalf("BumpRetry = %d, want 1", got)
	}
	st.BumpRetry(RetryCorrection)
	st.BumpRetry(RetryReflection)

	if got := st.Retries(RetryCorrection); got != 2 {
		t.Errorf("correction count = %d, want 2", got)
	}
	if got := st.Retries(RetryReflection); got != 1 {
		t.Errorf("reflection count = %d, want 1", got)
	}

	// Counters survive on a state with a nil map (e.g. decoded checkpoints).
	decoded := &ExecutionState{}
	if got := decoded.Retries(RetryCorrection); got != 0 {
		t.Errorf("nil-map Retries = %d, want 0", got)
	}
	if got := decoded.BumpRetry(RetryReflection); got != 1 {
		t.Errorf("nil-map BumpRetry = %d, want 1", got)
	}
}

func TestSetFinalResponseOnce(t *testing.T) {
	st := NewExecutionState("run-1", "sess-1")

	if err := st.SetFinalResponse(NodeDirectResponse, "hello"); err != nil {
		t.Fatalf("first SetFinalResponse: %v", err)
	}
	err := st.SetFinalResponse(NodeAnalysisResponse, "again")
	if !errors.Is(err, ErrResponseAlreadySet) {
		t.Fatalf("second SetFinalResponse = %v, want ErrResponseAlreadySet", err)
	}
	if st.RespondedBy != NodeDirectResponse {
		t.Errorf("RespondedBy = %q, want %q", st.RespondedBy, NodeDirectResponse)
	}
}

func TestDatasetCSV(t *testing.T) {
	tests := []struct {
		name string
		ds   *Dataset
		want []string // lines expected in order
	}{
		{
			name: "nil dataset",
			ds:   nil,
			want: nil,
		},
		{
			name: "header only",
			ds:   &Dataset{Columns: []string{"region", "revenue"}},
			want: []string{"region,revenue"},
		},
		{
			name: "rows with quoting",
			ds: &Dataset{
				Columns: []string{"region", "note"},
				Rows:    [][]string{{"emea", `contains, comma`}},
			},
			want: []string{"region,note", `emea,"contains, comma"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.ds.CSV()
			if tt.want == nil {
				if got != "" {
					t.Fatalf("CSV() = %q, want empty", got)
				}
				return
			}
			lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
			if len(lines) != len(tt.want) {
				t.Fatalf("CSV() lines = %d, want %d: %q", len(lines), len(tt.want), got)
			}
			for i, want := range tt.want {
				if lines[i] != want {
					t.Errorf("line %d = %q, want %q", i, lines[i], want)
				}
			}
		})
	}
}

func TestDatasetEmptyAndReplace(t *testing.T) {
	var nilDS *Dataset
	if !nilDS.Empty() {
		t.Error("nil dataset must be empty")
	}
	if (&Dataset{Columns: []string{"a"}}).Empty() != true {
		t.Error("dataset without rows must be empty")
	}

	st := NewExecutionState("run-1", "sess-1")
	first := &Dataset{Columns: []string{"a"}, Rows: [][]string{{"1"}}}
	second := &Dataset{Columns: []string{"b"}, Rows: [][]string{{"2"}, {"3"}}}

	st.ReplaceDataset(first)
	st.ReplaceDataset(second)
	if st.WorkingDataset != second {
		t.Fatal("ReplaceDataset must swap the snapshot wholesale")
	}
}

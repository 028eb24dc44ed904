package domain

import (
	"bytes"
	"encoding/csv"
	"time"
)

// Role tags a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one message in the session transcript. Turns are
// immutable once appended; the graph only ever appends the final response.
type ConversationTurn struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// RouteClass is the classification decided once per run.
type RouteClass string

const (
	RouteUnclassified   RouteClass = ""
	RouteAnalytical     RouteClass = "analytical"
	RouteConversational RouteClass = "conversational"
	RouteOutOfDomain    RouteClass = "out_of_domain"
)

// Strategy is the orchestration decision for an analytical run. It may be
// recomputed if retrieval changes data availability.
type Strategy string

const (
	StrategyUnset           Strategy = ""
	StrategyUseExistingData Strategy = "use_existing_data"
	StrategyRetrieveData    Strategy = "retrieve_external_data"
	StrategyComputeNow      Strategy = "compute_now"
)

// Intent is the structured comprehension of the latest user turn.
// RelevantTurns holds the indices into TurnHistory the comprehension step
// judged relevant to the new question.
type Intent struct {
	Question      string `json:"question"`
	Context       string `json:"context,omitempty"`
	RelevantTurns []int  `json:"relevant_turns,omitempty"`
	Rationale     string `json:"rationale,omitempty"`
}

// Dataset is a complete, query-consistent snapshot of retrieved data. It is
// replaced wholesale when retrieval succeeds, never merged or patched.
type Dataset struct {
	Name        string    `json:"name,omitempty"`
	Columns     []string  `json:"columns"`
	Rows        [][]string `json:"rows"`
	Query       string    `json:"query,omitempty"`
	RetrievedAt time.Time `json:"retrieved_at,omitempty"`
}

// Empty reports whether the dataset holds no rows.
func (d *Dataset) Empty() bool {
	return d == nil || len(d.Rows) == 0
}

// CSV renders the dataset as RFC 4180 CSV with a header row. This is the
// representation handed to the sandbox and quoted into planning prompts.
func (d *Dataset) CSV() string {
	if d == nil {
		return ""
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(d.Columns)
	_ = w.WriteAll(d.Rows)
	w.Flush()
	return buf.String()
}

// TurnSummary is one persisted memory entry for a prior turn.
type TurnSummary struct {
	Turn     int       `json:"turn"`
	Summary  string    `json:"summary"`
	SQLQuery string    `json:"sql_query,omitempty"`
	At       time.Time `json:"at,omitempty"`
}

// SummarySnapshot is what the memory collaborator returns when a session is
// resumed: prior turn summaries, not raw history.
type SummarySnapshot struct {
	SessionID string            `json:"session_id"`
	Turns     int               `json:"turns"`
	Summaries []TurnSummary     `json:"summaries,omitempty"`
	History   []ConversationTurn `json:"history,omitempty"`
}

// ExecutionState is the single mutable record threaded through a run. It is
// created fresh per user turn, seeded from persisted memory, mutated
// exclusively by nodes, and handed to the memory collaborator at run end.
type ExecutionState struct {
	RunID     string `json:"run_id"`
	SessionID string `json:"session_id"`

	// TurnHistory is read-mostly; the graph appends the final response as an
	// assistant turn at the end of a run.
	TurnHistory []ConversationTurn `json:"turn_history"`
	Summaries   []TurnSummary      `json:"summaries,omitempty"`
	// TurnNum is the 1-based index of the user turn this run answers.
	TurnNum int `json:"turn_num"`

	Intent     *Intent    `json:"intent,omitempty"`
	RouteClass RouteClass `json:"route_class,omitempty"`
	Strategy   Strategy   `json:"strategy,omitempty"`

	WorkingDataset *Dataset `json:"working_dataset,omitempty"`
	// PendingQuery is the retrieval SQL proposed by orchestration and
	// consumed by data_retrieval. LastQuery is the query most recently
	// executed against the warehouse, tracked for memory persistence.
	PendingQuery string `json:"pending_query,omitempty"`
	LastQuery    string `json:"last_query,omitempty"`

	Plan       *Plan            `json:"plan,omitempty"`
	ExecResult *ExecutionResult `json:"exec_result,omitempty"`

	// RetryCounters maps retry kind to attempt count. Monotonically
	// incremented, never decremented within a run.
	RetryCounters map[RetryKind]int `json:"retry_counters"`

	FinalResponse string     `json:"final_response,omitempty"`
	RespondedBy   NodeID     `json:"responded_by,omitempty"`
	Reason        ReasonCode `json:"reason,omitempty"`

	Cancelled bool `json:"cancelled,omitempty"`

	// Hops counts routed transitions; the executor's hard ceiling reads it.
	Hops  int          `json:"hops"`
	Trace []Transition `json:"trace,omitempty"`

	StartedAt time.Time `json:"started_at"`
}

// NewExecutionState creates a clean state for one run.
func NewExecutionState(runID, sessionID string) *ExecutionState {
	return &ExecutionState{
		RunID:         runID,
		SessionID:     sessionID,
		RetryCounters: make(map[RetryKind]int),
		TurnNum:       1,
		StartedAt:     time.Now().UTC(),
	}
}

// AppendTurn appends a conversation turn stamped with the current time.
func (s *ExecutionState) AppendTurn(role Role, content string) {
	s.TurnHistory = append(s.TurnHistory, ConversationTurn{
		Role:    role,
		Content: content,
		At:      time.Now().UTC(),
	})
}

// LatestUserTurn returns the most recent user turn, if any.
func (s *ExecutionState) LatestUserTurn() (ConversationTurn, bool) {
	for i := len(s.TurnHistory) - 1; i >= 0; i-- {
		if s.TurnHistory[i].Role == RoleUser {
			return s.TurnHistory[i], true
		}
	}
	return ConversationTurn{}, false
}

// ReplaceDataset swaps in a new working dataset. The previous snapshot is
// discarded whole; partial updates are not representable.
func (s *ExecutionState) ReplaceDataset(d *Dataset) {
	s.WorkingDataset = d
}

// Retries returns the attempt count for a retry kind.
func (s *ExecutionState) Retries(kind RetryKind) int {
	if s.RetryCounters == nil {
		return 0
	}
	return s.RetryCounters[kind]
}

// BumpRetry increments and returns the attempt count for a retry kind.
func (s *ExecutionState) BumpRetry(kind RetryKind) int {
	if s.RetryCounters == nil {
		s.RetryCounters = make(map[RetryKind]int)
	}
	s.RetryCounters[kind]++
	return s.RetryCounters[kind]
}

// SetFinalResponse records the user-visible response. Exactly one terminal
// node may set it; a second write is a topology error.
func (s *ExecutionState) SetFinalResponse(node NodeID, text string) error {
	if s.FinalResponse != "" {
		return ErrResponseAlreadySet
	}
	s.FinalResponse = text
	s.RespondedBy = node
	return nil
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/quarrydata/quarry/pkg/domain"
)

// DefaultHistoryTurns is how many recent conversation turns LoadSummary
// carries alongside the summaries when seeding a run.
const DefaultHistoryTurns = 20

const memorySchema = `
CREATE TABLE IF NOT EXISTS chat_histories (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	turn_num   INTEGER NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_histories_session
	ON chat_histories(session_id, turn_num, id);

CREATE TABLE IF NOT EXISTS short_memories (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	turn_num   INTEGER NOT NULL,
	summary    TEXT NOT NULL,
	sql_query  TEXT,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_short_memories_session
	ON short_memories(session_id, turn_num, id);
`

// MemoryStore implements ports.MemoryStore over a SQLite database:
// chat_histories holds the raw transcript, short_memories the per-turn
// summaries with the SQL that produced each answer.
type MemoryStore struct {
	db           *sql.DB
	historyTurns int
}

// MemoryOption configures the MemoryStore.
type MemoryOption func(*MemoryStore)

// WithHistoryTurns overrides how many recent turns LoadSummary returns.
func WithHistoryTurns(n int) MemoryOption {
	return func(m *MemoryStore) {
		if n > 0 {
			m.historyTurns = n
		}
	}
}

// OpenMemory opens (and if needed initializes) the internal database at
// path.
func OpenMemory(path string, opts ...MemoryOption) (*MemoryStore, error) {
	db, err := open(path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open memory store: %w", err)
	}
	if _, err := db.Exec(memorySchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: init memory schema: %w", err)
	}
	m := &MemoryStore{db: db, historyTurns: DefaultHistoryTurns}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Close releases the underlying database handle.
func (m *MemoryStore) Close() error { return m.db.Close() }

// LoadSummary returns the session's turn summaries plus its most recent
// conversation turns. An unknown session yields an empty snapshot.
func (m *MemoryStore) LoadSummary(ctx context.Context, sessionID string) (*domain.SummarySnapshot, error) {
	snap := &domain.SummarySnapshot{SessionID: sessionID}

	rows, err := m.db.QueryContext(ctx, `
		SELECT turn_num, summary, COALESCE(sql_query, ''), created_at
		FROM short_memories
		WHERE session_id = ?
		ORDER BY turn_num, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load summaries for %s: %w", sessionID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var s domain.TurnSummary
		if err := rows.Scan(&s.Turn, &s.Summary, &s.SQLQuery, &s.At); err != nil {
			return nil, fmt.Errorf("sqlite: scan summary: %w", err)
		}
		snap.Summaries = append(snap.Summaries, s)
		if s.Turn > snap.Turns {
			snap.Turns = s.Turn
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: load summaries for %s: %w", sessionID, err)
	}

	var maxTurn sql.NullInt64
	if err := m.db.QueryRowContext(ctx,
		`SELECT MAX(turn_num) FROM chat_histories WHERE session_id = ?`, sessionID).
		Scan(&maxTurn); err != nil {
		return nil, fmt.Errorf("sqlite: count turns for %s: %w", sessionID, err)
	}
	if int(maxTurn.Int64) > snap.Turns {
		snap.Turns = int(maxTurn.Int64)
	}

	history, err := m.History(ctx, sessionID, m.historyTurns*2)
	if err != nil {
		return nil, err
	}
	snap.History = history
	return snap, nil
}

// Persist stores the finished run: this turn's user and assistant messages
// and the turn summary with the last executed query. The write is atomic.
func (m *MemoryStore) Persist(ctx context.Context, sessionID string, st *domain.ExecutionState) error {
	if st == nil {
		return fmt.Errorf("sqlite: persist: nil state")
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: persist run %s: %w", st.RunID, err)
	}
	defer func() { _ = tx.Rollback() }()

	insertTurn := func(t domain.ConversationTurn) error {
		at := t.At
		if at.IsZero() {
			at = time.Now().UTC()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chat_histories (session_id, turn_num, role, content, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			sessionID, st.TurnNum, string(t.Role), t.Content, at)
		return err
	}

	if user, ok := st.LatestUserTurn(); ok {
		if err := insertTurn(user); err != nil {
			return fmt.Errorf("sqlite: persist user turn: %w", err)
		}
	}
	if reply, ok := latestAssistantTurn(st); ok {
		if err := insertTurn(reply); err != nil {
			return fmt.Errorf("sqlite: persist assistant turn: %w", err)
		}
	}

	if summary, ok := summaryForTurn(st); ok {
		var query any
		if summary.SQLQuery != "" {
			query = summary.SQLQuery
		}
		at := summary.At
		if at.IsZero() {
			at = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO short_memories (session_id, turn_num, summary, sql_query, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			sessionID, summary.Turn, summary.Summary, query, at); err != nil {
			return fmt.Errorf("sqlite: persist summary: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: persist run %s: %w", st.RunID, err)
	}
	return nil
}

// History returns the session transcript oldest first. limit > 0 keeps only
// the most recent messages.
func (m *MemoryStore) History(ctx context.Context, sessionID string, limit int) ([]domain.ConversationTurn, error) {
	q := `
		SELECT role, content, created_at
		FROM chat_histories
		WHERE session_id = ?
		ORDER BY id`
	args := []any{sessionID}
	if limit > 0 {
		// Insert order is chronological, so the id tail is the recent end.
		q = `
			SELECT role, content, created_at FROM (
				SELECT id, role, content, created_at
				FROM chat_histories
				WHERE session_id = ?
				ORDER BY id DESC
				LIMIT ?
			) ORDER BY id`
		args = append(args, limit)
	}

	rows, err := m.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: history for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []domain.ConversationTurn
	for rows.Next() {
		var (
			role, content string
			at            time.Time
		)
		if err := rows.Scan(&role, &content, &at); err != nil {
			return nil, fmt.Errorf("sqlite: scan history: %w", err)
		}
		out = append(out, domain.ConversationTurn{Role: domain.Role(role), Content: content, At: at})
	}
	return out, rows.Err()
}

func latestAssistantTurn(st *domain.ExecutionState) (domain.ConversationTurn, bool) {
	for i := len(st.TurnHistory) - 1; i >= 0; i-- {
		if st.TurnHistory[i].Role == domain.RoleAssistant {
			return st.TurnHistory[i], true
		}
	}
	return domain.ConversationTurn{}, false
}

// summaryForTurn finds the summary the run recorded for its own turn.
func summaryForTurn(st *domain.ExecutionState) (domain.TurnSummary, bool) {
	for i := len(st.Summaries) - 1; i >= 0; i-- {
		if st.Summaries[i].Turn == st.TurnNum {
			return st.Summaries[i], true
		}
	}
	return domain.TurnSummary{}, false
}

package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/quarrydata/quarry/pkg/domain"
)

// DefaultHistoryTurns is how many recent conversation turns LoadSummary
// carries alongside the summaries when seeding a run.
const DefaultHistoryTurns = 20

// MemoryStore implements ports.MemoryStore in memory.
// Safe for concurrent use.
type MemoryStore struct {
	mu           sync.RWMutex
	sessions     map[string]*sessionMemory
	historyTurns int
}

type sessionMemory struct {
	turns     []domain.ConversationTurn
	summaries []domain.TurnSummary
	maxTurn   int
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

// NewMemoryStore creates a new in-memory session memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		sessions:     make(map[string]*sessionMemory),
		historyTurns: DefaultHistoryTurns,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LoadSummary returns the session's turn summaries plus its most recent
// conversation turns. An unknown session yields an empty snapshot.
func (m *MemoryStore) LoadSummary(ctx context.Context, sessionID string) (*domain.SummarySnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := &domain.SummarySnapshot{SessionID: sessionID}
	sess, ok := m.sessions[sessionID]
	if !ok {
		return snap, nil
	}

	snap.Turns = sess.maxTurn
	snap.Summaries = append(snap.Summaries, sess.summaries...)
	snap.History = tail(sess.turns, m.historyTurns*2)
	return snap, nil
}

// Persist stores the finished run: this turn's user and assistant messages
// and the turn summary with the last executed query.
func (m *MemoryStore) Persist(ctx context.Context, sessionID string, st *domain.ExecutionState) error {
	if st == nil {
		return fmt.Errorf("memory: persist: nil state")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		sess = &sessionMemory{}
		m.sessions[sessionID] = sess
	}

	if user, ok := st.LatestUserTurn(); ok {
		sess.turns = append(sess.turns, user)
	}
	for i := len(st.TurnHistory) - 1; i >= 0; i-- {
		if st.TurnHistory[i].Role == domain.RoleAssistant {
			sess.turns = append(sess.turns, st.TurnHistory[i])
			break
		}
	}
	for i := len(st.Summaries) - 1; i >= 0; i-- {
		if st.Summaries[i].Turn == st.TurnNum {
			sess.summaries = append(sess.summaries, st.Summaries[i])
			break
		}
	}
	if st.TurnNum > sess.maxTurn {
		sess.maxTurn = st.TurnNum
	}
	return nil
}

// History returns the session transcript oldest first. limit > 0 keeps only
// the most recent messages.
func (m *MemoryStore) History(ctx context.Context, sessionID string, limit int) ([]domain.ConversationTurn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return tail(sess.turns, limit), nil
}

// tail copies the last n turns, all of them when n <= 0.
func tail(turns []domain.ConversationTurn, n int) []domain.ConversationTurn {
	if n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return append([]domain.ConversationTurn(nil), turns...)
}

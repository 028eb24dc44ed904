package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quarrydata/quarry/pkg/domain"
	"github.com/quarrydata/quarry/pkg/ports"
)

// DefaultLockTTL bounds how long a crashed replica can hold a session's
// distributed lock.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager serializes turns per session and seeds each run's state from
// persisted memory. Lock entries are reference counted so idle sessions
// do not accumulate.
type Manager struct {
	memory ports.MemoryStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker      ports.DistributedLocker
	lockTTL     time.Duration
	logger      *slog.Logger
	newRunID    func() string
	maxQuestion int
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking for multi-replica deployments.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL overrides the distributed lock's expiry.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithRunIDFunc overrides run-ID allocation; tests use this for
// deterministic IDs.
func WithRunIDFunc(fn func() string) Option {
	return func(m *Manager) {
		if fn != nil {
			m.newRunID = fn
		}
	}
}

// WithMaxQuestionSize overrides the per-question input cap.
func WithMaxQuestionSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxQuestion = n
		}
	}
}

// NewManager creates a session manager over the given memory store.
func NewManager(memory ports.MemoryStore, opts ...Option) *Manager {
	m := &Manager{
		memory:      memory,
		locks:       make(map[string]*lockEntry),
		lockTTL:     DefaultLockTTL,
		logger:      slog.New(slog.DiscardHandler),
		newRunID:    uuid.NewString,
		maxQuestion: DefaultMaxQuestionSize,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller must Lock the entry.mu and call release(sessionID) after
// unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry at zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// WithLock executes fn while holding the session's lock. With a distributed
// locker configured, the in-process lock is taken first so a replica never
// competes against itself over the network.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("session %s: acquire distributed lock: %w", sessionID, err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("distributed lock release failed, ttl will expire it",
					"session_id", sessionID, "error", err)
			}
		}()
	}

	return fn(ctx)
}

// RunTurn seeds the session's next turn and hands the state to run, all
// under the session lock. The seeded state is returned even when run fails
// so callers can inspect how far the turn got.
func (m *Manager) RunTurn(ctx context.Context, sessionID, question string, run func(context.Context, *domain.ExecutionState) error) (*domain.ExecutionState, error) {
	var st *domain.ExecutionState
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		st, err = m.seed(ctx, sessionID, question)
		if err != nil {
			return err
		}
		return run(ctx, st)
	})
	return st, err
}

// seed builds the run state for the session's next turn: prior summaries
// and recent history from the memory store, a fresh run ID, and the new
// user question as the latest turn.
func (m *Manager) seed(ctx context.Context, sessionID, question string) (*domain.ExecutionState, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session: empty session id")
	}
	question, err := sanitizeQuestion(question, m.maxQuestion)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("session %s: empty question", sessionID)
	}

	snap, err := m.memory.LoadSummary(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session %s: load memory: %w", sessionID, err)
	}

	st := domain.NewExecutionState(m.newRunID(), sessionID)
	st.TurnHistory = append(st.TurnHistory, snap.History...)
	st.Summaries = append(st.Summaries, snap.Summaries...)
	st.TurnNum = snap.Turns + 1
	st.AppendTurn(domain.RoleUser, question)

	m.logger.Debug("turn seeded",
		"session_id", sessionID, "run_id", st.RunID, "turn", st.TurnNum,
		"prior_summaries", len(snap.Summaries))
	return st, nil
}

// History returns the session transcript from the memory store.
func (m *Manager) History(ctx context.Context, sessionID string, limit int) ([]domain.ConversationTurn, error) {
	return m.memory.History(ctx, sessionID, limit)
}

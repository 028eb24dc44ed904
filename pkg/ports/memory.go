package ports

import (
	"context"

	"github.com/quarrydata/quarry/pkg/domain"
)

// MemoryStore is the session-memory collaborator. The graph never holds
// memory as ambient state: runs are seeded from LoadSummary and handed back
// through Persist at run end.
type MemoryStore interface {
	// LoadSummary returns the persisted summaries for a session. An unknown
	// session yields an empty snapshot, not an error.
	LoadSummary(ctx context.Context, sessionID string) (*domain.SummarySnapshot, error)

	// Persist stores the finished run: the user turn, the final response,
	// and the turn summary with the last executed query.
	Persist(ctx context.Context, sessionID string, st *domain.ExecutionState) error

	// History returns the most recent conversation turns, oldest first.
	// limit <= 0 means no limit.
	History(ctx context.Context, sessionID string, limit int) ([]domain.ConversationTurn, error)
}

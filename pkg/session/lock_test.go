package session

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/quarrydata/quarry/pkg/domain"
)

type nopMemory struct{}

func (nopMemory) LoadSummary(_ context.Context, sessionID string) (*domain.SummarySnapshot, error) {
	return &domain.SummarySnapshot{SessionID: sessionID}, nil
}

func (nopMemory) Persist(context.Context, string, *domain.ExecutionState) error { return nil }

func (nopMemory) History(context.Context, string, int) ([]domain.ConversationTurn, error) {
	return nil, nil
}

func TestLockLifecycle(t *testing.T) {
	mgr := NewManager(nopMemory{})
	ctx := context.Background()
	count := 10000

	for i := 0; i < count; i++ {
		sid := fmt.Sprintf("session-%d", i)
		_ = mgr.WithLock(ctx, sid, func(context.Context) error { return nil })
	}

	if leaked := len(mgr.locks); leaked != 0 {
		t.Errorf("lock map leaked %d entries after %d sessions", leaked, count)
	}
}

func TestLockLifecycleUnderContention(t *testing.T) {
	mgr := NewManager(nopMemory{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sid := fmt.Sprintf("session-%d", n%5)
			for j := 0; j < 20; j++ {
				_ = mgr.WithLock(ctx, sid, func(context.Context) error { return nil })
			}
		}(i)
	}
	wg.Wait()

	if leaked := len(mgr.locks); leaked != 0 {
		t.Errorf("lock map leaked %d entries after contended use", leaked)
	}
}

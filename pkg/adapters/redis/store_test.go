package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrydata/quarry/pkg/adapters/redis"
	"github.com/quarrydata/quarry/pkg/domain"
	"github.com/quarrydata/quarry/pkg/ports"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func checkpoint(runID string, seq int) *domain.Checkpoint {
	st := domain.NewExecutionState(runID, "sess")
	st.AppendTurn(domain.RoleUser, "revenue last quarter?")
	return &domain.Checkpoint{
		RunID:     runID,
		SessionID: "sess",
		Seq:       seq,
		Node:      domain.NodeIntentComprehension,
		Outcome:   domain.OutcomeIntentResolved,
		State:     st,
		At:        time.Now().UTC(),
	}
}

func TestCheckpointStoreContract(t *testing.T) {
	_, client := newTestRedis(t)
	ports.RunCheckpointStoreContract(t, redis.NewFromClient(client))
}

func TestStoreTTLExpiration(t *testing.T) {
	mr, client := newTestRedis(t)
	store := redis.NewFromClient(client, redis.WithTTL(100*time.Millisecond))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, checkpoint("run-ttl", 1)))

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	assert.Contains(t, runs, "run-ttl")

	// Expire the key inside miniredis, then let real time pass the index
	// score so the lazy prune kicks in.
	mr.FastForward(200 * time.Millisecond)
	time.Sleep(150 * time.Millisecond)

	_, err = store.Load(ctx, "run-ttl")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)

	runs, err = store.ListRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestStorePrefix(t *testing.T) {
	mr, client := newTestRedis(t)
	store := redis.NewFromClient(client, redis.WithPrefix("custom:app:"))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, checkpoint("my-run", 1)))

	assert.True(t, mr.Exists("custom:app:my-run"), "run key should carry the custom prefix")
	assert.True(t, mr.Exists("custom:app:index"), "index should carry the custom prefix")

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	assert.Contains(t, runs, "my-run")
}

func TestStoreSaveReplacesCheckpoint(t *testing.T) {
	_, client := newTestRedis(t)
	store := redis.NewFromClient(client)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, checkpoint("run-seq", 1)))
	require.NoError(t, store.Save(ctx, checkpoint("run-seq", 5)))

	cp, err := store.Load(ctx, "run-seq")
	require.NoError(t, err)
	assert.Equal(t, 5, cp.Seq)

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-seq"}, runs, "re-saving must not duplicate the index entry")
}

package tests

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrydata/quarry"
	redisadapter "github.com/quarrydata/quarry/pkg/adapters/redis"
	"github.com/quarrydata/quarry/pkg/domain"
)

// TestRedisCheckpointsSurviveTheEngine runs a turn against a redis-backed
// checkpoint store and reads the trail back through a second engine sharing
// the store, the way a sibling replica would.
func TestRedisCheckpointsSurviveTheEngine(t *testing.T) {
	srv := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := redisadapter.NewFromClient(client)
	locker := redisadapter.NewLocker(client, "quarry:lock:")

	eng := newEngine(t, conversationalHTTPScript(),
		quarry.WithCheckpointStore(store),
		quarry.WithDistributedLocker(locker),
	)

	st, err := eng.Ask(context.Background(), "s1", "what can you do?")
	require.NoError(t, err)

	// A second engine on the same store sees the run.
	other, err := quarry.New(
		quarry.WithModel(conversationalHTTPScript()),
		quarry.WithCheckpointStore(redisadapter.NewFromClient(client)),
	)
	require.NoError(t, err)

	runs, err := other.ListRuns(context.Background())
	require.NoError(t, err)
	assert.Contains(t, runs, st.RunID)

	cp, err := other.LoadRun(context.Background(), st.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.NodeSummarization, cp.Node)
	assert.Equal(t, len(st.Trace), cp.Seq)
	require.NotNil(t, cp.State)
	assert.Equal(t, st.FinalResponse, cp.State.FinalResponse)
}

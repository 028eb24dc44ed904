// Package tests runs the assembled engine end to end: real router and
// executor, real SQLite warehouse and memory store, the real Yaegi sandbox,
// and a scripted model standing in for the LLM.
package tests

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/quarrydata/quarry"
	"github.com/quarrydata/quarry/pkg/adapters/sqlite"
	"github.com/quarrydata/quarry/pkg/adapters/yaegi"
	"github.com/quarrydata/quarry/pkg/ports"
)

// scriptedModel replays canned structured outputs keyed by node name. A
// queue entry wins over the static reply and is consumed, so retry loops can
// see different plans per attempt.
type scriptedModel struct {
	replies map[string]string
	queues  map[string][]string
	texts   map[string]string
	calls   []string
}

func (m *scriptedModel) Invoke(_ context.Context, req ports.InvokeRequest) error {
	m.calls = append(m.calls, req.Name)

	raw, ok := m.nextReply(req.Name)
	if !ok {
		return fmt.Errorf("no scripted reply for %q", req.Name)
	}
	return req.Contract.DecodeJSON(raw, req.Out)
}

func (m *scriptedModel) Complete(_ context.Context, req ports.CompleteRequest) (string, error) {
	m.calls = append(m.calls, req.Name)
	text, ok := m.texts[req.Name]
	if !ok {
		return "", fmt.Errorf("no scripted text for %q", req.Name)
	}
	return text, nil
}

func (m *scriptedModel) nextReply(name string) (string, bool) {
	if q := m.queues[name]; len(q) > 0 {
		m.queues[name] = q[1:]
		return q[0], true
	}
	raw, ok := m.replies[name]
	return raw, ok
}

func (m *scriptedModel) called(name string) int {
	n := 0
	for _, c := range m.calls {
		if c == name {
			n++
		}
	}
	return n
}

const warehouseSeed = `
CREATE TABLE revenue_by_quarter (
	quarter TEXT NOT NULL,
	region  TEXT NOT NULL,
	amount  INTEGER NOT NULL
);
INSERT INTO revenue_by_quarter (quarter, region, amount) VALUES
	('2025-Q1', 'EMEA', 1200),
	('2025-Q1', 'AMER', 980),
	('2025-Q2', 'EMEA', 1500),
	('2025-Q2', 'APAC', 730);
`

// newWarehouse opens a seeded throwaway warehouse.
func newWarehouse(t *testing.T) *sqlite.Warehouse {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "warehouse.db"))
	require.NoError(t, err)
	_, err = db.Exec(warehouseSeed)
	require.NoError(t, err)

	w := sqlite.NewWarehouse(db)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

// newEngine assembles an engine on real adapters: the seeded warehouse, a
// file-backed memory store, and the Yaegi sandbox.
func newEngine(t *testing.T, model ports.ModelClient, opts ...quarry.Option) *quarry.Engine {
	t.Helper()

	mem, err := sqlite.OpenMemory(filepath.Join(t.TempDir(), "memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mem.Close() })

	base := []quarry.Option{
		quarry.WithModel(model),
		quarry.WithWarehouse(newWarehouse(t)),
		quarry.WithMemoryStore(mem),
		quarry.WithSandbox(yaegi.New()),
	}
	eng, err := quarry.New(append(base, opts...)...)
	require.NoError(t, err)
	return eng
}

// Package sqlite provides the SQLite-backed collaborators: the external
// Warehouse the graph queries for business data, and the MemoryStore that
// persists session history and turn summaries.
//
// Both ride modernc.org/sqlite (pure Go, no cgo) through database/sql.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/quarrydata/quarry/pkg/domain"
	"github.com/quarrydata/quarry/pkg/ports"
)

// DefaultMaxRows caps the rows a single retrieval may snapshot.
const DefaultMaxRows = 10000

const sampleValues = 3

// Warehouse implements ports.Warehouse over a SQLite database. The graph
// only ever reads from it.
type Warehouse struct {
	db      *sql.DB
	maxRows int
}

// WarehouseOption configures the Warehouse.
type WarehouseOption func(*Warehouse)

// WithMaxRows overrides the retrieval row cap.
func WithMaxRows(n int) WarehouseOption {
	return func(w *Warehouse) {
		if n > 0 {
			w.maxRows = n
		}
	}
}

// OpenWarehouse opens the external database at path.
func OpenWarehouse(path string, opts ...WarehouseOption) (*Warehouse, error) {
	db, err := open(path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open warehouse: %w", err)
	}
	w := &Warehouse{db: db, maxRows: DefaultMaxRows}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// NewWarehouse wraps an already-open database, typically seeded by tests.
func NewWarehouse(db *sql.DB, opts ...WarehouseOption) *Warehouse {
	w := &Warehouse{db: db, maxRows: DefaultMaxRows}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Close releases the underlying database handle.
func (w *Warehouse) Close() error { return w.db.Close() }

// Query runs a read-only query and snapshots the result. An empty result is
// an empty dataset, not an error; a failing query is a *ports.DataError.
func (w *Warehouse) Query(ctx context.Context, query string) (*domain.Dataset, error) {
	rows, err := w.db.QueryContext(ctx, query)
	if err != nil {
		return nil, queryFault(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, queryFault(err)
	}

	var data [][]string
	for rows.Next() && len(data) < w.maxRows {
		cells := make([]sql.NullString, len(cols))
		scan := make([]any, len(cols))
		for i := range cells {
			scan[i] = &cells[i]
		}
		if err := rows.Scan(scan...); err != nil {
			return nil, queryFault(err)
		}
		rendered := make([]string, len(cols))
		for i, c := range cells {
			rendered[i] = c.String
		}
		data = append(data, rendered)
	}
	if err := rows.Err(); err != nil {
		return nil, queryFault(err)
	}

	return &domain.Dataset{
		Columns:     cols,
		Rows:        data,
		Query:       query,
		RetrievedAt: time.Now().UTC(),
	}, nil
}

// Snapshot inspects the schema: every table with its columns, row count,
// a few distinct sample values per column, and the observed bounds of
// time-typed columns.
func (w *Warehouse) Snapshot(ctx context.Context) (*ports.WarehouseSnapshot, error) {
	names, err := w.tableNames(ctx)
	if err != nil {
		return nil, err
	}

	snap := &ports.WarehouseSnapshot{Tables: make([]ports.TableInfo, 0, len(names))}
	for _, name := range names {
		info, err := w.describeTable(ctx, name)
		if err != nil {
			return nil, err
		}
		snap.Tables = append(snap.Tables, info)
	}
	return snap, nil
}

func (w *Warehouse) tableNames(ctx context.Context) ([]string, error) {
	rows, err := w.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, queryFault(err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, queryFault(err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (w *Warehouse) describeTable(ctx context.Context, table string) (ports.TableInfo, error) {
	info := ports.TableInfo{Name: table}

	if err := w.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+quoteIdent(table)).Scan(&info.RowCount); err != nil {
		return info, queryFault(err)
	}

	rows, err := w.db.QueryContext(ctx, "PRAGMA table_info("+quoteIdent(table)+")")
	if err != nil {
		return info, queryFault(err)
	}
	defer rows.Close()

	type column struct {
		name  string
		ctype string
	}
	var columns []column
	for rows.Next() {
		var (
			cid, notnull, pk int
			name, ctype      string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return info, queryFault(err)
		}
		columns = append(columns, column{name: name, ctype: ctype})
	}
	if err := rows.Err(); err != nil {
		return info, queryFault(err)
	}

	for _, col := range columns {
		ci := ports.ColumnInfo{Name: col.name, Type: col.ctype}
		if isTimeType(col.ctype) {
			// Earliest/latest bounds matter more than samples for time
			// columns; the first one found is treated as the table's
			// primary time column.
			if info.Earliest == "" {
				earliest, latest, err := w.timeBounds(ctx, table, col.name)
				if err != nil {
					return info, err
				}
				info.Earliest, info.Latest = earliest, latest
			}
		} else {
			samples, err := w.samples(ctx, table, col.name)
			if err != nil {
				return info, err
			}
			ci.Samples = samples
		}
		info.Columns = append(info.Columns, ci)
	}
	return info, nil
}

func (w *Warehouse) samples(ctx context.Context, table, column string) ([]string, error) {
	q := fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL ORDER BY 1 LIMIT %d",
		quoteIdent(column), quoteIdent(table), quoteIdent(column), sampleValues)
	rows, err := w.db.QueryContext(ctx, q)
	if err != nil {
		return nil, queryFault(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, queryFault(err)
		}
		out = append(out, v.String)
	}
	return out, rows.Err()
}

func (w *Warehouse) timeBounds(ctx context.Context, table, column string) (string, string, error) {
	q := fmt.Sprintf("SELECT MIN(%s), MAX(%s) FROM %s WHERE %s IS NOT NULL",
		quoteIdent(column), quoteIdent(column), quoteIdent(table), quoteIdent(column))
	var earliest, latest sql.NullString
	if err := w.db.QueryRowContext(ctx, q).Scan(&earliest, &latest); err != nil {
		return "", "", queryFault(err)
	}
	return earliest.String, latest.String, nil
}

func isTimeType(ctype string) bool {
	u := strings.ToUpper(ctype)
	return strings.Contains(u, "DATE") || strings.Contains(u, "TIME")
}

// quoteIdent wraps an identifier in double quotes, escaping embedded ones.
// Identifiers here come from sqlite_master and PRAGMA output, never from
// the model.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// queryFault folds driver errors into the recoverable DataError taxonomy.
func queryFault(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &ports.DataError{Kind: ports.DataConnectionFailed, Err: err}
	}
	return &ports.DataError{Kind: ports.DataQueryFailed, Err: err}
}

// open applies the connection settings both stores share. SQLite allows one
// writer; a single pooled connection avoids lock contention and keeps
// in-memory databases coherent.
func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

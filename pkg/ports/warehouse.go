package ports

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/quarrydata/quarry/pkg/domain"
)

// Warehouse is the external data store, read-only from the graph's
// perspective. Query failures are reported as *DataError so nodes can fold
// them into their outcome vocabulary.
type Warehouse interface {
	// Query runs a read-only query and returns a complete snapshot.
	Query(ctx context.Context, query string) (*domain.Dataset, error)

	// Snapshot describes the warehouse schema: tables, columns, sample
	// values and observed time ranges. Orchestration and planning prompts
	// quote it so the model writes queries against real structure.
	Snapshot(ctx context.Context) (*WarehouseSnapshot, error)
}

// WarehouseSnapshot is a point-in-time description of the warehouse schema.
type WarehouseSnapshot struct {
	Tables []TableInfo `json:"tables"`
}

// TableInfo describes one table.
type TableInfo struct {
	Name     string       `json:"name"`
	RowCount int64        `json:"row_count"`
	Columns  []ColumnInfo `json:"columns"`
	// Earliest/Latest are the observed bounds of the table's primary time
	// column, already rendered; empty when the table has none.
	Earliest string `json:"earliest,omitempty"`
	Latest   string `json:"latest,omitempty"`
}

// ColumnInfo describes one column with a few sample values.
type ColumnInfo struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Samples []string `json:"samples,omitempty"`
}

// Describe renders the snapshot as prompt-ready text.
func (s *WarehouseSnapshot) Describe() string {
	if s == nil || len(s.Tables) == 0 {
		return "(no tables)"
	}
	var b strings.Builder
	for _, t := range s.Tables {
		fmt.Fprintf(&b, "table %s (%d rows", t.Name, t.RowCount)
		if t.Earliest != "" {
			fmt.Fprintf(&b, ", %s .. %s", t.Earliest, t.Latest)
		}
		b.WriteString(")\n")
		for _, c := range t.Columns {
			fmt.Fprintf(&b, "  %s %s", c.Name, c.Type)
			if len(c.Samples) > 0 {
				fmt.Fprintf(&b, "  e.g. %s", strings.Join(c.Samples, ", "))
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// DataErrorKind classifies warehouse faults.
type DataErrorKind string

const (
	DataNotFound         DataErrorKind = "not_found"
	DataQueryFailed      DataErrorKind = "query_failed"
	DataConnectionFailed DataErrorKind = "connection_failed"
)

// DataError is a recoverable collaborator fault from the warehouse.
type DataError struct {
	Kind DataErrorKind
	Err  error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("warehouse %s: %v", e.Kind, e.Err)
}

func (e *DataError) Unwrap() error { return e.Err }

// AsDataError unwraps err into a *DataError when it is one.
func AsDataError(err error) (*DataError, bool) {
	var de *DataError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/quarrydata/quarry/pkg/domain"
	"github.com/quarrydata/quarry/pkg/ports"
)

// Mask replaces every PII match in persisted text.
const Mask = "***"

// DefaultPIIPatterns cover the usual offenders in analytics transcripts:
// email addresses, card-like digit runs and US SSNs.
func DefaultPIIPatterns() []string {
	return []string{
		`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`,
		`\b\d(?:[ -]?\d){12,18}\b`,
		`\b\d{3}-\d{2}-\d{4}\b`,
	}
}

type piiMiddleware struct {
	next     ports.CheckpointStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware masks pattern matches in the checkpoint's free-text
// fields before the checkpoint is stored. The in-memory state the run keeps
// using is untouched; only the persisted copy is masked. Invalid patterns
// panic, matching how misconfigured encryption fails.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.CheckpointStore) ports.CheckpointStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Save(ctx context.Context, cp *domain.Checkpoint) error {
	if cp == nil || cp.State == nil {
		return m.next.Save(ctx, cp)
	}

	cloned, err := cloneCheckpoint(cp)
	if err != nil {
		return fmt.Errorf("middleware: clone checkpoint for masking: %w", err)
	}
	m.maskState(cloned.State)
	return m.next.Save(ctx, cloned)
}

func (m *piiMiddleware) Load(ctx context.Context, runID string) (*domain.Checkpoint, error) {
	return m.next.Load(ctx, runID)
}

func (m *piiMiddleware) Delete(ctx context.Context, runID string) error {
	return m.next.Delete(ctx, runID)
}

func (m *piiMiddleware) ListRuns(ctx context.Context) ([]string, error) {
	return m.next.ListRuns(ctx)
}

// maskState scrubs every field that can carry user-provided or user-derived
// text. Structural fields (IDs, counters, outcomes) are left alone.
func (m *piiMiddleware) maskState(st *domain.ExecutionState) {
	for i := range st.TurnHistory {
		st.TurnHistory[i].Content = m.mask(st.TurnHistory[i].Content)
	}
	for i := range st.Summaries {
		st.Summaries[i].Summary = m.mask(st.Summaries[i].Summary)
		st.Summaries[i].SQLQuery = m.mask(st.Summaries[i].SQLQuery)
	}
	if st.Intent != nil {
		st.Intent.Question = m.mask(st.Intent.Question)
		st.Intent.Context = m.mask(st.Intent.Context)
		st.Intent.Rationale = m.mask(st.Intent.Rationale)
	}
	st.PendingQuery = m.mask(st.PendingQuery)
	st.LastQuery = m.mask(st.LastQuery)
	st.FinalResponse = m.mask(st.FinalResponse)

	if d := st.WorkingDataset; d != nil {
		d.Query = m.mask(d.Query)
		for i := range d.Rows {
			for j := range d.Rows[i] {
				d.Rows[i][j] = m.mask(d.Rows[i][j])
			}
		}
	}
	if st.ExecResult != nil {
		st.ExecResult.Output = m.mask(st.ExecResult.Output)
	}
}

func (m *piiMiddleware) mask(s string) string {
	for _, p := range m.patterns {
		s = p.ReplaceAllString(s, Mask)
	}
	return s
}

// cloneCheckpoint deep-copies through serialization; checkpoints are JSON
// round-trippable by construction.
func cloneCheckpoint(cp *domain.Checkpoint) (*domain.Checkpoint, error) {
	raw, err := json.Marshal(cp)
	if err != nil {
		return nil, err
	}
	out := new(domain.Checkpoint)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

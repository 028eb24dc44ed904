package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/quarrydata/quarry/pkg/domain"
	"github.com/quarrydata/quarry/pkg/ports"
	"github.com/quarrydata/quarry/pkg/schema"
)

// Summarization condenses the finished turn into session memory and hands
// the state to the memory collaborator. It is the last node of every
// answered run; nothing after it can repair a failure, so every collaborator
// fault here degrades and the run still persists what it can.
type Summarization struct {
	base
	memory      ports.MemoryStore
	dataTimeout time.Duration
}

func NewSummarization(cfg Config) *Summarization {
	cfg = cfg.withDefaults()
	return &Summarization{base: cfg.base(), memory: cfg.Memory, dataTimeout: cfg.WarehouseTimeout}
}

func (n *Summarization) ID() domain.NodeID { return domain.NodeSummarization }

func (n *Summarization) Outcomes() []domain.Outcome {
	return []domain.Outcome{domain.OutcomePersisted}
}

func (n *Summarization) Execute(ctx context.Context, st *domain.ExecutionState) (domain.Outcome, error) {
	var summary string
	var out schema.Summarization
	user := summarizePrompt(st)
	if err := n.invoke(ctx, n.ID(), user, schema.SummarizationContract, &out); err != nil {
		if !recoverable(err) {
			return "", err
		}
		n.log.Warn("summarization degraded to truncated turn", "run_id", st.RunID, "error", err)
		summary = fallbackSummary(st)
	} else {
		summary = out.Summary
	}

	st.Summaries = append(st.Summaries, domain.TurnSummary{
		Turn:     st.TurnNum,
		Summary:  summary,
		SQLQuery: st.LastQuery,
		At:       time.Now().UTC(),
	})

	if n.memory != nil {
		// Persist is a data-store call like any other and gets the same
		// per-call timeout; a hung store must not stall a finished run.
		pctx, cancel := context.WithTimeout(ctx, n.dataTimeout)
		defer cancel()
		if err := n.memory.Persist(pctx, st.SessionID, st); err != nil {
			// A dead memory store costs continuity, not this run's answer.
			n.log.Warn("memory persist failed", "run_id", st.RunID, "session_id", st.SessionID, "error", err)
		}
	}
	return domain.OutcomePersisted, nil
}

func summarizePrompt(st *domain.ExecutionState) string {
	p := fmt.Sprintf("User asked:\n%s\n\nAssistant answered:\n%s", questionOf(st), st.FinalResponse)
	if st.LastQuery != "" {
		p += fmt.Sprintf("\n\nSQL used:\n%s", st.LastQuery)
	}
	return p
}

func fallbackSummary(st *domain.ExecutionState) string {
	return fmt.Sprintf("turn %d: asked %q; answered %q",
		st.TurnNum, truncate(questionOf(st), 120), truncate(st.FinalResponse, 160))
}

// Package nodes implements the fourteen execution nodes of the analysis
// graph. Each node consumes and mutates the shared ExecutionState and
// returns one outcome from its declared vocabulary; the router interprets
// outcomes, nodes never call each other.
//
// Collaborator faults (model timeouts, warehouse outages) are absorbed here
// into each node's own outcomes so they never cross the executor boundary.
// Structured outputs that violate their schema contract are the exception:
// those are configuration-class failures and Execute returns them as errors.
package nodes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/quarrydata/quarry/pkg/domain"
	"github.com/quarrydata/quarry/pkg/ports"
	"github.com/quarrydata/quarry/pkg/prompts"
	"github.com/quarrydata/quarry/pkg/schema"
)

// Default bounds applied when Config leaves them zero.
const (
	DefaultMaxCorrection    = 2
	DefaultMaxReflection    = 2
	DefaultModelTimeout     = 60 * time.Second
	DefaultWarehouseTimeout = 15 * time.Second
	DefaultSandboxWallClock = 30 * time.Second
	DefaultSandboxOutputCap = 64 * 1024
)

// Config wires the collaborators and bounds shared by the node set.
type Config struct {
	Model     ports.ModelClient
	Warehouse ports.Warehouse
	Sandbox   ports.Sandbox
	Memory    ports.MemoryStore
	Prompts   *prompts.Library
	Logger    *slog.Logger

	// MaxCorrection and MaxReflection bound the two retry nodes.
	MaxCorrection int
	MaxReflection int

	// Limits bound each sandbox invocation.
	Limits ports.ResourceLimits

	// ModelTimeout and WarehouseTimeout apply per collaborator call,
	// independently of the sandbox wall clock and the executor's hop
	// ceiling.
	ModelTimeout     time.Duration
	WarehouseTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.Prompts == nil {
		c.Prompts = prompts.Builtin()
	}
	if c.MaxCorrection <= 0 {
		c.MaxCorrection = DefaultMaxCorrection
	}
	if c.MaxReflection <= 0 {
		c.MaxReflection = DefaultMaxReflection
	}
	if c.ModelTimeout <= 0 {
		c.ModelTimeout = DefaultModelTimeout
	}
	if c.WarehouseTimeout <= 0 {
		c.WarehouseTimeout = DefaultWarehouseTimeout
	}
	if c.Limits.WallClock <= 0 {
		c.Limits.WallClock = DefaultSandboxWallClock
	}
	if c.Limits.MaxOutputBytes <= 0 {
		c.Limits.MaxOutputBytes = DefaultSandboxOutputCap
	}
	return c
}

func (c Config) base() base {
	return base{model: c.Model, prompts: c.Prompts, log: c.Logger, timeout: c.ModelTimeout}
}

// All constructs the complete node set in topology order, ready to hand to
// the graph builder.
func All(cfg Config) []domain.Node {
	cfg = cfg.withDefaults()
	return []domain.Node{
		NewIntentComprehension(cfg),
		NewRequestClassification(cfg),
		NewAnalysisOrchestration(cfg),
		NewDataRetrieval(cfg),
		NewDataUnavailability(cfg),
		NewComputationPlanning(cfg),
		NewSandboxEnvironment(cfg),
		NewObservation(cfg),
		NewSelfCorrection(cfg),
		NewSelfReflection(cfg),
		NewAnalysisResponse(cfg),
		NewDirectResponse(cfg),
		NewPuntResponse(cfg),
		NewSummarization(cfg),
	}
}

// base carries what every model-facing node shares.
type base struct {
	model   ports.ModelClient
	prompts *prompts.Library
	log     *slog.Logger
	timeout time.Duration
}

// invoke runs one structured model call under the node's prompt and per-call
// timeout.
func (b base) invoke(ctx context.Context, id domain.NodeID, user string, contract *schema.Contract, out any) error {
	p, err := b.prompts.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", id, err)
	}
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	return b.model.Invoke(ctx, ports.InvokeRequest{
		Name:        string(id),
		System:      p.Text,
		User:        user,
		Temperature: p.Temperature,
		Contract:    contract,
		Out:         out,
	})
}

// complete runs one free-text model call under the node's prompt.
func (b base) complete(ctx context.Context, id domain.NodeID, user string) (string, error) {
	p, err := b.prompts.Get(ctx, id)
	if err != nil {
		return "", fmt.Errorf("%s: %w", id, err)
	}
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	return b.model.Complete(ctx, ports.CompleteRequest{
		Name:        string(id),
		System:      p.Text,
		User:        user,
		Temperature: p.Temperature,
	})
}

// recoverable reports whether err may be absorbed into the node's outcome
// vocabulary. Only transport-level collaborator faults qualify; schema
// violations and anything unexpected are fatal to the run.
func recoverable(err error) bool {
	var viol *schema.ViolationError
	if errors.As(err, &viol) {
		return false
	}
	return ports.IsModelFault(err)
}

// questionOf returns the best available phrasing of what the user asked.
func questionOf(st *domain.ExecutionState) string {
	if st.Intent != nil && st.Intent.Question != "" {
		return st.Intent.Question
	}
	if turn, ok := st.LatestUserTurn(); ok {
		return turn.Content
	}
	return "your question"
}

// renderHistory renders turns as a numbered transcript for prompts. Indices
// match TurnHistory so the model can reference turns by number.
func renderHistory(turns []domain.ConversationTurn) string {
	if len(turns) == 0 {
		return "(no prior turns)"
	}
	var b strings.Builder
	for i, t := range turns {
		fmt.Fprintf(&b, "[%d] %s: %s\n", i, t.Role, t.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderSummaries renders persisted turn summaries for prompts.
func renderSummaries(sums []domain.TurnSummary) string {
	if len(sums) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, s := range sums {
		fmt.Fprintf(&b, "turn %d: %s\n", s.Turn, s.Summary)
	}
	return strings.TrimRight(b.String(), "\n")
}

// datasetDigest renders the working dataset for prompts: shape line plus a
// CSV head capped at maxRows data rows.
func datasetDigest(d *domain.Dataset, maxRows int) string {
	if d.Empty() {
		return "(no working dataset)"
	}
	head := d
	if maxRows > 0 && len(d.Rows) > maxRows {
		head = &domain.Dataset{Columns: d.Columns, Rows: d.Rows[:maxRows]}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d columns x %d rows", len(d.Columns), len(d.Rows))
	if d.Query != "" {
		fmt.Fprintf(&b, " (from: %s)", d.Query)
	}
	if len(head.Rows) < len(d.Rows) {
		fmt.Fprintf(&b, ", first %d shown", len(head.Rows))
	}
	b.WriteString("\n")
	b.WriteString(strings.TrimRight(head.CSV(), "\n"))
	return b.String()
}

// renderPlan renders a plan for prompts: descriptions and code per step.
func renderPlan(p *domain.Plan) string {
	if p.Empty() {
		return "(empty plan)"
	}
	var b strings.Builder
	for _, s := range p.Steps {
		fmt.Fprintf(&b, "step %d: %s\n%s\n", s.Number, s.Description, s.Code)
	}
	return strings.TrimRight(b.String(), "\n")
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

package quarry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/quarrydata/quarry/internal/runtime"
	memadapter "github.com/quarrydata/quarry/pkg/adapters/memory"
	"github.com/quarrydata/quarry/pkg/adapters/yaegi"
	"github.com/quarrydata/quarry/pkg/domain"
	"github.com/quarrydata/quarry/pkg/graph"
	"github.com/quarrydata/quarry/pkg/nodes"
	"github.com/quarrydata/quarry/pkg/ports"
	"github.com/quarrydata/quarry/pkg/prompts"
	"github.com/quarrydata/quarry/pkg/session"
)

// Version is stamped at build time via -ldflags; the default marks dev
// builds.
var Version = "0.0.0-dev"

// Engine is the high-level entry point for the quarry library. It wires the
// node set, the routing table, the executor and the session manager around
// the collaborators supplied through options, and answers one question per
// Ask call.
type Engine struct {
	graph       *graph.Graph
	executor    *runtime.Executor
	sessions    *session.Manager
	memory      ports.MemoryStore
	checkpoints ports.CheckpointStore

	nodeCfg     nodes.Config
	entry       domain.NodeID
	routes      []graph.Route
	observer    ports.Observer
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	maxHops     int
	locker      ports.DistributedLocker
	maxQuestion int
}

// Option configures the Engine.
type Option func(*Engine)

// WithModel injects the language-model collaborator. Required.
func WithModel(m ports.ModelClient) Option {
	return func(e *Engine) { e.nodeCfg.Model = m }
}

// WithWarehouse injects the external data store. Without one, analytical
// runs that need retrieval end in data_unavailability.
func WithWarehouse(w ports.Warehouse) Option {
	return func(e *Engine) { e.nodeCfg.Warehouse = w }
}

// WithSandbox replaces the default yaegi sandbox.
func WithSandbox(s ports.Sandbox) Option {
	return func(e *Engine) { e.nodeCfg.Sandbox = s }
}

// WithMemoryStore replaces the default in-process session memory.
func WithMemoryStore(m ports.MemoryStore) Option {
	return func(e *Engine) { e.memory = m }
}

// WithCheckpointStore replaces the default in-process checkpoint store.
func WithCheckpointStore(s ports.CheckpointStore) Option {
	return func(e *Engine) { e.checkpoints = s }
}

// WithObserver attaches a run observer; the engine works identically
// without one.
func WithObserver(o ports.Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithLifecycleHooks registers executor observability hooks.
func WithLifecycleHooks(h domain.LifecycleHooks) Option {
	return func(e *Engine) { e.hooks = h }
}

// WithLogger sets the structured logger. Libraries default to a discard
// logger; binaries pass the configured one.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithPromptLibrary overrides the compiled-in prompt library.
func WithPromptLibrary(lib *prompts.Library) Option {
	return func(e *Engine) { e.nodeCfg.Prompts = lib }
}

// WithRetryBounds sets the self-correction and self-reflection attempt
// limits. The same bounds guard the router entry and the retry nodes.
func WithRetryBounds(correction, reflection int) Option {
	return func(e *Engine) {
		e.nodeCfg.MaxCorrection = correction
		e.nodeCfg.MaxReflection = reflection
	}
}

// WithMaxHops sets the hard ceiling on routed transitions per run.
func WithMaxHops(n int) Option {
	return func(e *Engine) { e.maxHops = n }
}

// WithSandboxLimits bounds each sandbox invocation.
func WithSandboxLimits(limits ports.ResourceLimits) Option {
	return func(e *Engine) { e.nodeCfg.Limits = limits }
}

// WithTimeouts sets the per-call model and warehouse timeouts, which apply
// independently of the sandbox wall clock and the hop ceiling.
func WithTimeouts(model, warehouse time.Duration) Option {
	return func(e *Engine) {
		e.nodeCfg.ModelTimeout = model
		e.nodeCfg.WarehouseTimeout = warehouse
	}
}

// WithTopology replaces the default routing table. The node set is fixed;
// alternative tables reroute it, they cannot invent nodes.
func WithTopology(entry domain.NodeID, routes []graph.Route) Option {
	return func(e *Engine) {
		e.entry = entry
		e.routes = routes
	}
}

// WithDistributedLocker serializes sessions across replicas.
func WithDistributedLocker(l ports.DistributedLocker) Option {
	return func(e *Engine) { e.locker = l }
}

// WithMaxQuestionSize overrides the per-question input cap.
func WithMaxQuestionSize(n int) Option {
	return func(e *Engine) { e.maxQuestion = n }
}

// New assembles an Engine. The model client is required; everything else
// has a shipped default: yaegi sandbox, in-process memory and checkpoint
// stores, compiled-in prompts, the stable topology.
//
// Topology violations (a custom table that does not cover the node set)
// surface here as domain.ErrTopology, never at run time.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		entry:  graph.DefaultEntry,
		routes: graph.DefaultRoutes(),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.nodeCfg.Model == nil {
		return nil, errors.New("quarry: a model client is required (use WithModel)")
	}
	if e.nodeCfg.Sandbox == nil {
		e.nodeCfg.Sandbox = yaegi.New(yaegi.WithLogger(e.logger))
	}
	if e.memory == nil {
		e.memory = memadapter.NewMemoryStore()
	}
	if e.checkpoints == nil {
		e.checkpoints = memadapter.NewCheckpointStore()
	}
	e.nodeCfg.Memory = e.memory
	e.nodeCfg.Logger = e.logger

	g, err := graph.New(e.entry, nodes.All(e.nodeCfg), e.routes)
	if err != nil {
		return nil, err
	}
	e.graph = g

	execOpts := []runtime.Option{
		runtime.WithLogger(e.logger),
		runtime.WithCheckpoints(e.checkpoints),
		runtime.WithRetryBounds(e.nodeCfg.MaxCorrection, e.nodeCfg.MaxReflection),
	}
	if e.observer != nil {
		execOpts = append(execOpts, runtime.WithObserver(e.observer))
	}
	execOpts = append(execOpts, runtime.WithHooks(e.hooks))
	if e.maxHops > 0 {
		execOpts = append(execOpts, runtime.WithMaxHops(e.maxHops))
	}
	e.executor = runtime.New(g, execOpts...)

	sessOpts := []session.Option{session.WithLogger(e.logger)}
	if e.locker != nil {
		sessOpts = append(sessOpts, session.WithLocker(e.locker))
	}
	if e.maxQuestion > 0 {
		sessOpts = append(sessOpts, session.WithMaxQuestionSize(e.maxQuestion))
	}
	e.sessions = session.NewManager(e.memory, sessOpts...)

	return e, nil
}

// Ask answers one user question for a session: it seeds a fresh run from
// session memory, drives the graph to a terminal node, and returns the final
// state. The state's FinalResponse carries the answer; its Trace carries the
// (node, outcome) trail.
//
// Concurrent Asks for the same session serialize; distinct sessions run in
// parallel.
func (e *Engine) Ask(ctx context.Context, sessionID, question string) (*domain.ExecutionState, error) {
	return e.sessions.RunTurn(ctx, sessionID, question, e.executor.Run)
}

// History returns the session transcript, oldest first. limit <= 0 returns
// everything.
func (e *Engine) History(ctx context.Context, sessionID string, limit int) ([]domain.ConversationTurn, error) {
	return e.sessions.History(ctx, sessionID, limit)
}

// Router exposes the validated routing table for inspection and rendering.
func (e *Engine) Router() *graph.Router {
	return e.graph.Router()
}

// LoadRun retrieves the latest checkpoint of a run.
func (e *Engine) LoadRun(ctx context.Context, runID string) (*domain.Checkpoint, error) {
	return e.checkpoints.Load(ctx, runID)
}

// ListRuns lists the checkpointed run IDs.
func (e *Engine) ListRuns(ctx context.Context) ([]string, error) {
	return e.checkpoints.ListRuns(ctx)
}

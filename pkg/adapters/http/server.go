// Package http exposes an engine over a small JSON API plus a
// server-sent-events stream for live node transitions. It is the
// transport behind `quarry serve`.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"github.com/quarrydata/quarry/internal/presentation/graph"
	"github.com/quarrydata/quarry/pkg/domain"
	quarrygraph "github.com/quarrydata/quarry/pkg/graph"
	"github.com/quarrydata/quarry/pkg/session"
)

// Engine is the surface the HTTP layer needs from the quarry facade.
// *quarry.Engine satisfies it.
type Engine interface {
	Ask(ctx context.Context, sessionID, question string) (*domain.ExecutionState, error)
	History(ctx context.Context, sessionID string, limit int) ([]domain.ConversationTurn, error)
	Router() *quarrygraph.Router
	LoadRun(ctx context.Context, runID string) (*domain.Checkpoint, error)
	ListRuns(ctx context.Context) ([]string, error)
}

// AskRequest is the body of POST /ask.
type AskRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

// AskResponse is the reply to POST /ask.
type AskResponse struct {
	RunID       string            `json:"run_id"`
	SessionID   string            `json:"session_id"`
	Answer      string            `json:"answer"`
	RespondedBy domain.NodeID     `json:"responded_by"`
	RouteClass  domain.RouteClass `json:"route_class,omitempty"`
	Hops        int               `json:"hops"`
}

// Server routes API requests to an Engine.
type Server struct {
	engine  Engine
	streams *StreamManager
	metrics http.Handler
	logger  *slog.Logger
	version string
}

// Option configures the handler returned by NewHandler.
type Option func(*Server)

// WithLogger sets the request logger. Defaults to a no-op logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithVersion sets the version string reported by GET /info.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithStreams attaches a StreamManager so GET /events can serve live
// node transitions. Wire the same manager into the engine with its
// Observer method.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) { s.streams = sm }
}

// WithMetricsHandler mounts h at GET /metrics. Pass promhttp.Handler()
// when the engine observes through observability.Metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// NewHandler builds the API router around the given engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	s := &Server{
		engine: engine,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()

	r.Post("/ask", s.handleAsk)
	r.Get("/runs", s.handleListRuns)
	r.Get("/runs/{runID}", s.handleGetRun)
	r.Get("/sessions/{sessionID}/history", s.handleHistory)
	r.Get("/graph", s.handleGraph)
	r.Get("/events", s.handleEvents)
	r.Get("/openapi.yaml", s.handleSpec)
	r.Get("/health", s.handleHealth)
	r.Get("/info", s.handleInfo)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		http.Error(w, "question is required", http.StatusBadRequest)
		return
	}

	state, err := s.engine.Ask(r.Context(), req.SessionID, req.Question)
	if err != nil {
		if errors.Is(err, session.ErrQuestionTooLarge) || errors.Is(err, session.ErrInvalidUTF8) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.logger.Error("ask failed", "session_id", req.SessionID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, AskResponse{
		RunID:       state.RunID,
		SessionID:   state.SessionID,
		Answer:      state.FinalResponse,
		RespondedBy: state.RespondedBy,
		RouteClass:  state.RouteClass,
		Hops:        state.Hops,
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.engine.ListRuns(r.Context())
	if err != nil {
		s.logger.Error("list runs failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	cp, err := s.engine.LoadRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		s.logger.Error("load run failed", "run_id", runID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, cp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
			http.Error(w, "limit must be an integer", http.StatusBadRequest)
			return
		}
	}

	turns, err := s.engine.History(r.Context(), sessionID, limit)
	if err != nil {
		s.logger.Error("history failed", "session_id", sessionID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if turns == nil {
		turns = []domain.ConversationTurn{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"turns":      turns,
	})
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	format := "json"
	if raw := r.URL.Query().Get("format"); raw != "" {
		if err := runtime.BindQueryParameter("form", true, false, "format", r.URL.Query(), &format); err != nil {
			http.Error(w, "invalid format parameter", http.StatusBadRequest)
			return
		}
	}

	router := s.engine.Router()
	switch format {
	case "mermaid":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, graph.Mermaid(router, nil))
	case "json":
		s.writeJSON(w, http.StatusOK, map[string]any{
			"entry":  router.Entry(),
			"routes": router.Routes(),
		})
	default:
		http.Error(w, "format must be json or mermaid", http.StatusBadRequest)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	router := s.engine.Router()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"name":    "quarry",
		"version": s.version,
		"nodes":   len(router.Nodes()),
		"routes":  len(router.Routes()),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response failed", "err", err)
	}
}

// Package mcp exposes the engine to MCP hosts (IDEs, assistants) as a
// set of tools: ask a question, read session history, inspect runs and
// the graph topology. Transport is stdio or SSE.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/quarrydata/quarry"
	"github.com/quarrydata/quarry/internal/presentation/graph"
	"github.com/quarrydata/quarry/pkg/domain"
	quarrygraph "github.com/quarrydata/quarry/pkg/graph"
)

// AskResult is the structured payload returned by the ask tool.
type AskResult struct {
	RunID       string `json:"run_id" jsonschema_description:"Identifier of the run that answered"`
	SessionID   string `json:"session_id" jsonschema_description:"Session the turn belongs to"`
	Answer      string `json:"answer" jsonschema_description:"The final natural-language answer"`
	RespondedBy string `json:"responded_by" jsonschema_description:"Node that produced the answer"`
	RouteClass  string `json:"route_class,omitempty" jsonschema_description:"How the question was classified"`
	Hops        int    `json:"hops" jsonschema_description:"Number of node transitions the run took"`
}

// HistoryResult is the structured payload returned by the get_history tool.
type HistoryResult struct {
	SessionID string                    `json:"session_id"`
	Turns     []domain.ConversationTurn `json:"turns"`
}

// Engine defines the interface the MCP server needs from the engine.
type Engine interface {
	Ask(ctx context.Context, sessionID, question string) (*domain.ExecutionState, error)
	History(ctx context.Context, sessionID string, limit int) ([]domain.ConversationTurn, error)
	Router() *quarrygraph.Router
	LoadRun(ctx context.Context, runID string) (*domain.Checkpoint, error)
	ListRuns(ctx context.Context) ([]string, error)
}

// Server wraps an Engine and exposes it as an MCP server.
type Server struct {
	engine    Engine
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP server instance.
func NewServer(engine Engine) *Server {
	s := &Server{
		engine:    engine,
		mcpServer: server.NewMCPServer("quarry-mcp", strings.TrimSpace(quarry.Version)),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)

	go func() {
		slog.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	// TOOL: ask
	askTool := mcp.NewTool("ask",
		mcp.WithDescription("Ask the analytics agent a natural-language question about the connected business data. Runs one full graph turn and returns the answer."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Conversation session to run the turn in")),
		mcp.WithString("question", mcp.Required(), mcp.Description("The question to answer")),
		mcp.WithOutputSchema[AskResult](),
	)
	s.mcpServer.AddTool(askTool, mcp.NewStructuredToolHandler(s.handleAsk))

	// TOOL: get_history
	historyTool := mcp.NewTool("get_history",
		mcp.WithDescription("Read a session's persisted conversation history, oldest first."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to read")),
		mcp.WithNumber("limit", mcp.Description("Cap on the number of most recent turns (optional)")),
		mcp.WithOutputSchema[HistoryResult](),
	)
	s.mcpServer.AddTool(historyTool, mcp.NewStructuredToolHandler(s.handleHistory))

	// TOOL: inspect_graph
	s.mcpServer.AddTool(mcp.NewTool("inspect_graph",
		mcp.WithDescription("Get the execution graph topology, as JSON routes or a Mermaid diagram."),
		mcp.WithString("format", mcp.Description("json (default) or mermaid")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		router := s.engine.Router()
		if request.GetString("format", "json") == "mermaid" {
			return mcp.NewToolResultText(graph.Mermaid(router, nil)), nil
		}
		jsonBytes, _ := json.Marshal(map[string]any{
			"entry":  router.Entry(),
			"routes": router.Routes(),
		})
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})

	// TOOL: get_run
	s.mcpServer.AddTool(mcp.NewTool("get_run",
		mcp.WithDescription("Load the latest persisted checkpoint of a run for replay or debugging."),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("Run to load")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		runID, err := request.RequireString("run_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		cp, err := s.engine.LoadRun(ctx, runID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("load run failed: %v", err)), nil
		}
		jsonBytes, _ := json.Marshal(cp)
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})

	// TOOL: list_runs
	s.mcpServer.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("List the IDs of all checkpointed runs."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		runs, err := s.engine.ListRuns(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list runs failed: %v", err)), nil
		}
		jsonBytes, _ := json.Marshal(runs)
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})
}

// Handler methods for structured tools

func (s *Server) handleAsk(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (AskResult, error) {
	sessionID, _ := args["session_id"].(string)
	question, _ := args["question"].(string)
	if strings.TrimSpace(sessionID) == "" {
		return AskResult{}, fmt.Errorf("session_id is required")
	}
	if strings.TrimSpace(question) == "" {
		return AskResult{}, fmt.Errorf("question is required")
	}

	state, err := s.engine.Ask(ctx, sessionID, question)
	if err != nil {
		slog.Warn("MCP ask: run failed", "session_id", sessionID, "error", err)
		return AskResult{}, fmt.Errorf("ask failed: %w", err)
	}

	return AskResult{
		RunID:       state.RunID,
		SessionID:   state.SessionID,
		Answer:      state.FinalResponse,
		RespondedBy: string(state.RespondedBy),
		RouteClass:  string(state.RouteClass),
		Hops:        state.Hops,
	}, nil
}

func (s *Server) handleHistory(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (HistoryResult, error) {
	sessionID, _ := args["session_id"].(string)
	if strings.TrimSpace(sessionID) == "" {
		return HistoryResult{}, fmt.Errorf("session_id is required")
	}

	limit := 0
	if raw, ok := args["limit"].(float64); ok {
		limit = int(raw)
	}

	turns, err := s.engine.History(ctx, sessionID, limit)
	if err != nil {
		return HistoryResult{}, fmt.Errorf("history failed: %w", err)
	}
	if turns == nil {
		turns = []domain.ConversationTurn{}
	}

	return HistoryResult{SessionID: sessionID, Turns: turns}, nil
}

func (s *Server) registerResources() {
	// EXPOSE: quarry://graph
	s.mcpServer.AddResource(mcp.NewResource("quarry://graph", "Execution Graph Topology",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		router := s.engine.Router()
		jsonBytes, err := json.Marshal(map[string]any{
			"entry":  router.Entry(),
			"routes": router.Routes(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to encode graph: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "quarry://graph",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}

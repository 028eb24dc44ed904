package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/quarrydata/quarry"
	"github.com/quarrydata/quarry/internal/config"
	"github.com/quarrydata/quarry/internal/presentation/tui"
	"github.com/quarrydata/quarry/pkg/domain"
)

// AskOptions contains the configuration for the one-shot ask command.
type AskOptions struct {
	Config    *config.Config
	SessionID string
	Question  string
	JSON      bool
	Debug     bool
}

type askOutput struct {
	RunID       string        `json:"run_id"`
	SessionID   string        `json:"session_id"`
	Answer      string        `json:"answer"`
	RespondedBy domain.NodeID `json:"responded_by"`
	RouteClass  string        `json:"route_class,omitempty"`
	Hops        int           `json:"hops"`
}

// RunAsk answers a single question and prints the response. Without a
// session ID the turn runs in a throwaway session.
func RunAsk(opts AskOptions) error {
	logger := createLogger(opts.Debug)

	engineOpts := []quarry.Option{}
	if opts.Debug {
		engineOpts = append(engineOpts, quarry.WithLifecycleHooks(createDebugHooks(logger)))
	}

	eng, cleanup, err := BuildEngine(opts.Config, logger, engineOpts...)
	if err != nil {
		return err
	}
	defer cleanup()

	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	sigCtx := NewSignalContext(context.Background())
	defer sigCtx.Cancel()

	state, err := eng.Ask(sigCtx, sessionID, opts.Question)
	if sigCtx.Err() != nil && err == nil {
		err = sigCtx.Err()
	}
	if err != nil {
		return handleExecutionError(err)
	}

	if opts.JSON {
		return json.NewEncoder(os.Stdout).Encode(askOutput{
			RunID:       state.RunID,
			SessionID:   state.SessionID,
			Answer:      state.FinalResponse,
			RespondedBy: state.RespondedBy,
			RouteClass:  string(state.RouteClass),
			Hops:        state.Hops,
		})
	}

	printAnswer(state.FinalResponse)
	return nil
}

// printAnswer renders markdown when stdout is a terminal and falls back to
// the raw text otherwise.
func printAnswer(answer string) {
	render := tui.NewRenderer()
	out, err := render(answer)
	if err != nil {
		out = answer
	}
	fmt.Print(out)
	if !strings.HasSuffix(out, "\n") {
		fmt.Println()
	}
}

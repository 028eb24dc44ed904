package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/quarrydata/quarry/internal/config"
	"github.com/quarrydata/quarry/pkg/domain"
)

// HistoryOptions contains the configuration for the history command.
type HistoryOptions struct {
	Config    *config.Config
	SessionID string
	Limit     int
	JSON      bool
}

// RunHistory prints the transcript of a session, oldest first.
func RunHistory(opts HistoryOptions) error {
	eng, cleanup, err := BuildEngine(opts.Config, createLogger(false))
	if err != nil {
		return err
	}
	defer cleanup()

	turns, err := eng.History(context.Background(), opts.SessionID, opts.Limit)
	if err != nil {
		return err
	}

	if opts.JSON {
		if turns == nil {
			turns = []domain.ConversationTurn{}
		}
		return json.NewEncoder(os.Stdout).Encode(turns)
	}

	if len(turns) == 0 {
		printSystemMessage("No history for session '%s'.", opts.SessionID)
		return nil
	}

	for _, t := range turns {
		speaker := "you"
		if t.Role == domain.RoleAssistant {
			speaker = "quarry"
		}
		fmt.Printf("[%s] %s: %s\n", t.At.Format("2006-01-02 15:04"), speaker, t.Content)
	}
	return nil
}

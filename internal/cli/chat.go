package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/quarrydata/quarry"
	"github.com/quarrydata/quarry/internal/config"
	"github.com/quarrydata/quarry/internal/presentation/tui"
)

// ChatOptions contains the configuration for the interactive chat loop.
type ChatOptions struct {
	Config    *config.Config
	SessionID string
	Debug     bool
}

// RunChat drives the interactive loop: read a question, run the graph,
// render the answer, repeat until exit or interrupt.
func RunChat(opts ChatOptions) error {
	logger := createLogger(opts.Debug)

	tui.PrintBanner(quarry.Version)

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
	printSystemMessage("Session '%s' active. Type 'exit' to quit.", sessionID)

	sigCtx := NewSignalContext(context.Background())
	defer sigCtx.Cancel()

	scanner := bufio.NewScanner(NewInterruptibleReader(os.Stdin, sigCtx.Done()))

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "exit" || question == "quit" {
			break
		}

		state, err := eng.Ask(sigCtx, sessionID, question)
		if err != nil {
			if isInterrupted(err) || sigCtx.Err() != nil {
				break
			}
			printSystemMessage("Error: %v", err)
			continue
		}

		printAnswer(state.FinalResponse)
	}

	if sig := sigCtx.Signal(); sig != nil {
		if sig == os.Interrupt {
			fmt.Printf("[CTRL+C]\n")
		} else {
			fmt.Printf("\n")
		}
		printSystemMessage("Interrupted.")
		return nil
	}

	printSystemMessage("Session '%s' closed.", sessionID)
	return nil
}

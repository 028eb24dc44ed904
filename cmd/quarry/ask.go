package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/quarrydata/quarry/internal/cli"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single question and print the answer",
	Long: `Runs one question through the execution graph and prints the final
response. With --session the turn joins an existing conversation; without it
the question runs in a throwaway session.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		debug, _ := cmd.Flags().GetBool("debug")
		sessionID, _ := cmd.Flags().GetString("session")
		jsonOut, _ := cmd.Flags().GetBool("json")

		return cli.RunAsk(cli.AskOptions{
			Config:    cfg,
			SessionID: sessionID,
			Question:  strings.Join(args, " "),
			JSON:      jsonOut,
			Debug:     debug,
		})
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringP("session", "s", "", "Session ID for conversational context")
	askCmd.Flags().Bool("json", false, "Emit the result as JSON")
}

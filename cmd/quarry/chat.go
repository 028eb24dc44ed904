package main

import (
	"github.com/spf13/cobra"

	"github.com/quarrydata/quarry/internal/cli"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive question-and-answer session",
	Long: `Opens a conversational loop against the execution graph. Every question
shares the same session, so follow-ups can lean on earlier answers. Type
'exit' or press Ctrl+C to leave.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		debug, _ := cmd.Flags().GetBool("debug")
		sessionID, _ := cmd.Flags().GetString("session")

		return cli.RunChat(cli.ChatOptions{
			Config:    cfg,
			SessionID: sessionID,
			Debug:     debug,
		})
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringP("session", "s", "", "Session ID to resume")
}

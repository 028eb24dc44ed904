package main

import (
	"github.com/spf13/cobra"

	"github.com/quarrydata/quarry/internal/cli"
)

var historyCmd = &cobra.Command{
	Use:   "history <session-id>",
	Short: "Print the transcript of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		jsonOut, _ := cmd.Flags().GetBool("json")

		return cli.RunHistory(cli.HistoryOptions{
			Config:    cfg,
			SessionID: args[0],
			Limit:     limit,
			JSON:      jsonOut,
		})
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 0, "Only print the last N turns (0 = all)")
	historyCmd.Flags().Bool("json", false, "Emit the transcript as JSON")
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quarrydata/quarry/pkg/graph"
	"github.com/quarrydata/quarry/pkg/prompts"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Manage the prompt library",
	Long:  `Inspect the compiled-in prompts and seed a directory to tune them without rebuilding.`,
}

var promptsInitCmd = &cobra.Command{
	Use:   "init <dir>",
	Short: "Seed a directory with the default prompt documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := args[0]
		if err := prompts.WriteDefaults(dir); err != nil {
			return err
		}
		fmt.Printf("Seeded default prompts into %s\n", dir)
		fmt.Println("Point prompts_dir (or QUARRY_PROMPTS_DIR) at it to serve your edits.")
		return nil
	},
}

var promptsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List the nodes that carry a prompt",
	Run: func(cmd *cobra.Command, args []string) {
		router, err := graph.NewRouter(graph.DefaultEntry, graph.DefaultVocabulary(), graph.DefaultRoutes())
		if err != nil {
			fmt.Printf("Error building router: %v\n", err)
			os.Exit(1)
		}

		lib := prompts.Builtin()
		for _, id := range router.Nodes() {
			p, err := lib.Get(cmd.Context(), id)
			if err != nil {
				continue
			}
			fmt.Printf("%-28s temp=%.1f  %s\n", p.ID, p.Temperature, p.Description)
		}
	},
}

func init() {
	rootCmd.AddCommand(promptsCmd)
	promptsCmd.AddCommand(promptsInitCmd)
	promptsCmd.AddCommand(promptsLsCmd)
}

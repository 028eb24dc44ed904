package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quarrydata/quarry/internal/cli"
	"github.com/quarrydata/quarry/internal/logging"
	presentation "github.com/quarrydata/quarry/internal/presentation/graph"
	"github.com/quarrydata/quarry/pkg/graph"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the execution graph visualization",
	Long: `Outputs a Mermaid diagram (graph TD) of the routing table. With --run the
diagram highlights the path that run actually took.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		router, err := graph.NewRouter(graph.DefaultEntry, graph.DefaultVocabulary(), graph.DefaultRoutes())
		if err != nil {
			return err
		}

		runID, _ := cmd.Flags().GetString("run")
		if runID == "" {
			fmt.Print(presentation.Mermaid(router, nil))
			return nil
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		eng, cleanup, err := cli.BuildEngine(cfg, logging.NewNop())
		if err != nil {
			return err
		}
		defer cleanup()

		cp, err := eng.LoadRun(context.Background(), runID)
		if err != nil {
			return fmt.Errorf("load run %s: %w", runID, err)
		}

		var overlay *presentation.Overlay
		if cp.State != nil {
			overlay = presentation.OverlayFromTrace(cp.State.Trace)
		}
		fmt.Print(presentation.Mermaid(router, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("run", "", "Run ID whose path to highlight")
}

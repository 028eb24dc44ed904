package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quarrydata/quarry/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "quarry",
	Short: "Quarry answers business questions by planning and running analyses over your warehouse",
	Long: `Quarry drives a fixed execution graph over a language model: it reads the
question, classifies it, retrieves warehouse data, plans a computation, runs
it in a sandbox, and phrases the result. Sessions keep conversational memory
across questions.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Path to the configuration file (YAML)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
}

// loadConfig reads the --config file (if any) and overlays QUARRY_* env vars.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

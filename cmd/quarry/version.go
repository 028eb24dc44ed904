package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quarrydata/quarry"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of quarry",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("quarry version %s\n", strings.TrimSpace(quarry.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

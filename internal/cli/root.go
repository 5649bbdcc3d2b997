// Package cli implements the fadem command line interface.
package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fadem",
	Short: "Fading memory engine for AI agents",
	Long: "FadeMem stores agent memories that strengthen with use and fade without it:\n" +
		"echo-encoded insertion, conflict resolution, decay with promotion, fusion of\n" +
		"near-duplicates, and a self-organizing category hierarchy.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(decayCmd)
	rootCmd.AddCommand(fuseCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(categoriesCmd)
}

package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "shopping-assistant",
	Short: "Shopping assistant recommendation pipeline",
	Long: `shopping-assistant turns a free-text shopping query into ranked, explained
product recommendations: it interprets the query, fetches candidates from
Google Shopping, enriches them with web content, ranks them and writes
personalised recommendations for the top picks.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(searchCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

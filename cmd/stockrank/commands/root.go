package commands

import (
	"github.com/spf13/cobra"
)

var verbose bool

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "stockrank",
	Short: "Market data ingestion, indicators, and ranking",
	Long: `stockrank collects daily price history from market-data vendors,
computes technical indicators, and ranks a configured universe across
activity, volatility, performance, market-cap, and price dimensions.

Usage:
  go run ./cmd/stockrank [command]

Examples:
  go run ./cmd/stockrank api
  go run ./cmd/stockrank scheduler
  go run ./cmd/stockrank collect --days 30 AAPL QCOM
  go run ./cmd/stockrank rank comprehensive --limit 10`,
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

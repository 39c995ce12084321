package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var collectCmd = &cobra.Command{
	Use:   "collect [symbols...]",
	Short: "Refresh price history",
	Long: `Refresh daily price history from the configured provider.

With no symbols the whole active universe is refreshed.

Example:
  go run ./cmd/stockrank collect
  go run ./cmd/stockrank collect --days 30 AAPL QCOM`,
	RunE: runCollect,
}

var collectDays int

func init() {
	rootCmd.AddCommand(collectCmd)

	collectCmd.Flags().IntVar(&collectDays, "days", 0, "lookback window in days (default from config)")
}

func runCollect(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	days := collectDays
	if days <= 0 {
		days = a.cfg.Ingest.ManualLookbackDays
	}

	ctx := cmd.Context()
	symbols := normalizeSymbols(args)

	if len(symbols) == 0 {
		summary, _, err := a.orchestrator.RefreshAll(ctx, days)
		if err != nil {
			return err
		}
		fmt.Printf("Refreshed universe: total=%d success=%d failed=%d\n",
			summary.Total, summary.Success, summary.Failed)
		return nil
	}

	summary, results, err := a.orchestrator.RefreshSome(ctx, symbols, days)
	if err != nil {
		return err
	}
	for _, result := range results {
		if result.Error != nil {
			fmt.Printf("  %-6s FAILED: %v\n", result.Symbol, result.Error)
		} else {
			fmt.Printf("  %-6s inserted %d bars\n", result.Symbol, result.Inserted)
		}
	}
	fmt.Printf("Refreshed %d symbols: success=%d failed=%d\n",
		summary.Total, summary.Success, summary.Failed)
	return nil
}

func normalizeSymbols(args []string) []string {
	symbols := make([]string, 0, len(args))
	for _, arg := range args {
		if arg = strings.ToUpper(strings.TrimSpace(arg)); arg != "" {
			symbols = append(symbols, arg)
		}
	}
	return symbols
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var indicatorsCmd = &cobra.Command{
	Use:   "indicators [symbols...]",
	Short: "Recompute technical indicators",
	Long: `Recompute moving averages and RSI from stored price history.

With no symbols every active instrument is recomputed.

Example:
  go run ./cmd/stockrank indicators
  go run ./cmd/stockrank indicators AAPL QCOM`,
	RunE: runIndicators,
}

func init() {
	rootCmd.AddCommand(indicatorsCmd)
}

func runIndicators(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	symbols := normalizeSymbols(args)

	if len(symbols) == 0 {
		summary, err := a.indicators.ComputeAll(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Indicators recomputed: total=%d success=%d failed=%d skipped=%d\n",
			summary.Total, summary.Success, summary.Failed, summary.Skipped)
		return nil
	}

	failed := 0
	for _, symbol := range symbols {
		instrument, err := a.instruments.GetBySymbol(ctx, symbol)
		if err != nil {
			fmt.Printf("  %-6s FAILED: %v\n", symbol, err)
			failed++
			continue
		}
		if err := a.indicators.ComputeFor(ctx, instrument.ID); err != nil {
			fmt.Printf("  %-6s FAILED: %v\n", symbol, err)
			failed++
			continue
		}
		fmt.Printf("  %-6s ok\n", symbol)
	}
	fmt.Printf("Indicators recomputed for %d symbols, %d failed\n", len(symbols), failed)
	return nil
}

package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quantinfo/stockrank/internal/ranking"
)

var rankCmd = &cobra.Command{
	Use:   "rank <dimension>",
	Short: "Print a ranking over the configured universe",
	Long: fmt.Sprintf(`Print one ranking dimension over the configured universe.

Dimensions: %s

Example:
  go run ./cmd/stockrank rank activity
  go run ./cmd/stockrank rank comprehensive --limit 5`,
		strings.Join(ranking.Dimensions, ", ")),
	Args: cobra.ExactArgs(1),
	RunE: runRank,
}

var rankLimit int

func init() {
	rootCmd.AddCommand(rankCmd)

	rankCmd.Flags().IntVar(&rankLimit, "limit", 0, "result size (default from config)")
}

func runRank(cmd *cobra.Command, args []string) error {
	dimension := strings.ToLower(args[0])
	if !ranking.ValidDimension(dimension) {
		return fmt.Errorf("unknown dimension %q, want one of: %s",
			dimension, strings.Join(ranking.Dimensions, ", "))
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.ranking.Rank(cmd.Context(), dimension, rankLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No ranking data available yet. Run 'collect' first.")
		return nil
	}

	fmt.Printf("%-4s %-6s %-24s %10s %12s %8s\n", "#", "SYM", "NAME", "CLOSE", "VOLUME", "SCORE")
	for _, entry := range entries {
		name := entry.Name
		if len(name) > 24 {
			name = name[:24]
		}
		line := fmt.Sprintf("%-4d %-6s %-24s %10.2f %12d %8.2f",
			entry.Rank, entry.Symbol, name, entry.Close, entry.Volume, entry.Score)
		if entry.Direction != "" {
			line += " " + entry.Direction
		}
		fmt.Println(line)
	}
	return nil
}

package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quantinfo/stockrank/internal/scheduler"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the periodic task scheduler",
	Long: `Run the periodic task scheduler until interrupted.

Tasks:
  - daily history ingestion at the configured wall-clock time
  - intraday quote refresh during the Mon-Fri trading window
  - daily indicator recomputation

Example:
  go run ./cmd/stockrank scheduler`,
	RunE: runScheduler,
}

func init() {
	rootCmd.AddCommand(schedulerCmd)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	svc, err := scheduler.New(a.orchestrator, a.indicators, *a.cfg, a.logger)
	if err != nil {
		return err
	}

	svc.Start(context.Background())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	a.logger.WithField("signal", sig.String()).Info("Shutdown signal received")

	svc.Stop()
	return nil
}

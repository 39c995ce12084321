package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantinfo/stockrank/internal/api"
	"github.com/quantinfo/stockrank/internal/api/handlers"
	"github.com/quantinfo/stockrank/pkg/redis"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the REST API server",
	Long: `Start the REST API server.

Endpoints:
  GET  /health                       - Health check
  GET  /api/rankings/{dimension}     - Ranking query
  GET  /api/instruments/search       - Provider symbol search
  GET  /api/instruments/quotes       - Latest quotes
  POST /api/admin/refresh            - Manual history refresh
  POST /api/admin/indicators         - Recompute indicators

Example:
  go run ./cmd/stockrank api
  go run ./cmd/stockrank api --port 8080`,
	RunE: runAPIServer,
}

var apiPort string

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API server port (overrides config)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	redisClient, err := redis.New(a.cfg)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer redisClient.Close()
	cache := redis.NewCache(redisClient, "stockrank")

	rankingHandler := handlers.NewRankingHandler(a.ranking, cache, a.cfg.Redis.CacheTTL, a.logger)
	adminHandler := handlers.NewAdminHandler(a.orchestrator, a.indicators, a.cfg.Ingest, a.logger)
	instrumentHandler := handlers.NewInstrumentHandler(a.orchestrator, a.logger)

	router := api.NewRouter(rankingHandler, adminHandler, instrumentHandler, a.logger)
	server := api.New(a.cfg, a.logger, router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		a.logger.WithField("signal", sig.String()).Info("Shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

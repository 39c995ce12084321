package commands

import (
	"fmt"

	"github.com/quantinfo/stockrank/internal/contracts"
	"github.com/quantinfo/stockrank/internal/external/alphavantage"
	"github.com/quantinfo/stockrank/internal/external/twelvedata"
	"github.com/quantinfo/stockrank/internal/indicator"
	"github.com/quantinfo/stockrank/internal/ingest"
	"github.com/quantinfo/stockrank/internal/ranking"
	"github.com/quantinfo/stockrank/internal/store"
	"github.com/quantinfo/stockrank/pkg/config"
	"github.com/quantinfo/stockrank/pkg/database"
	"github.com/quantinfo/stockrank/pkg/httputil"
	"github.com/quantinfo/stockrank/pkg/logger"
)

// app holds the wired service graph shared by every subcommand.
type app struct {
	cfg    *config.Config
	logger *logger.Logger
	db     *database.DB

	provider    contracts.DataProvider
	instruments contracts.InstrumentRepository

	orchestrator *ingest.Orchestrator
	indicators   *indicator.Engine
	ranking      *ranking.Service
}

// newApp loads config and wires the full service graph. The caller owns
// Close.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	log.Info("Connected to database")

	httpClient := httputil.New(log)

	provider, err := buildProvider(cfg, httpClient, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	log.WithField("provider", provider.Name()).Info("Using data provider")

	instrumentRepo := store.NewInstrumentRepository(db.Pool)
	priceRepo := store.NewPriceRepository(db.Pool)
	indicatorRepo := store.NewIndicatorRepository(db.Pool)

	return &app{
		cfg:          cfg,
		logger:       log,
		db:           db,
		provider:     provider,
		instruments:  instrumentRepo,
		orchestrator: ingest.New(provider, instrumentRepo, priceRepo, cfg.Ingest, log),
		indicators:   indicator.NewEngine(instrumentRepo, priceRepo, indicatorRepo, log),
		ranking:      ranking.NewService(priceRepo, cfg.Ranking, log),
	}, nil
}

// buildProvider selects the configured vendor adapter.
func buildProvider(cfg *config.Config, httpClient *httputil.Client, log *logger.Logger) (contracts.DataProvider, error) {
	switch cfg.Provider {
	case "alphavantage":
		return alphavantage.New(cfg.AlphaVantage, httpClient, log), nil
	case "twelvedata":
		return twelvedata.New(cfg.TwelveData, httpClient, log), nil
	default:
		return nil, fmt.Errorf("unknown data provider %q", cfg.Provider)
	}
}

func (a *app) Close() {
	a.db.Close()
}

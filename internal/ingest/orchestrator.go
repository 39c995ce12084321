package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/quantinfo/stockrank/internal/contracts"
	"github.com/quantinfo/stockrank/pkg/config"
	"github.com/quantinfo/stockrank/pkg/logger"
)

// ErrNoData signals that the provider returned nothing for a window
// that should contain trading days.
var ErrNoData = errors.New("provider returned no data")

// Orchestrator coordinates history ingestion across the active
// universe: it computes refresh windows, fans work out to a bounded
// pool, and persists validated bars.
type Orchestrator struct {
	provider    contracts.DataProvider
	instruments contracts.InstrumentRepository
	prices      contracts.PriceRepository
	cfg         config.IngestConfig
	logger      *logger.Logger
}

// New creates a new ingestion Orchestrator.
func New(
	provider contracts.DataProvider,
	instruments contracts.InstrumentRepository,
	prices contracts.PriceRepository,
	cfg config.IngestConfig,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		provider:    provider,
		instruments: instruments,
		prices:      prices,
		cfg:         cfg,
		logger:      log.WithField("module", "ingest"),
	}
}

// Result is the per-instrument outcome of a refresh.
type Result struct {
	Symbol   string
	Inserted int
	Error    error
}

// Summary tallies a batch refresh.
type Summary struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// refreshWindow returns the [start, end] window still missing for the
// instrument. The zero window (ok == false) means storage is already
// current and no provider call is needed.
func (o *Orchestrator) refreshWindow(ctx context.Context, instrumentID int64, lookbackDays int, now time.Time) (start, end time.Time, ok bool, err error) {
	end = now
	start = now.AddDate(0, 0, -lookbackDays)

	latest, err := o.prices.GetLatestBar(ctx, instrumentID)
	switch {
	case errors.Is(err, contracts.ErrNotFound):
		// No history yet, take the full lookback.
	case err != nil:
		return time.Time{}, time.Time{}, false, fmt.Errorf("get latest bar: %w", err)
	default:
		next := latest.Date.AddDate(0, 0, 1)
		if next.After(start) {
			start = next
		}
	}

	if start.After(end) {
		return time.Time{}, time.Time{}, false, nil
	}
	return start, end, true, nil
}

// RefreshOne updates one instrument's history. Inactive instruments and
// already-current windows are a no-op. The provider call runs under the
// configured fetch timeout.
func (o *Orchestrator) RefreshOne(ctx context.Context, symbol string, lookbackDays int) (*Result, error) {
	instrument, err := o.instruments.GetBySymbol(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("get instrument %s: %w", symbol, err)
	}
	if !instrument.IsActive {
		o.logger.WithField("symbol", symbol).Debug("Skipping inactive instrument")
		return &Result{Symbol: symbol}, nil
	}

	start, end, ok, err := o.refreshWindow(ctx, instrument.ID, lookbackDays, time.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		o.logger.WithField("symbol", symbol).Debug("History already current")
		return &Result{Symbol: symbol}, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, o.cfg.FetchTimeout)
	defer cancel()

	history, err := o.provider.FetchHistory(fetchCtx, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetch history %s: %w", symbol, err)
	}
	if len(history) == 0 {
		// An empty series for a window we asked about means the data is
		// stale, not current; callers see it in the failed tally.
		o.logger.WithFields(map[string]interface{}{
			"symbol": symbol,
			"from":   start.Format("2006-01-02"),
			"to":     end.Format("2006-01-02"),
		}).Warn("No bars in refresh window")
		return nil, fmt.Errorf("refresh %s: %w", symbol, ErrNoData)
	}

	bars := make([]*contracts.PriceBar, 0, len(history))
	for _, h := range history {
		bar := &contracts.PriceBar{
			InstrumentID:  instrument.ID,
			Date:          h.Date,
			Open:          h.Open,
			High:          h.High,
			Low:           h.Low,
			Close:         h.Close,
			Volume:        h.Volume,
			AdjustedClose: h.AdjustedClose,
		}
		if err := bar.Validate(); err != nil {
			o.logger.WithFields(map[string]interface{}{
				"symbol": symbol,
				"date":   h.Date.Format("2006-01-02"),
				"error":  err.Error(),
			}).Warn("Dropping invalid bar")
			continue
		}
		bars = append(bars, bar)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("refresh %s: %w", symbol, ErrNoData)
	}

	inserted, err := o.prices.InsertBars(ctx, bars)
	if err != nil {
		return nil, fmt.Errorf("insert bars %s: %w", symbol, err)
	}

	o.logger.WithFields(map[string]interface{}{
		"symbol":   symbol,
		"fetched":  len(bars),
		"inserted": inserted,
	}).Info("Refreshed history")
	return &Result{Symbol: symbol, Inserted: inserted}, nil
}

// RefreshAll refreshes every active instrument through the worker pool.
func (o *Orchestrator) RefreshAll(ctx context.Context, lookbackDays int) (*Summary, []Result, error) {
	instruments, err := o.instruments.ListActive(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list active instruments: %w", err)
	}

	symbols := make([]string, 0, len(instruments))
	for _, instrument := range instruments {
		symbols = append(symbols, instrument.Symbol)
	}
	return o.refreshPool(ctx, symbols, lookbackDays)
}

// RefreshSome refreshes the given symbols through the worker pool.
func (o *Orchestrator) RefreshSome(ctx context.Context, symbols []string, lookbackDays int) (*Summary, []Result, error) {
	return o.refreshPool(ctx, symbols, lookbackDays)
}

// refreshPool fans symbols out to a bounded worker pool and tallies the
// outcome. Per-symbol failures are recorded, never fatal to the batch.
func (o *Orchestrator) refreshPool(ctx context.Context, symbols []string, lookbackDays int) (*Summary, []Result, error) {
	workers := o.cfg.Concurrency
	if workers < 1 {
		workers = 1
	}
	if workers > len(symbols) {
		workers = len(symbols)
	}

	o.logger.WithFields(map[string]interface{}{
		"symbols":  len(symbols),
		"lookback": lookbackDays,
		"workers":  workers,
	}).Info("Starting batch refresh")

	symbolCh := make(chan string, len(symbols))
	resultCh := make(chan Result, len(symbols))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			o.refreshWorker(ctx, workerID, symbolCh, resultCh, lookbackDays)
		}(i)
	}

	for _, symbol := range symbols {
		symbolCh <- symbol
	}
	close(symbolCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	summary := &Summary{Total: len(symbols)}
	results := make([]Result, 0, len(symbols))
	for result := range resultCh {
		results = append(results, result)
		if result.Error != nil {
			summary.Failed++
		} else {
			summary.Success++
		}
	}

	o.logger.WithFields(map[string]interface{}{
		"total":   summary.Total,
		"success": summary.Success,
		"failed":  summary.Failed,
	}).Info("Batch refresh completed")
	return summary, results, nil
}

func (o *Orchestrator) refreshWorker(ctx context.Context, workerID int, symbolCh <-chan string, resultCh chan<- Result, lookbackDays int) {
	for symbol := range symbolCh {
		select {
		case <-ctx.Done():
			resultCh <- Result{Symbol: symbol, Error: ctx.Err()}
			continue
		default:
		}

		result, err := o.RefreshOne(ctx, symbol, lookbackDays)
		if err != nil {
			o.logger.WithError(err).WithFields(map[string]interface{}{
				"worker": workerID,
				"symbol": symbol,
			}).Error("Failed to refresh")
			resultCh <- Result{Symbol: symbol, Error: err}
			continue
		}
		resultCh <- *result
	}
}

// EnrichProfiles fills in name, sector, industry and market cap for
// active instruments from the provider's profile endpoint. Unknown
// symbols are counted as failures but do not stop the pass.
func (o *Orchestrator) EnrichProfiles(ctx context.Context) (*Summary, error) {
	instruments, err := o.instruments.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active instruments: %w", err)
	}

	summary := &Summary{Total: len(instruments)}
	for _, instrument := range instruments {
		profile, err := o.provider.GetProfile(ctx, instrument.Symbol)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			o.logger.WithError(err).WithField("symbol", instrument.Symbol).Warn("Failed to fetch profile")
			summary.Failed++
			continue
		}
		if profile == nil {
			o.logger.WithField("symbol", instrument.Symbol).Debug("Provider has no profile")
			summary.Failed++
			continue
		}

		if err := o.instruments.UpdateProfile(ctx, instrument.ID, profile); err != nil {
			o.logger.WithError(err).WithField("symbol", instrument.Symbol).Error("Failed to update profile")
			summary.Failed++
			continue
		}
		summary.Success++
	}

	o.logger.WithFields(map[string]interface{}{
		"total":   summary.Total,
		"success": summary.Success,
		"failed":  summary.Failed,
	}).Info("Profile enrichment completed")
	return summary, nil
}

// RealtimeQuotes fetches latest quotes for the given symbols, or for
// the whole active universe when symbols is empty.
func (o *Orchestrator) RealtimeQuotes(ctx context.Context, symbols []string) (map[string]contracts.Quote, error) {
	if len(symbols) == 0 {
		instruments, err := o.instruments.ListActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("list active instruments: %w", err)
		}
		for _, instrument := range instruments {
			symbols = append(symbols, instrument.Symbol)
		}
	}
	if len(symbols) == 0 {
		return map[string]contracts.Quote{}, nil
	}

	quotes, err := o.provider.FetchRealtime(ctx, symbols)
	if err != nil {
		return nil, fmt.Errorf("fetch realtime: %w", err)
	}
	return quotes, nil
}

// SearchInstruments runs a provider symbol search and marks which of
// the matches already exist locally.
type SearchMatch struct {
	contracts.InstrumentProfile
	InDatabase bool `json:"in_database"`
}

func (o *Orchestrator) SearchInstruments(ctx context.Context, query string) ([]SearchMatch, error) {
	profiles, err := o.provider.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("provider search: %w", err)
	}
	if len(profiles) == 0 {
		return []SearchMatch{}, nil
	}

	symbols := make([]string, 0, len(profiles))
	for _, profile := range profiles {
		symbols = append(symbols, profile.Symbol)
	}
	known, err := o.instruments.ListSymbols(ctx, symbols)
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	knownSet := make(map[string]bool, len(known))
	for _, instrument := range known {
		knownSet[instrument.Symbol] = true
	}

	matches := make([]SearchMatch, 0, len(profiles))
	for _, profile := range profiles {
		matches = append(matches, SearchMatch{
			InstrumentProfile: profile,
			InDatabase:        knownSet[profile.Symbol],
		})
	}
	return matches, nil
}

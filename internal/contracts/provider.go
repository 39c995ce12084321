package contracts

import (
	"context"
	"time"
)

// HistoryBar is the normalized PriceBar-shaped record a provider adapter
// emits. The instrument ID is attached by the caller; adapters only know
// symbols.
type HistoryBar struct {
	Date          time.Time
	Open          float64
	High          float64
	Low           float64
	Close         float64
	Volume        int64
	AdjustedClose *float64
}

// Validate applies the PriceBar OHLC invariant to a provider record.
func (b *HistoryBar) Validate() error {
	bar := PriceBar{
		Date:          b.Date,
		Open:          b.Open,
		High:          b.High,
		Low:           b.Low,
		Close:         b.Close,
		Volume:        b.Volume,
		AdjustedClose: b.AdjustedClose,
	}
	return bar.Validate()
}

// DataProvider is the capability contract for market-data vendors.
// Adapters are interchangeable; each enforces its own external rate limit
// internally, so callers simply see blocking calls.
type DataProvider interface {
	// Name identifies the vendor in logs and tallies.
	Name() string

	// FetchHistory returns daily bars for [start, end], sorted ascending by
	// date. An empty window is an empty slice, never an error. Records
	// violating the OHLC invariant are dropped (and logged), not surfaced.
	FetchHistory(ctx context.Context, symbol string, start, end time.Time) ([]HistoryBar, error)

	// FetchRealtime returns latest quotes keyed by symbol. Best-effort:
	// symbols the vendor cannot resolve are simply absent from the result.
	FetchRealtime(ctx context.Context, symbols []string) (map[string]Quote, error)

	// Search returns a bounded list of candidate instrument descriptors.
	Search(ctx context.Context, query string) ([]InstrumentProfile, error)

	// GetProfile returns the vendor's descriptor for a symbol, or
	// (nil, nil) when the vendor has no record.
	GetProfile(ctx context.Context, symbol string) (*InstrumentProfile, error)
}

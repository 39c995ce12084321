package contracts

import (
	"context"
	"time"
)

// Repository interfaces are defined here; implementations live in
// internal/store. Engines depend on these, never on pgx directly.

// InstrumentRepository manages the instrument universe.
type InstrumentRepository interface {
	GetByID(ctx context.Context, id int64) (*Instrument, error)
	GetBySymbol(ctx context.Context, symbol string) (*Instrument, error)
	ListActive(ctx context.Context) ([]*Instrument, error)
	ListSymbols(ctx context.Context, symbols []string) ([]*Instrument, error)

	// UpdateProfile refreshes the mutable descriptive fields. The symbol
	// and activity flag are never touched by ingestion.
	UpdateProfile(ctx context.Context, id int64, profile *InstrumentProfile) error
}

// PriceRepository manages daily price bars.
type PriceRepository interface {
	GetLatestBar(ctx context.Context, instrumentID int64) (*PriceBar, error)
	GetBarsSince(ctx context.Context, instrumentID int64, since time.Time) ([]*PriceBar, error)

	// GetRecentBars returns up to limit most recent bars, ascending by date.
	GetRecentBars(ctx context.Context, instrumentID int64, limit int) ([]*PriceBar, error)

	// InsertBars inserts a batch, silently skipping rows whose
	// (instrument, date) already exists. Returns the number inserted.
	InsertBars(ctx context.Context, bars []*PriceBar) (int, error)

	// GetLatestBars returns the single most recent bar per instrument for
	// the given universe of symbols, joined with instrument identity.
	GetLatestBars(ctx context.Context, universe []string) ([]*LatestBar, error)
}

// IndicatorRepository manages technical indicator series.
type IndicatorRepository interface {
	// DeletePoints removes every point of (instrument, kind) ahead of a
	// full-replace recomputation.
	DeletePoints(ctx context.Context, instrumentID int64, kind string) error
	InsertPoints(ctx context.Context, points []*IndicatorPoint) error
	GetSeries(ctx context.Context, instrumentID int64, kind string, period int) ([]*IndicatorPoint, error)
}

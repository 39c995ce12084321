package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantinfo/stockrank/internal/contracts"
)

// PriceRepository implements contracts.PriceRepository over the
// stock_prices table. Uniqueness on (stock_id, date) makes concurrent
// ingestion of different instruments safe without a global lock.
type PriceRepository struct {
	pool *pgxpool.Pool
}

// NewPriceRepository creates a new price repository.
func NewPriceRepository(pool *pgxpool.Pool) *PriceRepository {
	return &PriceRepository{pool: pool}
}

// GetLatestBar retrieves the most recent bar for an instrument.
func (r *PriceRepository) GetLatestBar(ctx context.Context, instrumentID int64) (*contracts.PriceBar, error) {
	query := `
		SELECT stock_id, date, open, high, low, close, volume, adjusted_close
		FROM stock_prices
		WHERE stock_id = $1
		ORDER BY date DESC
		LIMIT 1
	`

	var b contracts.PriceBar
	err := r.pool.QueryRow(ctx, query, instrumentID).Scan(
		&b.InstrumentID, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.AdjustedClose,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBarsSince retrieves bars on or after a date, ascending.
func (r *PriceRepository) GetBarsSince(ctx context.Context, instrumentID int64, since time.Time) ([]*contracts.PriceBar, error) {
	query := `
		SELECT stock_id, date, open, high, low, close, volume, adjusted_close
		FROM stock_prices
		WHERE stock_id = $1 AND date >= $2
		ORDER BY date ASC
	`

	rows, err := r.pool.Query(ctx, query, instrumentID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBars(rows)
}

// GetRecentBars returns up to limit most recent bars, ascending by date.
func (r *PriceRepository) GetRecentBars(ctx context.Context, instrumentID int64, limit int) ([]*contracts.PriceBar, error) {
	query := `
		SELECT stock_id, date, open, high, low, close, volume, adjusted_close
		FROM (
			SELECT stock_id, date, open, high, low, close, volume, adjusted_close
			FROM stock_prices
			WHERE stock_id = $1
			ORDER BY date DESC
			LIMIT $2
		) recent
		ORDER BY date ASC
	`

	rows, err := r.pool.Query(ctx, query, instrumentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBars(rows)
}

// InsertBars inserts a batch, skipping (stock_id, date) duplicates.
// Corrections to already-stored bars are out of band, so conflicts are
// DO NOTHING rather than an upsert.
func (r *PriceRepository) InsertBars(ctx context.Context, bars []*contracts.PriceBar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO stock_prices (stock_id, date, open, high, low, close, volume, adjusted_close)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (stock_id, date) DO NOTHING
	`
	for _, b := range bars {
		batch.Queue(query, b.InstrumentID, b.Date, b.Open, b.High, b.Low, b.Close, b.Volume, b.AdjustedClose)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range bars {
		tag, err := results.Exec()
		if err != nil {
			return inserted, err
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// GetLatestBars returns the most recent bar per instrument for the given
// universe, joined with instrument identity for ranking.
func (r *PriceRepository) GetLatestBars(ctx context.Context, universe []string) ([]*contracts.LatestBar, error) {
	if len(universe) == 0 {
		return nil, nil
	}

	query := `
		SELECT DISTINCT ON (s.symbol)
			s.symbol, s.name, s.sector, s.market_cap,
			sp.date, sp.open, sp.high, sp.low, sp.close, sp.volume
		FROM stocks s
		INNER JOIN stock_prices sp ON sp.stock_id = s.id
		WHERE s.symbol = ANY($1) AND s.is_active = TRUE
		ORDER BY s.symbol ASC, sp.date DESC
	`

	rows, err := r.pool.Query(ctx, query, universe)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []*contracts.LatestBar
	for rows.Next() {
		var b contracts.LatestBar
		if err := rows.Scan(
			&b.Symbol, &b.Name, &b.Sector, &b.MarketCap,
			&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume,
		); err != nil {
			return nil, err
		}
		bars = append(bars, &b)
	}
	return bars, rows.Err()
}

func scanBars(rows pgx.Rows) ([]*contracts.PriceBar, error) {
	var bars []*contracts.PriceBar
	for rows.Next() {
		var b contracts.PriceBar
		if err := rows.Scan(
			&b.InstrumentID, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.AdjustedClose,
		); err != nil {
			return nil, err
		}
		bars = append(bars, &b)
	}
	return bars, rows.Err()
}

package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantinfo/stockrank/internal/contracts"
)

// IndicatorRepository implements contracts.IndicatorRepository over the
// technical_indicators table.
type IndicatorRepository struct {
	pool *pgxpool.Pool
}

// NewIndicatorRepository creates a new indicator repository.
func NewIndicatorRepository(pool *pgxpool.Pool) *IndicatorRepository {
	return &IndicatorRepository{pool: pool}
}

// DeletePoints removes all points of one indicator kind for an instrument.
// Recomputation is a full replace, so the delete and the following insert
// do not need to share a transaction: a crash in between only loses a
// series the next run rewrites from scratch.
func (r *IndicatorRepository) DeletePoints(ctx context.Context, instrumentID int64, kind string) error {
	query := `
		DELETE FROM technical_indicators
		WHERE stock_id = $1 AND indicator_type = $2
	`

	_, err := r.pool.Exec(ctx, query, instrumentID, kind)
	return err
}

// InsertPoints inserts a batch of indicator points.
func (r *IndicatorRepository) InsertPoints(ctx context.Context, points []*contracts.IndicatorPoint) error {
	if len(points) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO technical_indicators (stock_id, date, indicator_type, period, value, signal_value)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, p := range points {
		batch.Queue(query, p.InstrumentID, p.Date, p.Kind, p.Period, p.Value, p.SignalValue)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range points {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// GetSeries returns one indicator series ascending by date.
func (r *IndicatorRepository) GetSeries(ctx context.Context, instrumentID int64, kind string, period int) ([]*contracts.IndicatorPoint, error) {
	query := `
		SELECT stock_id, date, indicator_type, period, value, signal_value
		FROM technical_indicators
		WHERE stock_id = $1 AND indicator_type = $2 AND period = $3
		ORDER BY date ASC
	`

	rows, err := r.pool.Query(ctx, query, instrumentID, kind, period)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []*contracts.IndicatorPoint
	for rows.Next() {
		var p contracts.IndicatorPoint
		if err := rows.Scan(&p.InstrumentID, &p.Date, &p.Kind, &p.Period, &p.Value, &p.SignalValue); err != nil {
			return nil, err
		}
		points = append(points, &p)
	}
	return points, rows.Err()
}

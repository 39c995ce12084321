package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantinfo/stockrank/internal/contracts"
)

// InstrumentRepository implements contracts.InstrumentRepository over
// the stocks table.
type InstrumentRepository struct {
	pool *pgxpool.Pool
}

// NewInstrumentRepository creates a new instrument repository.
func NewInstrumentRepository(pool *pgxpool.Pool) *InstrumentRepository {
	return &InstrumentRepository{pool: pool}
}

const instrumentColumns = `id, symbol, name, exchange, sector, industry, market_cap, is_active`

func scanInstrument(row pgx.Row) (*contracts.Instrument, error) {
	var inst contracts.Instrument
	err := row.Scan(
		&inst.ID, &inst.Symbol, &inst.Name, &inst.Exchange,
		&inst.Sector, &inst.Industry, &inst.MarketCap, &inst.IsActive,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

// GetByID retrieves an instrument by primary key.
func (r *InstrumentRepository) GetByID(ctx context.Context, id int64) (*contracts.Instrument, error) {
	query := fmt.Sprintf(`SELECT %s FROM stocks WHERE id = $1`, instrumentColumns)
	return scanInstrument(r.pool.QueryRow(ctx, query, id))
}

// GetBySymbol retrieves an instrument by its ticker symbol.
func (r *InstrumentRepository) GetBySymbol(ctx context.Context, symbol string) (*contracts.Instrument, error) {
	query := fmt.Sprintf(`SELECT %s FROM stocks WHERE symbol = $1`, instrumentColumns)
	return scanInstrument(r.pool.QueryRow(ctx, query, symbol))
}

// ListActive returns all active instruments ordered by symbol.
func (r *InstrumentRepository) ListActive(ctx context.Context) ([]*contracts.Instrument, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM stocks
		WHERE is_active = TRUE
		ORDER BY symbol ASC
	`, instrumentColumns)

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instruments []*contracts.Instrument
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, err
		}
		instruments = append(instruments, inst)
	}
	return instruments, rows.Err()
}

// ListSymbols returns the instruments matching the given symbols.
// Unknown symbols are simply absent from the result.
func (r *InstrumentRepository) ListSymbols(ctx context.Context, symbols []string) ([]*contracts.Instrument, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT %s FROM stocks
		WHERE symbol = ANY($1)
		ORDER BY symbol ASC
	`, instrumentColumns)

	rows, err := r.pool.Query(ctx, query, symbols)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instruments []*contracts.Instrument
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, err
		}
		instruments = append(instruments, inst)
	}
	return instruments, rows.Err()
}

// UpdateProfile refreshes descriptive fields from a provider profile.
// Empty strings from the vendor do not clobber known values.
func (r *InstrumentRepository) UpdateProfile(ctx context.Context, id int64, profile *contracts.InstrumentProfile) error {
	query := `
		UPDATE stocks SET
			name       = COALESCE(NULLIF($2, ''), name),
			exchange   = COALESCE(NULLIF($3, ''), exchange),
			sector     = COALESCE(NULLIF($4, ''), sector),
			industry   = COALESCE(NULLIF($5, ''), industry),
			market_cap = COALESCE($6, market_cap),
			updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query,
		id, profile.Name, profile.Exchange, profile.Sector, profile.Industry, profile.MarketCap,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return contracts.ErrNotFound
	}
	return nil
}

package indicator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantinfo/stockrank/internal/contracts"
	"github.com/quantinfo/stockrank/pkg/logger"
)

func TestMovingAverage(t *testing.T) {
	closes := []float64{10, 12, 11, 13, 15}

	ma := MovingAverage(closes, 3)
	require.Len(t, ma, 5)

	// Undefined until a full window exists.
	assert.Nil(t, ma[0])
	assert.Nil(t, ma[1])

	require.NotNil(t, ma[2])
	assert.InDelta(t, 11.0, *ma[2], 1e-9)
	require.NotNil(t, ma[3])
	assert.InDelta(t, 12.0, *ma[3], 1e-9)
	require.NotNil(t, ma[4])
	assert.InDelta(t, 13.0, *ma[4], 1e-9)
}

func TestMovingAverage_PeriodLongerThanSeries(t *testing.T) {
	ma := MovingAverage([]float64{10, 12}, 5)
	require.Len(t, ma, 2)
	assert.Nil(t, ma[0])
	assert.Nil(t, ma[1])
}

func TestRSI_Bounds(t *testing.T) {
	closes := []float64{
		44.34, 44.09, 44.15, 43.61, 44.33, 44.83, 45.10, 45.42,
		45.84, 46.08, 45.89, 46.03, 45.61, 46.28, 46.28, 46.00,
		46.03, 46.41, 46.22, 45.64,
	}

	rsi := RSI(closes, 14)
	require.Len(t, rsi, len(closes))

	for i := 0; i < 14; i++ {
		assert.Nil(t, rsi[i], "position %d should be undefined", i)
	}
	for i := 14; i < len(closes); i++ {
		require.NotNil(t, rsi[i])
		assert.GreaterOrEqual(t, *rsi[i], 0.0)
		assert.LessOrEqual(t, *rsi[i], 100.0)
	}
}

func TestRSI_AllGainsIsHundred(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}

	rsi := RSI(closes, 14)
	for i := 14; i < len(closes); i++ {
		require.NotNil(t, rsi[i])
		assert.Equal(t, 100.0, *rsi[i])
	}
}

func TestRSI_WilderRecurrence(t *testing.T) {
	// One gain of 14 in the seed window, then a single loss of 7.
	closes := make([]float64, 16)
	for i := range closes {
		closes[i] = 100
	}
	closes[1] = 114
	for i := 2; i < 15; i++ {
		closes[i] = 114
	}
	closes[15] = 107

	rsi := RSI(closes, 14)

	// Seed: avgGain = 14/14 = 1, avgLoss = 0, so RSI = 100.
	require.NotNil(t, rsi[14])
	assert.Equal(t, 100.0, *rsi[14])

	// Next step: avgGain = (1*13+0)/14, avgLoss = (0*13+7)/14 = 0.5.
	// RS = (13/14)/0.5, RSI = 100 - 100/(1+RS).
	avgGain := 13.0 / 14.0
	avgLoss := 0.5
	want := 100 - 100/(1+avgGain/avgLoss)
	require.NotNil(t, rsi[15])
	assert.InDelta(t, want, *rsi[15], 1e-9)
}

func TestRSI_TooShort(t *testing.T) {
	rsi := RSI([]float64{1, 2, 3}, 14)
	require.Len(t, rsi, 3)
	for _, v := range rsi {
		assert.Nil(t, v)
	}
}

// fakeStore implements the three repositories the engine touches.
type fakeStore struct {
	instruments []*contracts.Instrument
	bars        map[int64][]*contracts.PriceBar
	deleted     []string
	points      map[string][]*contracts.IndicatorPoint
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		bars:   make(map[int64][]*contracts.PriceBar),
		points: make(map[string][]*contracts.IndicatorPoint),
	}
}

func (s *fakeStore) GetByID(ctx context.Context, id int64) (*contracts.Instrument, error) {
	return nil, contracts.ErrNotFound
}

func (s *fakeStore) GetBySymbol(ctx context.Context, symbol string) (*contracts.Instrument, error) {
	return nil, contracts.ErrNotFound
}

func (s *fakeStore) ListActive(ctx context.Context) ([]*contracts.Instrument, error) {
	return s.instruments, nil
}

func (s *fakeStore) ListSymbols(ctx context.Context, symbols []string) ([]*contracts.Instrument, error) {
	return nil, nil
}

func (s *fakeStore) UpdateProfile(ctx context.Context, id int64, profile *contracts.InstrumentProfile) error {
	return nil
}

func (s *fakeStore) GetLatestBar(ctx context.Context, instrumentID int64) (*contracts.PriceBar, error) {
	return nil, contracts.ErrNotFound
}

func (s *fakeStore) GetBarsSince(ctx context.Context, instrumentID int64, since time.Time) ([]*contracts.PriceBar, error) {
	return nil, nil
}

func (s *fakeStore) GetRecentBars(ctx context.Context, instrumentID int64, limit int) ([]*contracts.PriceBar, error) {
	bars := s.bars[instrumentID]
	if len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

func (s *fakeStore) InsertBars(ctx context.Context, bars []*contracts.PriceBar) (int, error) {
	return 0, nil
}

func (s *fakeStore) GetLatestBars(ctx context.Context, universe []string) ([]*contracts.LatestBar, error) {
	return nil, nil
}

func (s *fakeStore) DeletePoints(ctx context.Context, instrumentID int64, kind string) error {
	s.deleted = append(s.deleted, kind)
	s.points[kind] = nil
	return nil
}

func (s *fakeStore) InsertPoints(ctx context.Context, points []*contracts.IndicatorPoint) error {
	for _, point := range points {
		s.points[point.Kind] = append(s.points[point.Kind], point)
	}
	return nil
}

func (s *fakeStore) GetSeries(ctx context.Context, instrumentID int64, kind string, period int) ([]*contracts.IndicatorPoint, error) {
	return s.points[kind], nil
}

func seedBars(store *fakeStore, instrumentID int64, count int) {
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < count; i++ {
		price := 100 + float64(i%7)
		store.bars[instrumentID] = append(store.bars[instrumentID], &contracts.PriceBar{
			InstrumentID: instrumentID,
			Date:         base.AddDate(0, 0, i),
			Open:         price - 0.5,
			High:         price + 1,
			Low:          price - 1,
			Close:        price,
			Volume:       1_000_000,
		})
	}
}

func TestComputeFor_ReplacesSeries(t *testing.T) {
	store := newFakeStore()
	seedBars(store, 1, 60)
	engine := NewEngine(store, store, store, logger.NewNop())

	require.NoError(t, engine.ComputeFor(context.Background(), 1))

	// Both kinds are replaced, delete before insert.
	assert.ElementsMatch(t, []string{contracts.IndicatorMA, contracts.IndicatorRSI}, store.deleted)

	// 60 bars: MA5 has 56 points, MA10 51, MA20 41, MA50 11.
	assert.Len(t, store.points[contracts.IndicatorMA], 56+51+41+11)
	// RSI(14) defined from position 14 on.
	assert.Len(t, store.points[contracts.IndicatorRSI], 60-14)
}

func TestComputeFor_SkipsLongPeriods(t *testing.T) {
	store := newFakeStore()
	seedBars(store, 1, 30)
	engine := NewEngine(store, store, store, logger.NewNop())

	require.NoError(t, engine.ComputeFor(context.Background(), 1))

	// Period 50 is skipped outright with 30 bars.
	for _, point := range store.points[contracts.IndicatorMA] {
		assert.NotEqual(t, 50, point.Period)
	}
}

func TestComputeFor_InsufficientHistory(t *testing.T) {
	store := newFakeStore()
	seedBars(store, 1, 10)
	engine := NewEngine(store, store, store, logger.NewNop())

	err := engine.ComputeFor(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientHistory)
	assert.Empty(t, store.deleted)
}

func TestComputeAll_Tally(t *testing.T) {
	store := newFakeStore()
	store.instruments = []*contracts.Instrument{
		{ID: 1, Symbol: "AAPL", IsActive: true},
		{ID: 2, Symbol: "QCOM", IsActive: true},
	}
	seedBars(store, 1, 60)
	seedBars(store, 2, 5) // too short, skipped

	engine := NewEngine(store, store, store, logger.NewNop())
	summary, err := engine.ComputeAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Success)
	assert.Equal(t, 1, summary.Failed)

	// Skipped is the informational breakdown of the failure.
	assert.Equal(t, 1, summary.Skipped)
}

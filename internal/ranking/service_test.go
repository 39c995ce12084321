package ranking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantinfo/stockrank/internal/contracts"
	"github.com/quantinfo/stockrank/pkg/config"
	"github.com/quantinfo/stockrank/pkg/logger"
)

// fakePriceRepo serves a fixed latest-bar snapshot.
type fakePriceRepo struct {
	latest []*contracts.LatestBar
}

func (r *fakePriceRepo) GetLatestBar(ctx context.Context, instrumentID int64) (*contracts.PriceBar, error) {
	return nil, contracts.ErrNotFound
}

func (r *fakePriceRepo) GetBarsSince(ctx context.Context, instrumentID int64, since time.Time) ([]*contracts.PriceBar, error) {
	return nil, nil
}

func (r *fakePriceRepo) GetRecentBars(ctx context.Context, instrumentID int64, limit int) ([]*contracts.PriceBar, error) {
	return nil, nil
}

func (r *fakePriceRepo) InsertBars(ctx context.Context, bars []*contracts.PriceBar) (int, error) {
	return 0, nil
}

func (r *fakePriceRepo) GetLatestBars(ctx context.Context, universe []string) ([]*contracts.LatestBar, error) {
	return r.latest, nil
}

func ptr(v float64) *float64 { return &v }

func testConfig() config.RankingConfig {
	return config.RankingConfig{
		Universe:          []string{"AAPL", "QCOM"},
		DefaultLimit:      10,
		ActivityWeight:    0.30,
		VolatilityWeight:  0.25,
		PerformanceWeight: 0.20,
		MarketCapWeight:   0.15,
		PriceWeight:       0.10,
	}
}

func snapshotAAPLQCOM() []*contracts.LatestBar {
	date := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	return []*contracts.LatestBar{
		{
			Symbol: "AAPL", Name: "Apple Inc", Date: date,
			Open: 225.0, High: 229.0, Low: 224.0, Close: 227.5,
			Volume: 52_000_000, MarketCap: ptr(3.4e12),
		},
		{
			Symbol: "QCOM", Name: "Qualcomm Inc", Date: date,
			Open: 170.0, High: 171.0, Low: 167.0, Close: 168.2,
			Volume: 6_000_000, MarketCap: ptr(1.8e11),
		},
	}
}

func newTestService(latest []*contracts.LatestBar) *Service {
	return NewService(&fakePriceRepo{latest: latest}, testConfig(), logger.NewNop())
}

func TestRank_ActivityMarketCapPrice(t *testing.T) {
	service := newTestService(snapshotAAPLQCOM())

	for _, dimension := range []string{DimensionActivity, DimensionMarketCap, DimensionPrice} {
		entries, err := service.Rank(context.Background(), dimension, 10)
		require.NoError(t, err, dimension)
		require.Len(t, entries, 2, dimension)
		assert.Equal(t, "AAPL", entries[0].Symbol, dimension)
		assert.Equal(t, "QCOM", entries[1].Symbol, dimension)
		assert.Equal(t, 1, entries[0].Rank, dimension)
		assert.Equal(t, 2, entries[1].Rank, dimension)
	}
}

func TestRank_ActivityScore(t *testing.T) {
	service := newTestService(snapshotAAPLQCOM())

	entries, err := service.Rank(context.Background(), DimensionActivity, 10)
	require.NoError(t, err)

	// AAPL: volume part min(0.52*70, 70) = 36.4;
	// turnover 52e6*227.5 = 1.183e10, part min(1.183e10/5e10*30, 30) = 7.098.
	assert.InDelta(t, 36.4+7.098, entries[0].Score, 0.01)
}

func TestRank_PerformanceDirections(t *testing.T) {
	service := newTestService(snapshotAAPLQCOM())

	entries, err := service.Rank(context.Background(), DimensionPerformance, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// AAPL +1.11% sorts above QCOM -1.06%.
	assert.Equal(t, "AAPL", entries[0].Symbol)
	assert.Equal(t, DirectionUp, entries[0].Direction)
	assert.InDelta(t, 1.11, entries[0].PercentChange, 0.01)

	assert.Equal(t, "QCOM", entries[1].Symbol)
	assert.Equal(t, DirectionDown, entries[1].Direction)
	assert.InDelta(t, -1.06, entries[1].PercentChange, 0.01)
}

func TestRank_MarketCapExcludesNull(t *testing.T) {
	bars := snapshotAAPLQCOM()
	bars[1].MarketCap = nil
	service := newTestService(bars)

	entries, err := service.Rank(context.Background(), DimensionMarketCap, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "AAPL", entries[0].Symbol)
	assert.InDelta(t, 100.0, entries[0].Score, 1e-9) // 3.4e12 caps at 100
}

func TestRank_MarketCapScore(t *testing.T) {
	bars := snapshotAAPLQCOM()
	bars[0].MarketCap = ptr(1.5e12)
	service := newTestService(bars)

	entries, err := service.Rank(context.Background(), DimensionMarketCap, 10)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, entries[0].Score, 1e-9)
}

func TestRank_VolatilityScore(t *testing.T) {
	service := newTestService(snapshotAAPLQCOM())

	entries, err := service.Rank(context.Background(), DimensionVolatility, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// QCOM: range (171-167)/168.2*100 = 2.378%, above AAPL's
	// (229-224)/227.5*100 = 2.198%.
	assert.Equal(t, "QCOM", entries[0].Symbol)

	// QCOM score: range part 2.378*10 = 23.78 (under the 60 cap),
	// move part 1.0588*10 = 10.588 (under the 40 cap).
	assert.InDelta(t, 23.78+10.59, entries[0].Score, 0.05)
}

func TestRank_TieBreakBySymbol(t *testing.T) {
	date := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	bars := []*contracts.LatestBar{
		{Symbol: "MSFT", Date: date, Open: 100, High: 101, Low: 99, Close: 100, Volume: 1000},
		{Symbol: "AAPL", Date: date, Open: 100, High: 101, Low: 99, Close: 100, Volume: 1000},
	}
	service := newTestService(bars)

	entries, err := service.Rank(context.Background(), DimensionActivity, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "AAPL", entries[0].Symbol)
	assert.Equal(t, "MSFT", entries[1].Symbol)
}

func TestRank_EmptySnapshotIsValid(t *testing.T) {
	service := newTestService(nil)

	entries, err := service.Rank(context.Background(), DimensionActivity, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRank_UnknownDimension(t *testing.T) {
	service := newTestService(snapshotAAPLQCOM())

	_, err := service.Rank(context.Background(), "bogus", 10)
	require.Error(t, err)
}

func TestRank_LimitTruncatesAndReranks(t *testing.T) {
	date := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	bars := []*contracts.LatestBar{
		{Symbol: "A", Date: date, Open: 10, High: 11, Low: 9, Close: 10, Volume: 300},
		{Symbol: "B", Date: date, Open: 10, High: 11, Low: 9, Close: 10, Volume: 200},
		{Symbol: "C", Date: date, Open: 10, High: 11, Low: 9, Close: 10, Volume: 100},
	}
	service := newTestService(bars)

	entries, err := service.Rank(context.Background(), DimensionActivity, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, []int{1, 2}, []int{entries[0].Rank, entries[1].Rank})
	assert.Equal(t, "A", entries[0].Symbol)
	assert.Equal(t, "B", entries[1].Symbol)
}

func TestComposite_Ordering(t *testing.T) {
	service := newTestService(snapshotAAPLQCOM())

	entries, err := service.Rank(context.Background(), DimensionComposite, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// AAPL wins activity, market-cap, price and performance; QCOM only
	// volatility. With limit 10 rank 1 → 100, rank 2 → 90.
	// AAPL: 100*(0.30+0.20+0.15+0.10) + 90*0.25 = 97.5
	// QCOM: 90*(0.30+0.20+0.15+0.10) + 100*0.25 = 92.5
	assert.Equal(t, "AAPL", entries[0].Symbol)
	assert.InDelta(t, 97.5, entries[0].Score, 1e-9)
	assert.Equal(t, "QCOM", entries[1].Symbol)
	assert.InDelta(t, 92.5, entries[1].Score, 1e-9)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, 2, entries[1].Rank)
}

func TestComposite_WeightsDoNotChangeDimensionRanks(t *testing.T) {
	repo := &fakePriceRepo{latest: snapshotAAPLQCOM()}

	cfg := testConfig()
	base := NewService(repo, cfg, logger.NewNop())

	flipped := cfg
	flipped.ActivityWeight = 0.10
	flipped.VolatilityWeight = 0.40
	alt := NewService(repo, flipped, logger.NewNop())

	for _, dimension := range []string{DimensionActivity, DimensionVolatility, DimensionPerformance} {
		before, err := base.Rank(context.Background(), dimension, 10)
		require.NoError(t, err)
		after, err := alt.Rank(context.Background(), dimension, 10)
		require.NoError(t, err)
		assert.Equal(t, before, after, dimension)
	}

	// The composite order can flip once volatility dominates.
	composite, err := alt.Rank(context.Background(), DimensionComposite, 10)
	require.NoError(t, err)
	// AAPL: 100*(0.10+0.20+0.15+0.10) + 90*0.40 = 91.0
	// QCOM: 90*(0.10+0.20+0.15+0.10) + 100*0.40 = 89.5
	assert.InDelta(t, 91.0, composite[0].Score, 1e-9)
}

func TestNormalizedRank(t *testing.T) {
	assert.InDelta(t, 100.0, normalizedRank(1, 10), 1e-9)
	assert.InDelta(t, 10.0, normalizedRank(10, 10), 1e-9)
	assert.InDelta(t, 0.0, normalizedRank(1, 0), 1e-9)
}

package ranking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/quantinfo/stockrank/internal/contracts"
	"github.com/quantinfo/stockrank/pkg/config"
	"github.com/quantinfo/stockrank/pkg/logger"
)

// Dimension identifiers as they appear in API paths and the CLI.
const (
	DimensionActivity    = "activity"
	DimensionVolatility  = "volatility"
	DimensionPerformance = "performance"
	DimensionMarketCap   = "market-cap"
	DimensionPrice       = "price"
	DimensionComposite   = "comprehensive"
)

// Dimensions lists every valid dimension identifier.
var Dimensions = []string{
	DimensionActivity,
	DimensionVolatility,
	DimensionPerformance,
	DimensionMarketCap,
	DimensionPrice,
	DimensionComposite,
}

// ValidDimension reports whether the identifier names a dimension.
func ValidDimension(dimension string) bool {
	for _, d := range Dimensions {
		if d == dimension {
			return true
		}
	}
	return false
}

// Entry is one row of a ranking result. Direction is set only for the
// performance dimension; MarketCap only where the instrument has one.
type Entry struct {
	Rank          int      `json:"rank"`
	Symbol        string   `json:"symbol"`
	Name          string   `json:"name"`
	Close         float64  `json:"close"`
	Volume        int64    `json:"volume"`
	PercentChange float64  `json:"percent_change"`
	Score         float64  `json:"score"`
	Direction     string   `json:"direction,omitempty"`
	MarketCap     *float64 `json:"market_cap,omitempty"`
	Date          string   `json:"date"`

	// sortValue is the raw ordering key for the entry's dimension,
	// distinct from the display score.
	sortValue float64
}

// Service ranks the configured universe over each instrument's single
// most recent bar. An empty result means no data yet, never an error.
type Service struct {
	prices contracts.PriceRepository
	cfg    config.RankingConfig
	logger *logger.Logger
}

// NewService creates a new ranking Service.
func NewService(prices contracts.PriceRepository, cfg config.RankingConfig, log *logger.Logger) *Service {
	return &Service{
		prices: prices,
		cfg:    cfg,
		logger: log.WithField("module", "ranking"),
	}
}

// Rank computes the named dimension over the universe snapshot.
// limit <= 0 falls back to the configured default.
func (s *Service) Rank(ctx context.Context, dimension string, limit int) ([]Entry, error) {
	if !ValidDimension(dimension) {
		return nil, fmt.Errorf("unknown ranking dimension %q", dimension)
	}
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}

	bars, err := s.prices.GetLatestBars(ctx, s.cfg.Universe)
	if err != nil {
		return nil, fmt.Errorf("get latest bars: %w", err)
	}
	if len(bars) == 0 {
		return []Entry{}, nil
	}

	if dimension == DimensionComposite {
		return s.composite(bars, limit), nil
	}
	return rankDimension(bars, dimension, limit), nil
}

// rankDimension builds one dimension's ordered list.
func rankDimension(bars []*contracts.LatestBar, dimension string, limit int) []Entry {
	entries := make([]Entry, 0, len(bars))
	for _, bar := range bars {
		if dimension == DimensionMarketCap && bar.MarketCap == nil {
			continue
		}
		entries = append(entries, newEntry(bar, dimension))
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].sortValue != entries[j].sortValue {
			return entries[i].sortValue > entries[j].sortValue
		}
		return entries[i].Symbol < entries[j].Symbol
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

func newEntry(bar *contracts.LatestBar, dimension string) Entry {
	entry := Entry{
		Symbol:        bar.Symbol,
		Name:          bar.Name,
		Close:         bar.Close,
		Volume:        bar.Volume,
		PercentChange: movePct(bar.Open, bar.Close),
		MarketCap:     bar.MarketCap,
		Date:          bar.Date.Format(time.DateOnly),
	}

	switch dimension {
	case DimensionActivity:
		entry.Score = activityScore(bar.Volume, bar.Close)
		entry.sortValue = float64(bar.Volume)
	case DimensionVolatility:
		entry.Score = volatilityScore(bar.Open, bar.High, bar.Low, bar.Close)
		entry.sortValue = volatilityPct(bar.High, bar.Low, bar.Close)
	case DimensionPerformance:
		entry.Score = abs(entry.PercentChange)
		entry.Direction = direction(bar.Open, bar.Close)
		entry.sortValue = entry.PercentChange
	case DimensionMarketCap:
		entry.Score = marketCapScore(*bar.MarketCap)
		entry.sortValue = *bar.MarketCap
	case DimensionPrice:
		entry.Score = bar.Close
		entry.sortValue = bar.Close
	}
	return entry
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// composite blends the five dimension rankings into one list. Each
// instrument's per-dimension rank is normalized to 0..100 and weighted;
// absence from a dimension contributes zero.
func (s *Service) composite(bars []*contracts.LatestBar, limit int) []Entry {
	weights := map[string]float64{
		DimensionActivity:    s.cfg.ActivityWeight,
		DimensionVolatility:  s.cfg.VolatilityWeight,
		DimensionPerformance: s.cfg.PerformanceWeight,
		DimensionMarketCap:   s.cfg.MarketCapWeight,
		DimensionPrice:       s.cfg.PriceWeight,
	}

	scores := make(map[string]float64)
	seen := make(map[string]Entry)
	for dimension, weight := range weights {
		for _, entry := range rankDimension(bars, dimension, limit) {
			scores[entry.Symbol] += normalizedRank(entry.Rank, limit) * weight
			if _, ok := seen[entry.Symbol]; !ok {
				seen[entry.Symbol] = entry
			}
		}
	}

	entries := make([]Entry, 0, len(scores))
	for symbol, score := range scores {
		entry := seen[symbol]
		entry.Rank = 0
		entry.Score = score
		entry.Direction = ""
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Symbol < entries[j].Symbol
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

package ranking

import "math"

// Heuristic score scales. These are product tuning knobs, kept in one
// place so a recalibration touches nothing else.
const (
	// Activity: volume contributes up to 70 points, turnover up to 30.
	activityVolumeScale   = 100_000_000
	activityVolumeCap     = 70
	activityTurnoverScale = 50_000_000_000
	activityTurnoverCap   = 30

	// Volatility: intraday range up to 60 points, open-to-close move up
	// to 40.
	volatilityRangeFactor = 10
	volatilityRangeCap    = 60
	volatilityMoveFactor  = 10
	volatilityMoveCap     = 40

	// MarketCap: full score at three trillion dollars.
	marketCapScale = 3e12
	marketCapCap   = 100
)

// Direction tags for the performance dimension.
const (
	DirectionUp   = "UP"
	DirectionDown = "DOWN"
	DirectionFlat = "FLAT"
)

func capped(v, max float64) float64 {
	return math.Min(v, max)
}

// activityScore blends raw volume with dollar turnover.
func activityScore(volume int64, closePrice float64) float64 {
	v := float64(volume)
	turnover := v * closePrice
	return capped(v/activityVolumeScale*activityVolumeCap, activityVolumeCap) +
		capped(turnover/activityTurnoverScale*activityTurnoverCap, activityTurnoverCap)
}

// volatilityPct is the intraday range relative to the close.
func volatilityPct(high, low, closePrice float64) float64 {
	if closePrice == 0 {
		return 0
	}
	return (high - low) / closePrice * 100
}

// movePct is the open-to-close change in percent.
func movePct(open, closePrice float64) float64 {
	if open == 0 {
		return 0
	}
	return (closePrice - open) / open * 100
}

func volatilityScore(open, high, low, closePrice float64) float64 {
	return capped(volatilityPct(high, low, closePrice)*volatilityRangeFactor, volatilityRangeCap) +
		capped(math.Abs(movePct(open, closePrice))*volatilityMoveFactor, volatilityMoveCap)
}

func direction(open, closePrice float64) string {
	switch {
	case closePrice > open:
		return DirectionUp
	case closePrice < open:
		return DirectionDown
	default:
		return DirectionFlat
	}
}

func marketCapScore(marketCap float64) float64 {
	return capped(marketCap/marketCapScale*marketCapCap, marketCapCap)
}

// normalizedRank maps a 1-based rank within a result of size limit to
// a 0..100 scale, best rank highest.
func normalizedRank(rank, limit int) float64 {
	if limit <= 0 {
		return 0
	}
	return float64(limit-rank+1) / float64(limit) * 100
}

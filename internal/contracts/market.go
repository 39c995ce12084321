package contracts

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by repositories when a row does not exist.
var ErrNotFound = errors.New("not found")

// Instrument is a tradable equity. The symbol is immutable; the descriptive
// fields may be refreshed during ingestion when a provider returns richer
// metadata.
type Instrument struct {
	ID        int64
	Symbol    string
	Name      string
	Exchange  string
	Sector    string
	Industry  string
	MarketCap *float64 // nil when unknown
	IsActive  bool
}

// PriceBar is one trading day's OHLCV record for an instrument.
// Bars are written once by ingestion and never deleted.
type PriceBar struct {
	InstrumentID  int64
	Date          time.Time
	Open          float64
	High          float64
	Low           float64
	Close         float64
	Volume        int64
	AdjustedClose *float64
}

// Validate enforces the OHLC sanity invariant: all prices positive,
// low <= open <= high, low <= close <= high, volume non-negative.
// Records failing validation must never reach storage.
func (b *PriceBar) Validate() error {
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return fmt.Errorf("non-positive price (o=%.4f h=%.4f l=%.4f c=%.4f)",
			b.Open, b.High, b.Low, b.Close)
	}
	if b.Low > b.Open || b.Open > b.High {
		return fmt.Errorf("open %.4f outside [low=%.4f, high=%.4f]", b.Open, b.Low, b.High)
	}
	if b.Low > b.Close || b.Close > b.High {
		return fmt.Errorf("close %.4f outside [low=%.4f, high=%.4f]", b.Close, b.Low, b.High)
	}
	if b.Volume < 0 {
		return fmt.Errorf("negative volume %d", b.Volume)
	}
	return nil
}

// Quote is a best-effort latest snapshot for a symbol.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// Indicator kinds computed by the indicator engine.
const (
	IndicatorMA  = "MA"
	IndicatorRSI = "RSI"
)

// IndicatorPoint is one computed technical-indicator value. A recomputation
// for the same (instrument, kind) replaces the full prior series.
type IndicatorPoint struct {
	InstrumentID int64
	Date         time.Time
	Kind         string // IndicatorMA, IndicatorRSI
	Period       int
	Value        float64
	SignalValue  *float64 // secondary line for indicators that carry one
}

// InstrumentProfile is a descriptor returned by provider search and profile
// lookups. Fields a vendor does not supply stay zero-valued.
type InstrumentProfile struct {
	Symbol      string   `json:"symbol"`
	Name        string   `json:"name"`
	Exchange    string   `json:"exchange"`
	Sector      string   `json:"sector,omitempty"`
	Industry    string   `json:"industry,omitempty"`
	MarketCap   *float64 `json:"market_cap,omitempty"`
	Currency    string   `json:"currency"`
	Country     string   `json:"country,omitempty"`
	Description string   `json:"description,omitempty"`
}

// LatestBar is the read model for ranking: the most recent price bar per
// instrument joined with identity and market cap. It is never persisted.
type LatestBar struct {
	Symbol    string
	Name      string
	Sector    string
	Date      time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
	MarketCap *float64
}

package indicator

import (
	"context"
	"errors"
	"fmt"

	"github.com/quantinfo/stockrank/internal/contracts"
	"github.com/quantinfo/stockrank/pkg/logger"
)

// ErrInsufficientHistory signals that an instrument has too few bars
// for any indicator to be meaningful.
var ErrInsufficientHistory = errors.New("insufficient price history")

const (
	// minBars is the floor below which computation is skipped entirely.
	minBars = 20

	// recentBarWindow bounds how much history each recomputation loads.
	recentBarWindow = 100

	rsiPeriod = 14
)

// maPeriods are the moving-average windows computed for every
// instrument. Periods longer than the loaded history are skipped.
var maPeriods = []int{5, 10, 20, 50}

// Engine computes technical indicator series from stored price bars
// and replaces the persisted series wholesale on each run.
type Engine struct {
	instruments contracts.InstrumentRepository
	prices      contracts.PriceRepository
	indicators  contracts.IndicatorRepository
	logger      *logger.Logger
}

// NewEngine creates a new indicator Engine.
func NewEngine(
	instruments contracts.InstrumentRepository,
	prices contracts.PriceRepository,
	indicators contracts.IndicatorRepository,
	log *logger.Logger,
) *Engine {
	return &Engine{
		instruments: instruments,
		prices:      prices,
		indicators:  indicators,
		logger:      log.WithField("module", "indicator"),
	}
}

// MovingAverage returns the simple moving average series for the given
// period. The first period-1 positions are nil (undefined), and a
// period longer than the series yields all nil.
func MovingAverage(closes []float64, period int) []*float64 {
	out := make([]*float64, len(closes))
	if period < 1 || len(closes) < period {
		return out
	}

	var sum float64
	for i, c := range closes {
		sum += c
		if i >= period {
			sum -= closes[i-period]
		}
		if i >= period-1 {
			avg := sum / float64(period)
			out[i] = &avg
		}
	}
	return out
}

// RSI returns the Wilder-smoothed relative strength index series for
// the given period. The first period positions are nil: the seed
// average needs period+1 closes. A streak with no losses is RSI 100.
func RSI(closes []float64, period int) []*float64 {
	out := make([]*float64, len(closes))
	if period < 1 || len(closes) < period+1 {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		var gain, loss float64
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) *float64 {
	var rsi float64
	if avgLoss == 0 {
		rsi = 100
	} else {
		rs := avgGain / avgLoss
		rsi = 100 - 100/(1+rs)
	}
	return &rsi
}

// ComputeFor recomputes every indicator series for one instrument from
// its most recent bars, replacing the stored series per kind.
func (e *Engine) ComputeFor(ctx context.Context, instrumentID int64) error {
	bars, err := e.prices.GetRecentBars(ctx, instrumentID, recentBarWindow)
	if err != nil {
		return fmt.Errorf("get recent bars: %w", err)
	}
	if len(bars) < minBars {
		return fmt.Errorf("instrument %d has %d bars: %w", instrumentID, len(bars), ErrInsufficientHistory)
	}

	closes := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i] = bar.Close
	}

	maPoints := make([]*contracts.IndicatorPoint, 0, len(bars)*len(maPeriods))
	for _, period := range maPeriods {
		if len(closes) < period {
			continue
		}
		for i, value := range MovingAverage(closes, period) {
			if value == nil {
				continue
			}
			maPoints = append(maPoints, &contracts.IndicatorPoint{
				InstrumentID: instrumentID,
				Date:         bars[i].Date,
				Kind:         contracts.IndicatorMA,
				Period:       period,
				Value:        *value,
			})
		}
	}

	rsiPoints := make([]*contracts.IndicatorPoint, 0, len(bars))
	for i, value := range RSI(closes, rsiPeriod) {
		if value == nil {
			continue
		}
		rsiPoints = append(rsiPoints, &contracts.IndicatorPoint{
			InstrumentID: instrumentID,
			Date:         bars[i].Date,
			Kind:         contracts.IndicatorRSI,
			Period:       rsiPeriod,
			Value:        *value,
		})
	}

	if err := e.replaceSeries(ctx, instrumentID, contracts.IndicatorMA, maPoints); err != nil {
		return err
	}
	if err := e.replaceSeries(ctx, instrumentID, contracts.IndicatorRSI, rsiPoints); err != nil {
		return err
	}

	e.logger.WithFields(map[string]interface{}{
		"instrument_id": instrumentID,
		"ma_points":     len(maPoints),
		"rsi_points":    len(rsiPoints),
	}).Debug("Recomputed indicators")
	return nil
}

func (e *Engine) replaceSeries(ctx context.Context, instrumentID int64, kind string, points []*contracts.IndicatorPoint) error {
	if err := e.indicators.DeletePoints(ctx, instrumentID, kind); err != nil {
		return fmt.Errorf("delete %s points: %w", kind, err)
	}
	if len(points) == 0 {
		return nil
	}
	if err := e.indicators.InsertPoints(ctx, points); err != nil {
		return fmt.Errorf("insert %s points: %w", kind, err)
	}
	return nil
}

// Summary tallies a batch recomputation. Skipped is informational: the
// subset of Failed that lacked the minimum history.
type Summary struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// ComputeAll recomputes indicators for every active instrument.
// Per-instrument failures, including insufficient history, are tallied
// and never abort the pass.
func (e *Engine) ComputeAll(ctx context.Context) (*Summary, error) {
	instruments, err := e.instruments.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active instruments: %w", err)
	}

	summary := &Summary{Total: len(instruments)}
	for _, instrument := range instruments {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		err := e.ComputeFor(ctx, instrument.ID)
		switch {
		case errors.Is(err, ErrInsufficientHistory):
			e.logger.WithField("symbol", instrument.Symbol).Warn("Not enough history for indicators")
			summary.Failed++
			summary.Skipped++
		case err != nil:
			e.logger.WithError(err).WithField("symbol", instrument.Symbol).Error("Failed to compute indicators")
			summary.Failed++
		default:
			summary.Success++
		}
	}

	e.logger.WithFields(map[string]interface{}{
		"total":   summary.Total,
		"success": summary.Success,
		"failed":  summary.Failed,
		"skipped": summary.Skipped,
	}).Info("Indicator recomputation completed")
	return summary, nil
}

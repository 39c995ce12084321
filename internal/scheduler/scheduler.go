package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/quantinfo/stockrank/internal/indicator"
	"github.com/quantinfo/stockrank/internal/ingest"
	"github.com/quantinfo/stockrank/pkg/config"
	"github.com/quantinfo/stockrank/pkg/logger"
)

// Trading window for the intraday task, local time.
const (
	tradingOpenHour    = 9
	tradingOpenMinute  = 30
	tradingCloseHour   = 16
	tradingCloseMinute = 0
)

// Scheduler drives the three periodic tasks: daily history ingestion,
// intraday quote refresh during trading hours, and daily indicator
// recomputation. It owns no business logic; each tick delegates to the
// orchestrator or the indicator engine.
type Scheduler struct {
	orchestrator *ingest.Orchestrator
	indicators   *indicator.Engine
	cfg          config.Config
	logger       *logger.Logger

	dailySchedule     cron.Schedule
	indicatorSchedule cron.Schedule

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Scheduler. Construction fails when a dependency is
// missing or a cron spec does not parse; nothing starts in that case.
func New(
	orchestrator *ingest.Orchestrator,
	indicators *indicator.Engine,
	cfg config.Config,
	log *logger.Logger,
) (*Scheduler, error) {
	if orchestrator == nil {
		return nil, errors.New("scheduler: orchestrator is required")
	}
	if indicators == nil {
		return nil, errors.New("scheduler: indicator engine is required")
	}

	dailySchedule, err := cron.ParseStandard(cfg.Scheduler.DailyIngestSpec)
	if err != nil {
		return nil, fmt.Errorf("parse daily ingest spec %q: %w", cfg.Scheduler.DailyIngestSpec, err)
	}
	indicatorSchedule, err := cron.ParseStandard(cfg.Scheduler.IndicatorSpec)
	if err != nil {
		return nil, fmt.Errorf("parse indicator spec %q: %w", cfg.Scheduler.IndicatorSpec, err)
	}

	return &Scheduler{
		orchestrator:      orchestrator,
		indicators:        indicators,
		cfg:               cfg,
		logger:            log.WithField("module", "scheduler"),
		dailySchedule:     dailySchedule,
		indicatorSchedule: indicatorSchedule,
		done:              make(chan struct{}),
	}, nil
}

// Start launches the periodic loops. It returns immediately; the loops
// run until Stop is called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return s.runDailyIngest(ctx) })
	group.Go(func() error { return s.runIntraday(ctx) })
	group.Go(func() error { return s.runIndicators(ctx) })

	s.logger.WithFields(map[string]interface{}{
		"daily_spec":        s.cfg.Scheduler.DailyIngestSpec,
		"indicator_spec":    s.cfg.Scheduler.IndicatorSpec,
		"intraday_interval": s.cfg.Scheduler.IntradayInterval.String(),
	}).Info("Scheduler started")

	go func() {
		defer close(s.done)
		if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.WithError(err).Error("Scheduler loop exited")
		}
	}()
}

// Stop cancels every loop and blocks until they have all exited.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("Scheduler stopped")
}

// sleepUntil blocks until t or cancellation.
func sleepUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// runDailyIngest refreshes the whole universe at the configured
// wall-clock time. A failed run retries after the error backoff
// instead of waiting a full day.
func (s *Scheduler) runDailyIngest(ctx context.Context) error {
	for {
		next := s.dailySchedule.Next(time.Now())
		s.logger.WithField("next_run", next.Format(time.RFC3339)).Debug("Daily ingest sleeping")
		if err := sleepUntil(ctx, next); err != nil {
			return err
		}
		// Re-check after waking; the timer can fire marginally early.
		if time.Now().Before(next) {
			continue
		}

		summary, _, err := s.orchestrator.RefreshAll(ctx, s.cfg.Ingest.DailyLookbackDays)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.WithError(err).Error("Daily ingest failed, backing off")
			if err := sleepUntil(ctx, time.Now().Add(s.cfg.Scheduler.ErrorBackoff)); err != nil {
				return err
			}
			continue
		}

		s.logger.WithFields(map[string]interface{}{
			"total":   summary.Total,
			"success": summary.Success,
			"failed":  summary.Failed,
		}).Info("Daily ingest completed")

		if summary, err := s.indicators.ComputeAll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.WithError(err).Error("Post-ingest indicator pass failed")
		} else {
			s.logger.WithFields(map[string]interface{}{
				"success": summary.Success,
				"failed":  summary.Failed,
			}).Info("Post-ingest indicator pass completed")
		}
	}
}

// inTradingWindow reports whether t falls inside the Mon-Fri trading
// window.
func inTradingWindow(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	minutes := t.Hour()*60 + t.Minute()
	openAt := tradingOpenHour*60 + tradingOpenMinute
	closeAt := tradingCloseHour*60 + tradingCloseMinute
	return minutes >= openAt && minutes < closeAt
}

// runIntraday refreshes realtime quotes for the ranked universe every
// interval while the market is open; outside the window it idles on a
// longer check cadence.
func (s *Scheduler) runIntraday(ctx context.Context) error {
	for {
		now := time.Now()
		if !inTradingWindow(now) {
			if err := sleepUntil(ctx, now.Add(s.cfg.Scheduler.IntradayIdleCheck)); err != nil {
				return err
			}
			continue
		}

		quotes, err := s.orchestrator.RealtimeQuotes(ctx, s.cfg.Ranking.Universe)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.WithError(err).Error("Intraday quote refresh failed")
		} else {
			s.logger.WithField("quotes", len(quotes)).Debug("Intraday quotes refreshed")
		}

		if err := sleepUntil(ctx, now.Add(s.cfg.Scheduler.IntradayInterval)); err != nil {
			return err
		}
	}
}

// runIndicators recomputes technical indicators at the configured time.
func (s *Scheduler) runIndicators(ctx context.Context) error {
	for {
		next := s.indicatorSchedule.Next(time.Now())
		s.logger.WithField("next_run", next.Format(time.RFC3339)).Debug("Indicator task sleeping")
		if err := sleepUntil(ctx, next); err != nil {
			return err
		}
		if time.Now().Before(next) {
			continue
		}

		summary, err := s.indicators.ComputeAll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.WithError(err).Error("Indicator recomputation failed, backing off")
			if err := sleepUntil(ctx, time.Now().Add(s.cfg.Scheduler.ErrorBackoff)); err != nil {
				return err
			}
			continue
		}

		s.logger.WithFields(map[string]interface{}{
			"total":   summary.Total,
			"success": summary.Success,
			"failed":  summary.Failed,
			"skipped": summary.Skipped,
		}).Info("Indicator recomputation completed")
	}
}

package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantinfo/stockrank/internal/indicator"
	"github.com/quantinfo/stockrank/internal/ingest"
	"github.com/quantinfo/stockrank/pkg/config"
	"github.com/quantinfo/stockrank/pkg/logger"
)

func testSchedulerConfig() config.Config {
	return config.Config{
		Ingest: config.IngestConfig{DailyLookbackDays: 7},
		Scheduler: config.SchedulerConfig{
			DailyIngestSpec:   "0 2 * * *",
			IndicatorSpec:     "0 18 * * *",
			IntradayInterval:  5 * time.Minute,
			IntradayIdleCheck: time.Hour,
			ErrorBackoff:      time.Hour,
		},
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	cfg := testSchedulerConfig()

	_, err := New(nil, &indicator.Engine{}, cfg, logger.NewNop())
	require.Error(t, err)

	_, err = New(&ingest.Orchestrator{}, nil, cfg, logger.NewNop())
	require.Error(t, err)
}

func TestNew_RejectsBadCronSpec(t *testing.T) {
	cfg := testSchedulerConfig()
	cfg.Scheduler.DailyIngestSpec = "not a cron spec"

	_, err := New(&ingest.Orchestrator{}, &indicator.Engine{}, cfg, logger.NewNop())
	require.Error(t, err)
}

func TestDailyScheduleNextRun(t *testing.T) {
	schedule, err := cron.ParseStandard("0 2 * * *")
	require.NoError(t, err)

	// Before 02:00 the next run is today.
	now := time.Date(2026, 8, 31, 1, 0, 0, 0, time.UTC)
	next := schedule.Next(now)
	assert.Equal(t, time.Date(2026, 8, 31, 2, 0, 0, 0, time.UTC), next)

	// After 02:00 it rolls to tomorrow.
	now = time.Date(2026, 8, 31, 3, 0, 0, 0, time.UTC)
	next = schedule.Next(now)
	assert.Equal(t, time.Date(2026, 9, 1, 2, 0, 0, 0, time.UTC), next)
}

func TestInTradingWindow(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"monday mid-session", time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC), true},
		{"monday at open", time.Date(2026, 8, 31, 9, 30, 0, 0, time.UTC), true},
		{"monday before open", time.Date(2026, 8, 31, 9, 29, 0, 0, time.UTC), false},
		{"monday at close", time.Date(2026, 8, 31, 16, 0, 0, 0, time.UTC), false},
		{"friday mid-session", time.Date(2026, 8, 28, 14, 0, 0, 0, time.UTC), true},
		{"saturday", time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC), false},
		{"sunday", time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, inTradingWindow(tt.t))
		})
	}
}

func TestSleepUntil_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sleepUntil(ctx, time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSleepUntil_PastInstantReturnsImmediately(t *testing.T) {
	start := time.Now()
	err := sleepUntil(context.Background(), start.Add(-time.Second))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

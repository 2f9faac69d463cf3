package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-pos/internal/reports"
)

// DashboardSource computes (and caches) the dashboard.
type DashboardSource interface {
	Dashboard(ctx context.Context) (reports.Dashboard, error)
}

// WarmupReportsJob pre-populates the dashboard cache.
type WarmupReportsJob struct {
	Base
	Reports DashboardSource
}

// NewWarmupReportsJob wires dependencies for the warmup handler.
func NewWarmupReportsJob(source DashboardSource, base Base) *WarmupReportsJob {
	return &WarmupReportsJob{Base: base, Reports: source}
}

// Handle processes TaskReportsWarmup tasks.
func (j *WarmupReportsJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	payload, err := decodePayload(t)
	if err != nil {
		return err
	}
	tracker := j.metrics().Track(TaskReportsWarmup)
	defer func() { err = tracker.End(err) }()

	logger := j.logger(TaskReportsWarmup, payload)
	dash, err := j.Reports.Dashboard(ctx)
	if err != nil {
		logger.Error("warm dashboard", slog.Any("error", err))
		return err
	}
	logger.Debug("dashboard warmed", slog.Int("low_stock", dash.LowStockCount), slog.Int("sales_today", dash.Today.Count))
	return nil
}

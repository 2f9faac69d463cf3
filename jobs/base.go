package jobs

import (
	"log/slog"
	"time"

	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Base carries the collaborators every job handler shares.
type Base struct {
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

func (b Base) logger(job string, payload Payload) *slog.Logger {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job), slog.String("request_id", payload.RequestID))
}

func (b Base) metrics() *jobmetrics.Metrics {
	if b.Metrics != nil {
		return b.Metrics
	}
	return defaultJobMetrics
}

func (b Base) now() time.Time {
	if b.clock != nil {
		return b.clock()
	}
	return time.Now().UTC()
}

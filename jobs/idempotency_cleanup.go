package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// KeyCleaner purges idempotency keys older than a retention window.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// CleanupIdempotencyJob deletes stale idempotency keys.
type CleanupIdempotencyJob struct {
	Base
	Keys KeyCleaner
}

// NewCleanupIdempotencyJob wires dependencies for the cleanup handler.
func NewCleanupIdempotencyJob(keys KeyCleaner, base Base) *CleanupIdempotencyJob {
	return &CleanupIdempotencyJob{Base: base, Keys: keys}
}

// Handle processes TaskIdempotencyCleanup tasks.
func (j *CleanupIdempotencyJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	payload, err := decodePayload(t)
	if err != nil {
		return err
	}
	retention := payload.Retention
	if retention <= 0 {
		retention = DefaultIdempotencyRetention
	}
	tracker := j.metrics().Track(TaskIdempotencyCleanup)
	defer func() { err = tracker.End(err) }()

	logger := j.logger(TaskIdempotencyCleanup, payload)
	deleted, err := j.Keys.Cleanup(ctx, retention)
	if err != nil {
		logger.Error("cleanup idempotency keys", slog.Any("error", err))
		return err
	}
	j.metrics().AddProcessed(TaskIdempotencyCleanup, int(deleted))
	logger.Info("idempotency keys purged", slog.Int64("deleted", deleted), slog.Duration("retention", retention))
	return nil
}

package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// ReservationExpirer releases reservations whose expiry has passed.
type ReservationExpirer interface {
	ExpireDue(ctx context.Context, now time.Time) (int, error)
}

// ExpireReservationsJob cancels due reservations and frees their held stock.
type ExpireReservationsJob struct {
	Base
	Reservations ReservationExpirer
}

// NewExpireReservationsJob wires dependencies for the expiry handler.
func NewExpireReservationsJob(expirer ReservationExpirer, base Base) *ExpireReservationsJob {
	return &ExpireReservationsJob{Base: base, Reservations: expirer}
}

// Handle processes TaskReservationsExpire tasks.
func (j *ExpireReservationsJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	payload, err := decodePayload(t)
	if err != nil {
		return err
	}
	tracker := j.metrics().Track(TaskReservationsExpire)
	defer func() { err = tracker.End(err) }()

	logger := j.logger(TaskReservationsExpire, payload)
	expired, err := j.Reservations.ExpireDue(ctx, j.now())
	j.metrics().AddProcessed(TaskReservationsExpire, expired)
	if err != nil {
		logger.Error("expire reservations", slog.Int("expired", expired), slog.Any("error", err))
		return err
	}
	if expired > 0 {
		logger.Info("reservations expired", slog.Int("expired", expired))
	}
	return nil
}

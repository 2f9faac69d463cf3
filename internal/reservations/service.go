package reservations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetReservation(ctx context.Context, id int64) (Reservation, error)
	ListActive(ctx context.Context, filter ListFilter) ([]Reservation, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]Reservation, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service exposes reservation operations, each in its own transaction.
type Service struct {
	repo       RepositoryPort
	manager    *Manager
	audit      AuditPort
	logger     *slog.Logger
	defaultTTL time.Duration
	now        func() time.Time
}

// NewService constructs the reservation service. A positive defaultTTL sets expires_at on
// reservations created without one.
func NewService(repo RepositoryPort, manager *Manager, audit AuditPort, logger *slog.Logger, defaultTTL time.Duration) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if manager == nil {
		manager = NewManager(logger, nil)
	}
	return &Service{repo: repo, manager: manager, audit: audit, logger: logger, defaultTTL: defaultTTL, now: time.Now}
}

// Reserve holds stock for an optional customer.
func (s *Service) Reserve(ctx context.Context, input ReserveInput) (Reservation, error) {
	if input.ProductID <= 0 {
		return Reservation{}, fmt.Errorf("reservations: product required: %w", shared.ErrValidation)
	}
	now := s.now()
	if input.ExpiresAt == nil && s.defaultTTL > 0 {
		expires := now.Add(s.defaultTTL)
		input.ExpiresAt = &expires
	}
	if input.ExpiresAt != nil && !input.ExpiresAt.After(now) {
		return Reservation{}, ErrExpiryInPast
	}
	var created Reservation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = s.manager.Create(ctx, tx, input)
		return err
	})
	if err != nil {
		return Reservation{}, err
	}
	s.recordAudit(ctx, input.ActorID, "reservations:create", created)
	return created, nil
}

// Update changes quantity and/or status of a RESERVED reservation.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput) (Reservation, error) {
	if input.Quantity == nil && input.Status == nil {
		return Reservation{}, fmt.Errorf("reservations: nothing to update: %w", shared.ErrValidation)
	}
	var updated Reservation
	err := s.withLockedReservation(ctx, id, func(ctx context.Context, tx TxRepository, current Reservation) error {
		quantity, status := current.Quantity, current.Status
		if input.Quantity != nil {
			quantity = *input.Quantity
		}
		if input.Status != nil {
			status = *input.Status
		}
		var err error
		updated, err = s.manager.Update(ctx, tx, current, quantity, status)
		return err
	})
	if err != nil {
		return Reservation{}, err
	}
	s.recordAudit(ctx, input.ActorID, "reservations:update", updated)
	return updated, nil
}

// Cancel releases a RESERVED reservation.
func (s *Service) Cancel(ctx context.Context, id, actorID int64) (Reservation, error) {
	status := StatusCanceled
	return s.Update(ctx, id, UpdateInput{Status: &status, ActorID: actorID})
}

// Delete removes a reservation in any state, releasing its hold when still RESERVED.
func (s *Service) Delete(ctx context.Context, id, actorID int64) error {
	var deleted Reservation
	err := s.withLockedReservation(ctx, id, func(ctx context.Context, tx TxRepository, current Reservation) error {
		deleted = current
		return s.manager.Delete(ctx, tx, current)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "reservations:delete", deleted)
	return nil
}

// Get returns a reservation by id.
func (s *Service) Get(ctx context.Context, id int64) (Reservation, error) {
	return s.repo.GetReservation(ctx, id)
}

// ListActive returns RESERVED reservations, optionally for one customer.
func (s *Service) ListActive(ctx context.Context, customerID *int64) ([]Reservation, error) {
	return s.repo.ListActive(ctx, ListFilter{CustomerID: customerID})
}

const expireBatch = 200

// ExpireDue cancels RESERVED reservations whose expires_at is at or before now. Each one is
// released in its own transaction; reservations settled concurrently are skipped.
func (s *Service) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.repo.ListExpired(ctx, now, expireBatch)
	if err != nil {
		return 0, fmt.Errorf("reservations: list expired: %w", err)
	}
	expired := 0
	for _, r := range due {
		err := s.withLockedReservation(ctx, r.ID, func(ctx context.Context, tx TxRepository, current Reservation) error {
			if !current.Expired(now) {
				return ErrInvalidState
			}
			_, err := s.manager.Update(ctx, tx, current, current.Quantity, StatusCanceled)
			return err
		})
		switch {
		case err == nil:
			expired++
		case errors.Is(err, ErrInvalidState), errors.Is(err, ErrNotFound):
			continue
		default:
			return expired, err
		}
	}
	if expired > 0 {
		s.logger.InfoContext(ctx, "reservations expired", slog.Int("count", expired))
	}
	return expired, nil
}

// withLockedReservation locks the reservation's product row, then the reservation row, so it
// takes locks in the same order as sale settlement.
func (s *Service) withLockedReservation(ctx context.Context, id int64, fn func(context.Context, TxRepository, Reservation) error) error {
	peek, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetProductForUpdate(ctx, peek.ProductID); err != nil {
			return err
		}
		current, err := tx.GetReservationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		return fn(ctx, tx, current)
	})
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, r Reservation) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "reservation",
		EntityID: strconv.FormatInt(r.ID, 10),
		Meta: map[string]any{
			"product_id": r.ProductID,
			"quantity":   r.Quantity,
			"status":     string(r.Status),
		},
	})
	if err != nil {
		s.logger.WarnContext(ctx, "audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

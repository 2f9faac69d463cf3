package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-pos/internal/observability"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetProduct(ctx context.Context, id int64) (Product, error)
	ListMovements(ctx context.Context, filter KardexFilter) ([]StockMovement, error)
	ListLowStock(ctx context.Context) ([]Product, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates ledger reads and manual adjustments.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	metrics *observability.LedgerMetrics
	logger  *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, metrics *observability.LedgerMetrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, metrics: metrics, logger: logger}
}

// PostAdjustment posts an ADJUSTMENT movement which may be positive or negative. Reserved units
// are protected: stock may not drop below reserved_stock.
func (s *Service) PostAdjustment(ctx context.Context, input AdjustmentInput) (StockMovement, error) {
	if input.ProductID <= 0 {
		return StockMovement{}, fmt.Errorf("inventory: product required: %w", shared.ErrValidation)
	}
	if input.Quantity == 0 {
		return StockMovement{}, ErrInvalidQuantity
	}
	var movement StockMovement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProductForUpdate(ctx, input.ProductID)
		if err != nil {
			return err
		}
		if product.Stock+input.Quantity < product.ReservedStock && input.Quantity < 0 {
			return ErrReservedStockConflict
		}
		movement, err = RecordMovement(ctx, tx, MovementInput{
			ProductID: input.ProductID,
			Type:      MovementAdjustment,
			Quantity:  input.Quantity,
			ActorID:   input.ActorID,
			Notes:     input.Notes,
		})
		return err
	})
	if err != nil {
		return StockMovement{}, err
	}
	s.metrics.ObserveMovements(string(MovementAdjustment), 1)
	s.recordAudit(ctx, input.ActorID, "inventory:adjust", movement)
	return movement, nil
}

// GetProduct returns the product with its current counters.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// GetKardex lists movements of a product in creation order.
func (s *Service) GetKardex(ctx context.Context, filter KardexFilter) ([]StockMovement, error) {
	if filter.ProductID <= 0 {
		return nil, fmt.Errorf("inventory: product required: %w", shared.ErrValidation)
	}
	if _, err := s.repo.GetProduct(ctx, filter.ProductID); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 500
	}
	return s.repo.ListMovements(ctx, filter)
}

// VerifyKardex replays the full movement history of a product from zero and compares it
// with the stored stock counter.
func (s *Service) VerifyKardex(ctx context.Context, productID int64) (KardexReport, error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return KardexReport{}, err
	}
	movements, err := s.repo.ListMovements(ctx, KardexFilter{ProductID: productID})
	if err != nil {
		return KardexReport{}, err
	}
	report := Replay(productID, product.Stock, movements)
	if !report.Consistent {
		s.logger.Warn("kardex replay mismatch",
			slog.Int64("product_id", productID),
			slog.Int("stock", report.Stock),
			slog.Int("replayed", report.Replayed),
			slog.Int("broken_entries", len(report.BrokenEntryIDs)))
	}
	return report, nil
}

// ListLowStock lists active products at or below their reorder threshold.
func (s *Service) ListLowStock(ctx context.Context) ([]Product, error) {
	return s.repo.ListLowStock(ctx)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, m StockMovement) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_movement",
		EntityID: fmt.Sprintf("%d", m.ID),
		Meta: map[string]any{
			"product_id":     m.ProductID,
			"quantity":       m.Quantity,
			"previous_stock": m.PreviousStock,
			"new_stock":      m.NewStock,
			"notes":          m.Notes,
		},
		At: time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

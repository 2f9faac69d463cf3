package reservations

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/observability"
)

// TxRepository exposes reservation persistence inside a ledger transaction.
type TxRepository interface {
	inventory.TxRepository
	UpdateReservedStock(ctx context.Context, productID int64, reserved int) error
	InsertReservation(ctx context.Context, r Reservation) (Reservation, error)
	GetReservationForUpdate(ctx context.Context, id int64) (Reservation, error)
	UpdateReservation(ctx context.Context, r Reservation) (Reservation, error)
	DeleteReservation(ctx context.Context, id int64) error
	// ListCustomerReservationsForUpdate returns RESERVED rows for product and customer,
	// oldest first (created_at, id), locked.
	ListCustomerReservationsForUpdate(ctx context.Context, productID, customerID int64) ([]Reservation, error)
}

// Manager applies reservation mutations and keeps reserved_stock reconciled. Every method
// expects to run inside the caller's transaction and locks the product row before touching
// reservation rows.
type Manager struct {
	logger  *slog.Logger
	metrics *observability.LedgerMetrics
}

// NewManager constructs a Manager.
func NewManager(logger *slog.Logger, metrics *observability.LedgerMetrics) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger, metrics: metrics}
}

// Create holds quantity units of a product. The hold must fit in unreserved stock.
func (m *Manager) Create(ctx context.Context, tx TxRepository, input ReserveInput) (Reservation, error) {
	if input.Quantity <= 0 {
		return Reservation{}, inventory.ErrInvalidQuantity
	}
	product, err := tx.GetProductForUpdate(ctx, input.ProductID)
	if err != nil {
		return Reservation{}, err
	}
	available := product.Stock - product.ReservedStock
	if input.Quantity > available {
		return Reservation{}, inventory.NewInsufficientStockError(product, input.Quantity, available)
	}
	created, err := tx.InsertReservation(ctx, Reservation{
		ProductID:  product.ID,
		CustomerID: input.CustomerID,
		Quantity:   input.Quantity,
		Status:     StatusReserved,
		ExpiresAt:  input.ExpiresAt,
		Notes:      input.Notes,
		CreatedBy:  input.ActorID,
	})
	if err != nil {
		return Reservation{}, err
	}
	if err := m.applyDelta(ctx, tx, product, created.Contribution()); err != nil {
		return Reservation{}, err
	}
	return created, nil
}

// Update moves current to (quantity, status) and reconciles reserved_stock by the change in
// contribution. Growing a hold is checked against unreserved stock.
func (m *Manager) Update(ctx context.Context, tx TxRepository, current Reservation, quantity int, status Status) (Reservation, error) {
	if !status.Valid() {
		return Reservation{}, ErrInvalidStatus
	}
	if current.Status.Terminal() {
		return Reservation{}, ErrInvalidState
	}
	if quantity <= 0 {
		return Reservation{}, inventory.ErrInvalidQuantity
	}
	product, err := tx.GetProductForUpdate(ctx, current.ProductID)
	if err != nil {
		return Reservation{}, err
	}
	next := current
	next.Quantity = quantity
	next.Status = status
	delta := next.Contribution() - current.Contribution()
	if delta > 0 {
		available := product.Stock - product.ReservedStock
		if delta > available {
			return Reservation{}, inventory.NewInsufficientStockError(product, quantity, current.Quantity+available)
		}
	}
	updated, err := tx.UpdateReservation(ctx, next)
	if err != nil {
		return Reservation{}, err
	}
	if err := m.applyDelta(ctx, tx, product, delta); err != nil {
		return Reservation{}, err
	}
	return updated, nil
}

// Delete removes a reservation, releasing its hold first when it is still RESERVED.
func (m *Manager) Delete(ctx context.Context, tx TxRepository, current Reservation) error {
	product, err := tx.GetProductForUpdate(ctx, current.ProductID)
	if err != nil {
		return err
	}
	if err := m.applyDelta(ctx, tx, product, -current.Contribution()); err != nil {
		return err
	}
	return tx.DeleteReservation(ctx, current.ID)
}

// ReservedForCustomer sums the customer's RESERVED quantity for product.
func (m *Manager) ReservedForCustomer(ctx context.Context, tx TxRepository, productID, customerID int64) (int, error) {
	held, err := tx.ListCustomerReservationsForUpdate(ctx, productID, customerID)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, r := range held {
		total += r.Contribution()
	}
	return total, nil
}

// ConsumeForSale draws quantity from the customer's reservations oldest first. Partially used
// holds shrink; exhausted holds become FULFILLED keeping their last quantity. It returns the
// number of units taken from reservations.
func (m *Manager) ConsumeForSale(ctx context.Context, tx TxRepository, productID, customerID int64, quantity int) (int, error) {
	held, err := tx.ListCustomerReservationsForUpdate(ctx, productID, customerID)
	if err != nil {
		return 0, err
	}
	remaining := quantity
	for _, r := range held {
		if remaining == 0 {
			break
		}
		if r.Status != StatusReserved {
			continue
		}
		take := min(remaining, r.Quantity)
		if take == r.Quantity {
			_, err = m.Update(ctx, tx, r, r.Quantity, StatusFulfilled)
		} else {
			_, err = m.Update(ctx, tx, r, r.Quantity-take, StatusReserved)
		}
		if err != nil {
			return quantity - remaining, fmt.Errorf("reservations: consume %d: %w", r.ID, err)
		}
		remaining -= take
	}
	return quantity - remaining, nil
}

// applyDelta writes reserved_stock = max(0, reserved_stock + delta). The floor masks drift
// rather than preventing it, so every clamp is logged and counted.
func (m *Manager) applyDelta(ctx context.Context, tx TxRepository, product inventory.Product, delta int) error {
	if delta == 0 {
		return nil
	}
	next := product.ReservedStock + delta
	if next < 0 {
		m.logger.WarnContext(ctx, "reserved stock clamped at zero",
			slog.Int64("product_id", product.ID),
			slog.String("product_code", product.Code),
			slog.Int("reserved_stock", product.ReservedStock),
			slog.Int("delta", delta))
		m.metrics.ObserveClamp(product.ID)
		next = 0
	}
	if err := tx.UpdateReservedStock(ctx, product.ID, next); err != nil {
		return fmt.Errorf("reservations: update reserved stock: %w", err)
	}
	return nil
}

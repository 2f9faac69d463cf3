package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/codes"
	"github.com/odyssey-erp/odyssey-pos/internal/customers"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/observability"
	"github.com/odyssey-erp/odyssey-pos/internal/reservations"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

const idempotencyModule = "sales"

// TxRepository is the transactional surface used by settlement.
type TxRepository interface {
	reservations.TxRepository
	customers.TxRepository
	codes.Checker
	InsertSale(ctx context.Context, sale Sale) (Sale, error)
	InsertSaleItem(ctx context.Context, item SaleItem) (SaleItem, error)
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSaleByCode(ctx context.Context, code string) (Sale, error)
	ListSales(ctx context.Context, filter ListFilter) ([]Sale, int, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort is satisfied by shared.IdempotencyStore.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// CacheInvalidator drops cached read models after a sale commits.
type CacheInvalidator interface {
	Bump(ctx context.Context) error
}

// Options carries optional collaborators of Service.
type Options struct {
	TaxRate     decimal.Decimal
	Audit       AuditPort
	Idempotency IdempotencyPort
	Cache       CacheInvalidator
	Metrics     *observability.LedgerMetrics
}

// Service settles carts into sales.
type Service struct {
	repo         RepositoryPort
	reservations *reservations.Manager
	codes        *codes.Generator
	opts         Options
	logger       *slog.Logger
}

// NewService constructs a sales service.
func NewService(repo RepositoryPort, manager *reservations.Manager, generator *codes.Generator, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if manager == nil {
		manager = reservations.NewManager(logger, opts.Metrics)
	}
	if generator == nil {
		generator = codes.NewGenerator()
	}
	return &Service{repo: repo, reservations: manager, codes: generator, opts: opts, logger: logger}
}

// CreateSale settles the cart atomically: the sale header, its items, the consumed
// reservations and one SALE kardex entry per line commit together or not at all.
func (s *Service) CreateSale(ctx context.Context, input CreateSaleInput) (SaleResult, error) {
	totals, err := s.prepare(&input)
	if err != nil {
		s.opts.Metrics.ObserveSettlement("rejected")
		return SaleResult{}, err
	}
	if input.IdempotencyKey != "" && s.opts.Idempotency != nil {
		if err := s.opts.Idempotency.CheckAndInsert(ctx, input.IdempotencyKey, idempotencyModule); err != nil {
			return SaleResult{}, err
		}
	}

	var result SaleResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		result, err = s.settle(ctx, tx, input, totals)
		return err
	})
	if err != nil {
		s.releaseKey(ctx, input.IdempotencyKey)
		s.opts.Metrics.ObserveSettlement(outcome(err))
		if !errors.Is(err, shared.ErrValidation) && !errors.Is(err, shared.ErrConflict) && !errors.Is(err, shared.ErrNotFound) {
			s.logger.ErrorContext(ctx, "sale settlement failed", slog.Int64("seller_id", input.SellerID), slog.Any("error", err))
		}
		return SaleResult{}, err
	}

	s.opts.Metrics.ObserveSettlement("completed")
	s.opts.Metrics.ObserveMovements(string(inventory.MovementSale), len(result.Movements))
	s.recordAudit(ctx, result.Sale)
	if s.opts.Cache != nil {
		if err := s.opts.Cache.Bump(ctx); err != nil {
			s.logger.WarnContext(ctx, "dashboard cache bump failed", slog.Any("error", err))
		}
	}
	s.logger.InfoContext(ctx, "sale settled",
		slog.String("code", result.Sale.Code),
		slog.Int("items", len(result.Sale.Items)),
		slog.String("total", result.Sale.Total.StringFixed(2)))
	return result, nil
}

// prepare validates the input outside the transaction and computes the server totals.
func (s *Service) prepare(input *CreateSaleInput) (Totals, error) {
	if input.SellerID <= 0 {
		return Totals{}, ErrSellerRequired
	}
	if len(input.Items) == 0 {
		return Totals{}, ErrEmptyCart
	}
	if input.CustomerID != nil && input.NewCustomer != nil {
		return Totals{}, ErrCustomerAmbiguous
	}
	if input.PaymentMethod == "" {
		input.PaymentMethod = PaymentCash
	}
	input.PaymentMethod = PaymentMethod(strings.ToUpper(string(input.PaymentMethod)))
	if !input.PaymentMethod.Valid() {
		return Totals{}, ErrInvalidPayment
	}
	for i, line := range input.Items {
		if line.Quantity <= 0 {
			return Totals{}, fmt.Errorf("sales: line %d: %w", i+1, inventory.ErrInvalidQuantity)
		}
		if !shared.ValidAmount(line.UnitPrice) {
			return Totals{}, fmt.Errorf("sales: line %d: %w", i+1, ErrInvalidPrice)
		}
		if line.Subtotal != nil && !line.Subtotal.Equal(LineSubtotal(line.Quantity, line.UnitPrice)) {
			return Totals{}, fmt.Errorf("sales: line %d subtotal: %w", i+1, ErrTotalsMismatch)
		}
	}
	totals, err := CalculateTotals(input.Items, input.Discount, s.opts.TaxRate)
	if err != nil {
		return Totals{}, err
	}
	if input.Subtotal != nil && !input.Subtotal.Equal(totals.Subtotal) {
		return Totals{}, fmt.Errorf("sales: subtotal %s, expected %s: %w", input.Subtotal.StringFixed(2), totals.Subtotal.StringFixed(2), ErrTotalsMismatch)
	}
	if input.Total != nil && !input.Total.Equal(totals.Total) {
		return Totals{}, fmt.Errorf("sales: total %s, expected %s: %w", input.Total.StringFixed(2), totals.Total.StringFixed(2), ErrTotalsMismatch)
	}
	return totals, nil
}

func (s *Service) settle(ctx context.Context, tx TxRepository, input CreateSaleInput, totals Totals) (SaleResult, error) {
	customer, err := s.resolveCustomer(ctx, tx, input)
	if err != nil {
		return SaleResult{}, err
	}
	var customerID *int64
	if customer != nil {
		customerID = &customer.ID
	}

	ids := make([]int64, 0, len(input.Items))
	for _, line := range input.Items {
		ids = append(ids, line.ProductID)
	}
	if _, err := inventory.LockProducts(ctx, tx, ids); err != nil {
		return SaleResult{}, err
	}

	code, err := s.codes.Next(ctx, codes.KindSale, tx)
	if err != nil {
		return SaleResult{}, err
	}
	sale, err := tx.InsertSale(ctx, Sale{
		Code:          code,
		CustomerID:    customerID,
		SellerID:      input.SellerID,
		Status:        StatusCompleted,
		PaymentMethod: input.PaymentMethod,
		Subtotal:      totals.Subtotal,
		Discount:      totals.Discount,
		Tax:           totals.Tax,
		Total:         totals.Total,
		Notes:         input.Notes,
	})
	if err != nil {
		return SaleResult{}, fmt.Errorf("sales: insert sale: %w", err)
	}
	if customer != nil {
		sale.CustomerName = customer.Name
	}

	result := SaleResult{Movements: make([]inventory.StockMovement, 0, len(input.Items))}
	for _, line := range input.Items {
		item, movement, err := s.settleLine(ctx, tx, sale, customerID, line)
		if err != nil {
			return SaleResult{}, err
		}
		sale.Items = append(sale.Items, item)
		result.Movements = append(result.Movements, movement)
	}
	result.Sale = sale
	return result, nil
}

func (s *Service) settleLine(ctx context.Context, tx TxRepository, sale Sale, customerID *int64, line LineInput) (SaleItem, inventory.StockMovement, error) {
	product, err := tx.GetProductForUpdate(ctx, line.ProductID)
	if err != nil {
		return SaleItem{}, inventory.StockMovement{}, err
	}
	if !product.IsActive {
		return SaleItem{}, inventory.StockMovement{}, fmt.Errorf("%w: %s", ErrProductInactive, product.Code)
	}
	if line.Quantity <= 0 {
		return SaleItem{}, inventory.StockMovement{}, inventory.ErrInvalidQuantity
	}
	available := product.Stock - product.ReservedStock
	held := 0
	if customerID != nil {
		held, err = s.reservations.ReservedForCustomer(ctx, tx, product.ID, *customerID)
		if err != nil {
			return SaleItem{}, inventory.StockMovement{}, err
		}
	}
	allowed := available + held
	if line.Quantity > allowed {
		return SaleItem{}, inventory.StockMovement{}, inventory.NewInsufficientStockError(product, line.Quantity, allowed)
	}

	item, err := tx.InsertSaleItem(ctx, SaleItem{
		SaleID:    sale.ID,
		ProductID: product.ID,
		Quantity:  line.Quantity,
		UnitPrice: line.UnitPrice,
		Subtotal:  LineSubtotal(line.Quantity, line.UnitPrice),
	})
	if err != nil {
		return SaleItem{}, inventory.StockMovement{}, fmt.Errorf("sales: insert item: %w", err)
	}
	item.ProductCode = product.Code
	item.ProductName = product.Name

	if held > 0 {
		if _, err := s.reservations.ConsumeForSale(ctx, tx, product.ID, *customerID, line.Quantity); err != nil {
			return SaleItem{}, inventory.StockMovement{}, err
		}
	}
	saleID := sale.ID
	movement, err := inventory.RecordMovement(ctx, tx, inventory.MovementInput{
		ProductID:   product.ID,
		Type:        inventory.MovementSale,
		Quantity:    -line.Quantity,
		ReferenceID: &saleID,
		ActorID:     sale.SellerID,
		Notes:       "Sale " + sale.Code,
	})
	if err != nil {
		return SaleItem{}, inventory.StockMovement{}, err
	}
	return item, movement, nil
}

func (s *Service) resolveCustomer(ctx context.Context, tx TxRepository, input CreateSaleInput) (*customers.Customer, error) {
	switch {
	case input.CustomerID != nil:
		c, err := tx.GetCustomer(ctx, *input.CustomerID)
		if err != nil {
			return nil, err
		}
		return &c, nil
	case input.NewCustomer != nil:
		c, err := customers.GetOrCreate(ctx, tx, *input.NewCustomer)
		if err != nil {
			return nil, err
		}
		return &c, nil
	default:
		return nil, nil
	}
}

// GetSale returns a sale by code with its items, product and customer names.
func (s *Service) GetSale(ctx context.Context, code string) (Sale, error) {
	if !codes.Valid(codes.KindSale, code) {
		return Sale{}, ErrNotFound
	}
	return s.repo.GetSaleByCode(ctx, code)
}

// ListSales returns sale headers, newest first.
func (s *Service) ListSales(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	return s.repo.ListSales(ctx, filter)
}

func (s *Service) releaseKey(ctx context.Context, key string) {
	if key == "" || s.opts.Idempotency == nil {
		return
	}
	if err := s.opts.Idempotency.Delete(ctx, key, idempotencyModule); err != nil {
		s.logger.WarnContext(ctx, "idempotency key release failed", slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, sale Sale) {
	if s.opts.Audit == nil {
		return
	}
	err := s.opts.Audit.Record(ctx, shared.AuditLog{
		ActorID:  sale.SellerID,
		Action:   "sales:create",
		Entity:   "sale",
		EntityID: sale.Code,
		Meta: map[string]any{
			"total": sale.Total.StringFixed(2),
			"items": len(sale.Items),
		},
	})
	if err != nil {
		s.logger.WarnContext(ctx, "audit record failed", slog.String("code", sale.Code), slog.Any("error", err))
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, inventory.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, shared.ErrValidation):
		return "rejected"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	default:
		return "failed"
	}
}

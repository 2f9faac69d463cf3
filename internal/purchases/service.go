package purchases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/codes"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/observability"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// TxRepository exposes purchase persistence inside a ledger transaction.
type TxRepository interface {
	inventory.TxRepository
	codes.Checker
	// InsertPurchase returns ErrSupplierNotFound for an unknown supplier.
	InsertPurchase(ctx context.Context, p Purchase) (Purchase, error)
	GetPurchaseForUpdate(ctx context.Context, id int64) (Purchase, error)
	InsertPurchaseItem(ctx context.Context, item PurchaseItem) (PurchaseItem, error)
	ListPurchaseItems(ctx context.Context, purchaseID int64) ([]PurchaseItem, error)
	DeletePurchaseItems(ctx context.Context, purchaseID int64) error
	UpdatePurchase(ctx context.Context, p Purchase) error
}

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPurchase(ctx context.Context, id int64) (Purchase, error)
	ListPurchases(ctx context.Context, filter ListFilter) ([]Purchase, int, error)
	// ListReorderCandidates returns active low-stock products that have a supplier,
	// skipping products already on an open draft.
	ListReorderCandidates(ctx context.Context) ([]inventory.Product, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort is satisfied by shared.IdempotencyStore.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

const approveModule = "purchases.approve"

// Service orchestrates purchase intake.
type Service struct {
	repo        RepositoryPort
	codes       *codes.Generator
	audit       AuditPort
	idempotency IdempotencyPort
	metrics     *observability.LedgerMetrics
	logger      *slog.Logger
}

// NewService constructs purchase service.
func NewService(repo RepositoryPort, generator *codes.Generator, audit AuditPort, idem IdempotencyPort, metrics *observability.LedgerMetrics, logger *slog.Logger) *Service {
	if generator == nil {
		generator = codes.NewGenerator()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, codes: generator, audit: audit, idempotency: idem, metrics: metrics, logger: logger}
}

// ReceivePurchase creates the purchase and adds every line in one transaction.
func (s *Service) ReceivePurchase(ctx context.Context, input ReceiveInput) (PurchaseResult, error) {
	if input.SupplierID <= 0 {
		return PurchaseResult{}, fmt.Errorf("purchases: supplier required: %w", shared.ErrValidation)
	}
	if len(input.Items) == 0 {
		return PurchaseResult{}, ErrNoItems
	}
	var result PurchaseResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := lockItems(ctx, tx, input.Items); err != nil {
			return err
		}
		code, err := s.codes.Next(ctx, codes.KindPurchase, tx)
		if err != nil {
			return err
		}
		purchase, err := tx.InsertPurchase(ctx, Purchase{
			Code:          code,
			SupplierID:    input.SupplierID,
			InvoiceNumber: input.InvoiceNumber,
			Total:         decimal.Zero,
			Notes:         input.Notes,
			IsDraft:       input.IsDraft,
			CreatedBy:     input.ActorID,
		})
		if err != nil {
			return err
		}
		result, err = s.addItems(ctx, tx, purchase, input.Items)
		return err
	})
	if err != nil {
		return PurchaseResult{}, err
	}
	s.observe(result, kindOf(result.Purchase))
	s.recordAudit(ctx, input.ActorID, "purchases:create", result.Purchase)
	return result, nil
}

// AddItem appends a line and recomputes the total. Non-draft purchases post a PURCHASE movement.
func (s *Service) AddItem(ctx context.Context, purchaseID int64, item ItemInput) (PurchaseItem, error) {
	var (
		added    PurchaseItem
		purchase Purchase
		moved    int
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		purchase, err = tx.GetPurchaseForUpdate(ctx, purchaseID)
		if err != nil {
			return err
		}
		result, err := s.addItems(ctx, tx, purchase, []ItemInput{item})
		if err != nil {
			return err
		}
		purchase = result.Purchase
		added = result.Purchase.Items[len(result.Purchase.Items)-1]
		moved = len(result.Movements)
		return nil
	})
	if err != nil {
		return PurchaseItem{}, err
	}
	s.metrics.ObserveMovements(string(inventory.MovementPurchase), moved)
	s.recordAudit(ctx, purchase.CreatedBy, "purchases:add_item", purchase)
	return added, nil
}

// Approve receives a draft: the proposal lines are replaced by the received lines and each one
// posts its PURCHASE movement. Approving a received purchase fails with ErrInvalidState.
func (s *Service) Approve(ctx context.Context, purchaseID int64, input ApproveInput) (PurchaseResult, error) {
	key := fmt.Sprintf("PURCHASE:%d", purchaseID)
	inserted := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, approveModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return PurchaseResult{}, ErrInvalidState
			}
			return PurchaseResult{}, err
		}
		inserted = true
	}
	var result PurchaseResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		purchase, err := tx.GetPurchaseForUpdate(ctx, purchaseID)
		if err != nil {
			return err
		}
		if !purchase.IsDraft {
			return ErrInvalidState
		}
		items := input.Items
		if len(items) == 0 {
			proposal, err := tx.ListPurchaseItems(ctx, purchaseID)
			if err != nil {
				return err
			}
			for _, line := range proposal {
				items = append(items, ItemInput{ProductID: line.ProductID, Quantity: line.Quantity, UnitPrice: line.UnitPrice})
			}
		}
		if len(items) == 0 {
			return ErrNoItems
		}
		if err := lockItems(ctx, tx, items); err != nil {
			return err
		}
		if err := tx.DeletePurchaseItems(ctx, purchaseID); err != nil {
			return fmt.Errorf("purchases: clear proposal: %w", err)
		}
		purchase.IsDraft = false
		purchase.Total = decimal.Zero
		purchase.Items = nil
		if input.InvoiceNumber != "" {
			purchase.InvoiceNumber = input.InvoiceNumber
		}
		if err := tx.UpdatePurchase(ctx, purchase); err != nil {
			return err
		}
		result, err = s.addItems(ctx, tx, purchase, items)
		return err
	})
	if err != nil {
		if inserted {
			s.releaseKey(ctx, key)
		}
		return PurchaseResult{}, err
	}
	s.observe(result, "approved")
	s.recordAudit(ctx, input.ActorID, "purchases:approve", result.Purchase)
	return result, nil
}

// GenerateSuggestedOrders drafts one purchase per supplier covering its low-stock products.
// Each line orders max(min_stock - available, 1) units at the product's purchase price.
// Products already on an open draft are left out, so repeated runs do not stack proposals.
func (s *Service) GenerateSuggestedOrders(ctx context.Context, actorID int64) ([]Purchase, error) {
	candidates, err := s.repo.ListReorderCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("purchases: reorder candidates: %w", err)
	}
	bySupplier := make(map[int64][]ItemInput)
	for _, p := range candidates {
		if p.SupplierID == nil || !p.IsActive || !p.IsLowStock() {
			continue
		}
		bySupplier[*p.SupplierID] = append(bySupplier[*p.SupplierID], ItemInput{
			ProductID: p.ID,
			Quantity:  SuggestedQuantity(p),
			UnitPrice: p.PurchasePrice,
		})
	}
	suppliers := make([]int64, 0, len(bySupplier))
	for id := range bySupplier {
		suppliers = append(suppliers, id)
	}
	sort.Slice(suppliers, func(i, j int) bool { return suppliers[i] < suppliers[j] })

	var drafts []Purchase
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		drafts = drafts[:0]
		for _, supplierID := range suppliers {
			code, err := s.codes.Next(ctx, codes.KindPurchase, tx)
			if err != nil {
				return err
			}
			purchase, err := tx.InsertPurchase(ctx, Purchase{
				Code:       code,
				SupplierID: supplierID,
				Total:      decimal.Zero,
				Notes:      SuggestedNote,
				IsDraft:    true,
				CreatedBy:  actorID,
			})
			if err != nil {
				return err
			}
			result, err := s.addItems(ctx, tx, purchase, bySupplier[supplierID])
			if err != nil {
				return err
			}
			drafts = append(drafts, result.Purchase)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, d := range drafts {
		s.metrics.ObservePurchase("suggested")
		s.recordAudit(ctx, actorID, "purchases:suggest", d)
	}
	if len(drafts) > 0 {
		s.logger.InfoContext(ctx, "suggested orders generated", slog.Int("purchases", len(drafts)))
	}
	return drafts, nil
}

// releaseKey frees the approval key after a rolled back attempt so the draft can be retried.
func (s *Service) releaseKey(ctx context.Context, key string) {
	if err := s.idempotency.Delete(ctx, key, approveModule); err != nil {
		s.logger.WarnContext(ctx, "idempotency key release failed", slog.String("key", key), slog.Any("error", err))
	}
}

// SuggestedQuantity is the reorder amount for a low-stock product.
func SuggestedQuantity(p inventory.Product) int {
	return max(p.MinStock-p.AvailableStock(), 1)
}

// GetPurchase returns a purchase with its items.
func (s *Service) GetPurchase(ctx context.Context, id int64) (Purchase, error) {
	return s.repo.GetPurchase(ctx, id)
}

// ListPurchases returns purchase headers, newest first.
func (s *Service) ListPurchases(ctx context.Context, filter ListFilter) ([]Purchase, int, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	return s.repo.ListPurchases(ctx, filter)
}

// addItems validates and persists lines, recomputes the total from all stored items, and posts
// one PURCHASE movement per line when the purchase is not a draft.
func (s *Service) addItems(ctx context.Context, tx TxRepository, purchase Purchase, items []ItemInput) (PurchaseResult, error) {
	result := PurchaseResult{}
	for _, in := range items {
		if in.Quantity <= 0 {
			return PurchaseResult{}, inventory.ErrInvalidQuantity
		}
		if !shared.ValidAmount(in.UnitPrice) {
			return PurchaseResult{}, ErrInvalidPrice
		}
		product, err := tx.GetProductForUpdate(ctx, in.ProductID)
		if err != nil {
			return PurchaseResult{}, err
		}
		item, err := tx.InsertPurchaseItem(ctx, PurchaseItem{
			PurchaseID: purchase.ID,
			ProductID:  product.ID,
			Quantity:   in.Quantity,
			UnitPrice:  in.UnitPrice,
			Subtotal:   in.UnitPrice.Mul(decimal.NewFromInt(int64(in.Quantity))),
		})
		if err != nil {
			return PurchaseResult{}, fmt.Errorf("purchases: insert item: %w", err)
		}
		item.ProductCode = product.Code
		item.ProductName = product.Name
		if !purchase.IsDraft {
			ref := purchase.ID
			movement, err := inventory.RecordMovement(ctx, tx, inventory.MovementInput{
				ProductID:   product.ID,
				Type:        inventory.MovementPurchase,
				Quantity:    in.Quantity,
				ReferenceID: &ref,
				ActorID:     purchase.CreatedBy,
				Notes:       "Purchase " + purchase.Code,
			})
			if err != nil {
				return PurchaseResult{}, err
			}
			result.Movements = append(result.Movements, movement)
		}
	}
	stored, err := tx.ListPurchaseItems(ctx, purchase.ID)
	if err != nil {
		return PurchaseResult{}, err
	}
	total := decimal.Zero
	for _, item := range stored {
		total = total.Add(item.Subtotal)
	}
	purchase.Total = total
	purchase.Items = stored
	if err := tx.UpdatePurchase(ctx, purchase); err != nil {
		return PurchaseResult{}, fmt.Errorf("purchases: update total: %w", err)
	}
	result.Purchase = purchase
	return result, nil
}

func lockItems(ctx context.Context, tx TxRepository, items []ItemInput) error {
	ids := make([]int64, 0, len(items))
	for _, in := range items {
		ids = append(ids, in.ProductID)
	}
	_, err := inventory.LockProducts(ctx, tx, ids)
	return err
}

func kindOf(p Purchase) string {
	if p.IsDraft {
		return "draft"
	}
	return "received"
}

func (s *Service) observe(result PurchaseResult, kind string) {
	s.metrics.ObservePurchase(kind)
	s.metrics.ObserveMovements(string(inventory.MovementPurchase), len(result.Movements))
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, p Purchase) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "purchase",
		EntityID: p.Code,
		Meta: map[string]any{
			"supplier_id": p.SupplierID,
			"total":       p.Total.StringFixed(2),
			"draft":       p.IsDraft,
		},
	})
	if err != nil {
		s.logger.WarnContext(ctx, "audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

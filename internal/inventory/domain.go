package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// MovementType enumerates kardex entry types.
type MovementType string

const (
	// MovementPurchase records stock received from a supplier.
	MovementPurchase MovementType = "PURCHASE"
	// MovementSale records stock handed to a customer.
	MovementSale MovementType = "SALE"
	// MovementAdjustment records a manual correction (count, breakage, expiry).
	MovementAdjustment MovementType = "ADJUSTMENT"
)

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementPurchase, MovementSale, MovementAdjustment:
		return true
	}
	return false
}

// DefaultMinStock is the reorder threshold applied when catalog does not set one.
const DefaultMinStock = 10

// Product is the catalog row together with its stock counters.
type Product struct {
	ID             int64           `json:"id"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	Category       string          `json:"category,omitempty"`
	SupplierID     *int64          `json:"supplier_id,omitempty"`
	PurchasePrice  decimal.Decimal `json:"purchase_price"`
	SalePrice      decimal.Decimal `json:"sale_price"`
	Stock          int             `json:"stock"`
	ReservedStock  int             `json:"reserved_stock"`
	MinStock       int             `json:"min_stock"`
	ExpirationDate *time.Time      `json:"expiration_date,omitempty"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// AvailableStock is stock not held by reservations, floored at zero.
func (p Product) AvailableStock() int {
	if p.Stock-p.ReservedStock < 0 {
		return 0
	}
	return p.Stock - p.ReservedStock
}

// IsLowStock reports whether unreserved stock sits at or below the reorder threshold.
func (p Product) IsLowStock() bool {
	return p.Stock-p.ReservedStock <= p.MinStock
}

// StockMovement is an immutable kardex entry.
type StockMovement struct {
	ID            int64        `json:"id"`
	ProductID     int64        `json:"product_id"`
	Type          MovementType `json:"movement_type"`
	Quantity      int          `json:"quantity"`
	PreviousStock int          `json:"previous_stock"`
	NewStock      int          `json:"new_stock"`
	ReferenceID   *int64       `json:"reference_id,omitempty"`
	Notes         string       `json:"notes,omitempty"`
	CreatedBy     int64        `json:"created_by"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Consistent reports whether the snapshot arithmetic holds.
func (m StockMovement) Consistent() bool {
	return m.NewStock == m.PreviousStock+m.Quantity
}

// MovementInput describes a stock change to post through the ledger.
type MovementInput struct {
	ProductID   int64
	Type        MovementType
	Quantity    int
	ReferenceID *int64
	ActorID     int64
	Notes       string
}

// AdjustmentInput captures a manual stock correction.
type AdjustmentInput struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Quantity  int    `json:"quantity" validate:"required,ne=0"`
	Notes     string `json:"notes" validate:"required,max=500"`
	ActorID   int64  `json:"-"`
}

// KardexFilter narrows the movement listing.
type KardexFilter struct {
	ProductID int64
	From      time.Time
	To        time.Time
	Limit     int
}

// KardexReport is the outcome of replaying a product's movement history.
type KardexReport struct {
	ProductID        int64   `json:"product_id"`
	Stock            int     `json:"stock"`
	Replayed         int     `json:"replayed_stock"`
	Entries          int     `json:"entries"`
	Consistent       bool    `json:"consistent"`
	BrokenEntryIDs   []int64 `json:"broken_entry_ids,omitempty"`
	DiscontinuityIDs []int64 `json:"discontinuity_ids,omitempty"`
}

var (
	// ErrInvalidQuantity indicates a zero or negative quantity where a positive one is required.
	ErrInvalidQuantity = fmt.Errorf("inventory: invalid quantity: %w", shared.ErrValidation)
	// ErrInvalidMovementType indicates an unknown movement type.
	ErrInvalidMovementType = fmt.Errorf("inventory: invalid movement type: %w", shared.ErrValidation)
	// ErrNegativeStock indicates the movement would drive stock below zero.
	ErrNegativeStock = fmt.Errorf("inventory: stock cannot go negative: %w", shared.ErrConflict)
	// ErrReservedStockConflict indicates an adjustment would leave stock below reserved_stock.
	ErrReservedStockConflict = fmt.Errorf("inventory: stock cannot drop below reserved stock: %w", shared.ErrConflict)
	// ErrProductNotFound indicates the product row does not exist.
	ErrProductNotFound = fmt.Errorf("inventory: product %w", shared.ErrNotFound)
	// ErrInsufficientStock is matched by *InsufficientStockError.
	ErrInsufficientStock = fmt.Errorf("inventory: insufficient stock: %w", shared.ErrConflict)
)

// InsufficientStockError names the product and the largest quantity that would have been accepted.
type InsufficientStockError struct {
	ProductID   int64
	ProductCode string
	ProductName string
	Requested   int
	Allowed     int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock for %s (%s): requested %d, allowed %d", e.ProductName, e.ProductCode, e.Requested, e.Allowed)
}

// Is makes errors.Is(err, ErrInsufficientStock) and errors.Is(err, shared.ErrConflict) match.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock || target == shared.ErrConflict
}

// Kind names the failure for API consumers.
func (e *InsufficientStockError) Kind() string {
	return "insufficient_stock"
}

// ProblemFields exposes structured fields for problem responses.
func (e *InsufficientStockError) ProblemFields() map[string]any {
	return map[string]any{
		"product_id":   e.ProductID,
		"product_code": e.ProductCode,
		"requested":    e.Requested,
		"allowed":      e.Allowed,
	}
}

// NewInsufficientStockError builds the error for product, flooring allowed at zero.
func NewInsufficientStockError(p Product, requested, allowed int) *InsufficientStockError {
	if allowed < 0 {
		allowed = 0
	}
	return &InsufficientStockError{
		ProductID:   p.ID,
		ProductCode: p.Code,
		ProductName: p.Name,
		Requested:   requested,
		Allowed:     allowed,
	}
}

// IsInsufficientStock unwraps err into an *InsufficientStockError.
func IsInsufficientStock(err error) (*InsufficientStockError, bool) {
	var target *InsufficientStockError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

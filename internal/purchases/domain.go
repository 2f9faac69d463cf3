package purchases

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Purchase is a supplier invoice. Drafts are proposals with no stock effect.
type Purchase struct {
	ID            int64           `json:"id"`
	Code          string          `json:"code"`
	SupplierID    int64           `json:"supplier_id"`
	SupplierName  string          `json:"supplier_name,omitempty"`
	InvoiceNumber string          `json:"invoice_number,omitempty"`
	Total         decimal.Decimal `json:"total"`
	Notes         string          `json:"notes,omitempty"`
	IsDraft       bool            `json:"is_draft"`
	CreatedBy     int64           `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Items         []PurchaseItem  `json:"items,omitempty"`
}

// PurchaseItem is one received (or proposed) product line.
type PurchaseItem struct {
	ID          int64           `json:"id"`
	PurchaseID  int64           `json:"purchase_id"`
	ProductID   int64           `json:"product_id"`
	ProductCode string          `json:"product_code,omitempty"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// ItemInput describes a purchase line.
type ItemInput struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// ReceiveInput creates a purchase with its lines.
type ReceiveInput struct {
	SupplierID    int64       `json:"supplier_id" validate:"required,gt=0"`
	InvoiceNumber string      `json:"invoice_number,omitempty" validate:"max=50"`
	Notes         string      `json:"notes,omitempty" validate:"max=500"`
	IsDraft       bool        `json:"is_draft"`
	Items         []ItemInput `json:"items" validate:"dive"`
	ActorID       int64       `json:"-"`
}

// ApproveInput turns a draft into a received purchase. Empty Items receives the proposal as is.
type ApproveInput struct {
	InvoiceNumber string      `json:"invoice_number,omitempty" validate:"max=50"`
	Items         []ItemInput `json:"items,omitempty" validate:"dive"`
	ActorID       int64       `json:"-"`
}

// PurchaseResult carries the stored purchase and the kardex entries it produced.
type PurchaseResult struct {
	Purchase  Purchase                  `json:"purchase"`
	Movements []inventory.StockMovement `json:"movements"`
}

// ListFilter narrows purchase listings.
type ListFilter struct {
	SupplierID *int64
	Draft      *bool
	Limit      int
	Offset     int
}

// SuggestedNote marks drafts produced by GenerateSuggestedOrders.
const SuggestedNote = "Suggested reorder"

var (
	ErrNotFound         = fmt.Errorf("purchases: purchase %w", shared.ErrNotFound)
	ErrSupplierNotFound = fmt.Errorf("purchases: supplier %w", shared.ErrNotFound)
	ErrInvalidState     = fmt.Errorf("purchases: purchase already received: %w", shared.ErrConflict)
	ErrInvalidPrice     = fmt.Errorf("purchases: unit price must be non-negative with at most two decimals: %w", shared.ErrValidation)
	ErrNoItems          = fmt.Errorf("purchases: at least one item required: %w", shared.ErrValidation)
)

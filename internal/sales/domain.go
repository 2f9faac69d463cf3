package sales

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/customers"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// ============================================================================
// SALE
// ============================================================================

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "CASH"
	PaymentCard     PaymentMethod = "CARD"
	PaymentTransfer PaymentMethod = "TRANSFER"
	PaymentYape     PaymentMethod = "YAPE"
)

// Valid reports whether m is an accepted payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentTransfer, PaymentYape:
		return true
	}
	return false
}

type Sale struct {
	ID            int64           `json:"id"`
	Code          string          `json:"code"`
	CustomerID    *int64          `json:"customer_id,omitempty"`
	SellerID      int64           `json:"seller_id"`
	Status        Status          `json:"status"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`

	// Read model fields filled by GetSale.
	CustomerName string     `json:"customer_name,omitempty"`
	CustomerDNI  string     `json:"customer_dni,omitempty"`
	SellerName   string     `json:"seller_name,omitempty"`
	Items        []SaleItem `json:"items,omitempty"`
}

type SaleItem struct {
	ID          int64           `json:"id"`
	SaleID      int64           `json:"sale_id"`
	ProductID   int64           `json:"product_id"`
	ProductCode string          `json:"product_code,omitempty"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// ============================================================================
// INPUT
// ============================================================================

type LineInput struct {
	ProductID int64            `json:"product_id" validate:"required,gt=0"`
	Quantity  int              `json:"quantity"`
	UnitPrice decimal.Decimal  `json:"unit_price"`
	Subtotal  *decimal.Decimal `json:"subtotal,omitempty"`
}

// CreateSaleInput settles a cart. At most one of CustomerID and NewCustomer may be set.
// Subtotal and Total are optional client computations checked against the server's.
type CreateSaleInput struct {
	CustomerID     *int64                           `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	NewCustomer    *customers.CreateCustomerRequest `json:"new_customer,omitempty"`
	Items          []LineInput                      `json:"items" validate:"required,min=1,dive"`
	PaymentMethod  PaymentMethod                    `json:"payment_method"`
	Discount       decimal.Decimal                  `json:"discount"`
	Subtotal       *decimal.Decimal                 `json:"subtotal,omitempty"`
	Total          *decimal.Decimal                 `json:"total,omitempty"`
	Notes          string                           `json:"notes,omitempty" validate:"max=500"`
	SellerID       int64                            `json:"-"`
	IdempotencyKey string                           `json:"-"`
}

type SaleResult struct {
	Sale      Sale                      `json:"sale"`
	Movements []inventory.StockMovement `json:"movements"`
}

type ListFilter struct {
	From       time.Time
	To         time.Time
	CustomerID *int64
	SellerID   *int64
	Limit      int
	Offset     int
}

// ============================================================================
// ERRORS
// ============================================================================

var (
	ErrNotFound          = fmt.Errorf("sales: sale %w", shared.ErrNotFound)
	ErrEmptyCart         = fmt.Errorf("sales: at least one item required: %w", shared.ErrValidation)
	ErrInvalidPayment    = fmt.Errorf("sales: invalid payment method: %w", shared.ErrValidation)
	ErrInvalidPrice      = fmt.Errorf("sales: unit price must be non-negative with at most two decimals: %w", shared.ErrValidation)
	ErrInvalidDiscount   = fmt.Errorf("sales: discount must be between zero and subtotal with at most two decimals: %w", shared.ErrValidation)
	ErrTotalsMismatch    = fmt.Errorf("sales: client totals do not match: %w", shared.ErrValidation)
	ErrCustomerAmbiguous = fmt.Errorf("sales: customer_id and new_customer are exclusive: %w", shared.ErrValidation)
	ErrSellerRequired    = fmt.Errorf("sales: seller required: %w", shared.ErrValidation)
	ErrProductInactive   = fmt.Errorf("sales: product is inactive: %w", shared.ErrConflict)
)

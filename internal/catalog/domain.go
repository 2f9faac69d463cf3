package catalog

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Supplier is a vendor identified by its 11 digit RUC.
type Supplier struct {
	ID        int64     `json:"id"`
	RUC       string    `json:"ruc"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Address   string    `json:"address,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateProductInput registers a product. Stock always starts at zero and only moves through
// the ledger.
type CreateProductInput struct {
	Name           string          `json:"name" validate:"required,max=200"`
	Description    string          `json:"description,omitempty" validate:"max=1000"`
	Category       string          `json:"category,omitempty" validate:"max=100"`
	SupplierID     *int64          `json:"supplier_id,omitempty" validate:"omitempty,gt=0"`
	PurchasePrice  decimal.Decimal `json:"purchase_price"`
	SalePrice      decimal.Decimal `json:"sale_price"`
	MinStock       *int            `json:"min_stock,omitempty" validate:"omitempty,gte=0"`
	ExpirationDate *time.Time      `json:"expiration_date,omitempty"`
}

// UpdateProductInput patches non-stock fields. Nil fields are left untouched.
type UpdateProductInput struct {
	Name           *string          `json:"name,omitempty" validate:"omitempty,max=200"`
	Description    *string          `json:"description,omitempty" validate:"omitempty,max=1000"`
	Category       *string          `json:"category,omitempty" validate:"omitempty,max=100"`
	SupplierID     *int64           `json:"supplier_id,omitempty" validate:"omitempty,gt=0"`
	PurchasePrice  *decimal.Decimal `json:"purchase_price,omitempty"`
	SalePrice      *decimal.Decimal `json:"sale_price,omitempty"`
	MinStock       *int             `json:"min_stock,omitempty" validate:"omitempty,gte=0"`
	ExpirationDate *time.Time       `json:"expiration_date,omitempty"`
	IsActive       *bool            `json:"is_active,omitempty"`
}

// CreateSupplierInput registers a supplier.
type CreateSupplierInput struct {
	RUC     string `json:"ruc" validate:"required,numeric,len=11"`
	Name    string `json:"name" validate:"required,max=200"`
	Contact string `json:"contact,omitempty" validate:"max=200"`
	Phone   string `json:"phone,omitempty" validate:"max=50"`
	Email   string `json:"email,omitempty" validate:"omitempty,email"`
	Address string `json:"address,omitempty" validate:"max=300"`
}

// ProductFilter narrows product listings.
type ProductFilter struct {
	Search     string
	Category   string
	SupplierID *int64
	Active     *bool
	Limit      int
	Offset     int
}

var (
	ErrSupplierNotFound = fmt.Errorf("catalog: supplier %w", shared.ErrNotFound)
	ErrDuplicateRUC     = fmt.Errorf("catalog: supplier ruc already registered: %w", shared.ErrConflict)
	ErrInvalidPrice     = fmt.Errorf("catalog: prices must be non-negative with at most two decimals: %w", shared.ErrValidation)
)

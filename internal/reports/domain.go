package reports

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Dashboard windows.
const (
	ExpiringWindow   = 30 * 24 * time.Hour
	TopProductsLimit = 5
	RecentSalesLimit = 10
)

// SalesSummary aggregates completed sales in a window.
type SalesSummary struct {
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

// ExpiringProduct is an active product whose expiration date falls in the warning window.
type ExpiringProduct struct {
	ID             int64     `json:"id"`
	Code           string    `json:"code"`
	Name           string    `json:"name"`
	Stock          int       `json:"stock"`
	ExpirationDate time.Time `json:"expiration_date"`
}

// TopProduct ranks products by units sold.
type TopProduct struct {
	ProductID int64           `json:"product_id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Revenue   decimal.Decimal `json:"revenue"`
}

// RecentSale is a sale header for the dashboard feed.
type RecentSale struct {
	Code          string          `json:"code"`
	CustomerName  string          `json:"customer_name,omitempty"`
	PaymentMethod string          `json:"payment_method"`
	Total         decimal.Decimal `json:"total"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Dashboard is the landing page read model.
type Dashboard struct {
	GeneratedAt   time.Time         `json:"generated_at"`
	Today         SalesSummary      `json:"today"`
	Month         SalesSummary      `json:"month"`
	LowStockCount int               `json:"low_stock_count"`
	ExpiringSoon  []ExpiringProduct `json:"expiring_soon"`
	TopProducts   []TopProduct      `json:"top_products"`
	RecentSales   []RecentSale      `json:"recent_sales"`
}

// Granularity selects the bucket size of a sales series.
type Granularity string

const (
	Daily   Granularity = "day"
	Monthly Granularity = "month"
)

// SeriesPoint is one bucket of a sales series.
type SeriesPoint struct {
	Period time.Time       `json:"period"`
	Count  int             `json:"count"`
	Total  decimal.Decimal `json:"total"`
}

// CustomerRank ranks customers by number of purchases.
type CustomerRank struct {
	CustomerID int64           `json:"customer_id"`
	Name       string          `json:"name"`
	Sales      int             `json:"sales"`
	Total      decimal.Decimal `json:"total"`
}

// SupplierTotal sums received purchases per supplier.
type SupplierTotal struct {
	SupplierID int64           `json:"supplier_id"`
	Name       string          `json:"name"`
	Purchases  int             `json:"purchases"`
	Total      decimal.Decimal `json:"total"`
}

// SalesReportFilter selects the report window. To is exclusive.
type SalesReportFilter struct {
	From        time.Time
	To          time.Time
	Granularity Granularity
}

// SalesReport is the reports page read model.
type SalesReport struct {
	From                time.Time       `json:"from"`
	To                  time.Time       `json:"to"`
	Granularity         Granularity     `json:"granularity"`
	Series              []SeriesPoint   `json:"series"`
	TopProducts         []TopProduct    `json:"top_products"`
	FrequentCustomers   []CustomerRank  `json:"frequent_customers"`
	PurchasesBySupplier []SupplierTotal `json:"purchases_by_supplier"`
}

// ErrInvalidRange indicates a report window that is empty or too wide.
var ErrInvalidRange = fmt.Errorf("reports: invalid date range: %w", shared.ErrValidation)

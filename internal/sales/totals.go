package sales

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Totals holds the header amounts of a sale.
type Totals struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// LineSubtotal is quantity * unit price.
func LineSubtotal(quantity int, unitPrice decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// CalculateTotals applies the discount before tax and rounds tax to cents.
func CalculateTotals(lines []LineInput, discount, taxRate decimal.Decimal) (Totals, error) {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(LineSubtotal(line.Quantity, line.UnitPrice))
	}
	if !shared.ValidAmount(discount) || discount.GreaterThan(subtotal) {
		return Totals{}, ErrInvalidDiscount
	}
	taxable := subtotal.Sub(discount)
	tax := taxable.Mul(taxRate).Round(2)
	return Totals{
		Subtotal: subtotal,
		Discount: discount,
		Tax:      tax,
		Total:    taxable.Add(tax),
	}, nil
}

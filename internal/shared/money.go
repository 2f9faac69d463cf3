package shared

import "github.com/shopspring/decimal"

// ValidAmount reports whether d fits a NUMERIC(12,2) money column: non-negative with at most two decimals.
func ValidAmount(d decimal.Decimal) bool {
	return !d.IsNegative() && d.Exponent() >= -2
}

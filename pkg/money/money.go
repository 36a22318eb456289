// Package money holds integer-cents arithmetic shared by pricing, coupons and
// refunds. Intermediate products go through decimal so nothing is computed in
// floating point.
package money

import (
	"github.com/shopspring/decimal"
)

const CurrencySymbol = "₹"

var hundred = decimal.NewFromInt(100)

// Prorate returns round_half_up(total * part / whole). A non-positive whole
// yields 0.
func Prorate(total, part, whole int64) int64 {
	if whole <= 0 {
		return 0
	}
	v := decimal.NewFromInt(total).
		Mul(decimal.NewFromInt(part)).
		Div(decimal.NewFromInt(whole)).
		Round(0)
	return v.IntPart()
}

// PercentBPS returns amount * bps / 10000, rounded half-up to the cent.
func PercentBPS(amount, bps int64) int64 {
	return Prorate(amount, bps, 10000)
}

// Min returns the smaller amount.
func Min(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// FromCents converts minor units to a 2-place decimal.
func FromCents(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Shift(-2)
}

// ToCents converts a decimal amount to minor units, rounding half-up.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FormatWhole renders cents as a whole currency amount, e.g. "₹500".
func FormatWhole(cents int64) string {
	return CurrencySymbol + FromCents(cents).StringFixed(0)
}

// Format renders cents with two decimals, e.g. "₹1170.00".
func Format(cents int64) string {
	return CurrencySymbol + FromCents(cents).StringFixed(2)
}

// Package money holds the currency rules shared by totals and settlement:
// two-decimal half-up rounding and the 0.009 tolerance for "fully paid".
package money

import "github.com/shopspring/decimal"

// Tolerance is the residual below which an amount counts as settled.
var Tolerance = decimal.RequireFromString("0.009")

// Round2 rounds to cents, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

// Round3 is used for stock quantities.
func Round3(d decimal.Decimal) decimal.Decimal { return d.Round(3) }

// Round4 is used for unit costs.
func Round4(d decimal.Decimal) decimal.Decimal { return d.Round(4) }

// Owed reports whether due is still above the tolerance.
func Owed(due decimal.Decimal) bool { return due.GreaterThan(Tolerance) }

// Settled is the complement of Owed.
func Settled(due decimal.Decimal) bool { return !Owed(due) }

// FloorZero clamps negative amounts (overpayment) to zero.
func FloorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// LineTotal is unit price times quantity, rounded to cents.
func LineTotal(unitPrice decimal.Decimal, qty int32) decimal.Decimal {
	return Round2(unitPrice.Mul(decimal.NewFromInt32(qty)))
}

// GrandTotal applies discount and service charge and never goes below zero.
func GrandTotal(subtotal, discount, service decimal.Decimal) decimal.Decimal {
	return Round2(FloorZero(subtotal.Sub(discount).Add(service)))
}

// Format renders an amount with exactly two decimals.
func Format(d decimal.Decimal) string { return d.StringFixed(2) }

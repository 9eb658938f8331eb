package shared

import "github.com/shopspring/decimal"

// Round2 rounds a monetary amount to two decimal places, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// FormatMoney renders an amount with exactly two decimal places.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// MoneyEqual compares two amounts after rounding to cents.
func MoneyEqual(a, b decimal.Decimal) bool {
	return Round2(a).Equal(Round2(b))
}

// Package money holds the business rounding rules. Every monetary value in
// the system passes through RoundCents at the aggregation step that produces
// it; totals are reconciled to the cent against historical quotes, so the
// rounding points are load-bearing.
package money

import "github.com/shopspring/decimal"

// Common increments used by the pricing rules.
var (
	CostIncrement = decimal.RequireFromString("2.5")
	PageIncrement = decimal.RequireFromString("0.1")
)

// RoundCents rounds to 2 decimal places, half away from zero.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// CeilToIncrement rounds d up to the nearest multiple of inc. A value already
// on a multiple is unchanged.
func CeilToIncrement(d, inc decimal.Decimal) decimal.Decimal {
	if inc.IsZero() {
		return d
	}
	return d.Div(inc).Ceil().Mul(inc)
}

// CeilPagesTenth rounds a billable-page count up to the nearest 0.1 page.
func CeilPagesTenth(pages decimal.Decimal) decimal.Decimal {
	return CeilToIncrement(pages, PageIncrement)
}

// CeilCost rounds a per-document translation cost up to the nearest $2.50.
func CeilCost(cost decimal.Decimal) decimal.Decimal {
	return CeilToIncrement(cost, CostIncrement)
}

package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/lingua-desk/quoteflow/internal/money"
)

// AdjustmentKind selects the arithmetic for a surcharge or discount.
type AdjustmentKind string

const (
	AdjustmentFlat    AdjustmentKind = "flat"
	AdjustmentPercent AdjustmentKind = "percent"
)

// Adjustment is a surcharge or discount: either a flat amount or a
// percentage of the pre-rush subtotal. One evaluator replaces the string-tag
// branching that used to be scattered across call sites.
type Adjustment struct {
	Kind  AdjustmentKind  `json:"kind"`
	Value decimal.Decimal `json:"value"`
}

// Flat builds a flat-amount adjustment.
func Flat(value decimal.Decimal) Adjustment {
	return Adjustment{Kind: AdjustmentFlat, Value: value}
}

// Percent builds a percentage adjustment; value is in percent, not a ratio.
func Percent(value decimal.Decimal) Adjustment {
	return Adjustment{Kind: AdjustmentPercent, Value: value}
}

// AmountOf evaluates the adjustment against a base amount, rounded to cents.
func (a Adjustment) AmountOf(base decimal.Decimal) decimal.Decimal {
	switch a.Kind {
	case AdjustmentPercent:
		return money.RoundCents(base.Mul(a.Value).Div(decimal.NewFromInt(100)))
	case AdjustmentFlat:
		return money.RoundCents(a.Value)
	default:
		return decimal.Zero
	}
}

// IsZero reports whether the adjustment contributes nothing.
func (a Adjustment) IsZero() bool {
	return a.Kind == "" || a.Value.IsZero()
}

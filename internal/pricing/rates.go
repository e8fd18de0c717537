package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/lingua-desk/quoteflow/internal/model"
)

// Rates holds the business pricing constants. Values come from the settings
// store via config; DefaultRates is the hard-coded fallback when the store is
// unreachable.
type Rates struct {
	BaseRate          decimal.Decimal
	WordsPerPage      int
	Complexity        map[model.ComplexityLevel]decimal.Decimal
	RushMultiplier    decimal.Decimal
	SameDayMultiplier decimal.Decimal
}

// DefaultRates returns the default pricing configuration.
func DefaultRates() Rates {
	return Rates{
		BaseRate:     decimal.RequireFromString("65"),
		WordsPerPage: 225,
		Complexity: map[model.ComplexityLevel]decimal.Decimal{
			model.ComplexityEasy:   decimal.RequireFromString("1.0"),
			model.ComplexityMedium: decimal.RequireFromString("1.15"),
			model.ComplexityHard:   decimal.RequireFromString("1.25"),
		},
		RushMultiplier:    decimal.RequireFromString("1.30"),
		SameDayMultiplier: decimal.RequireFromString("2.00"),
	}
}

// TurnaroundMultiplier returns the price multiplier for a turnaround tier.
// Standard is 1.0.
func (r Rates) TurnaroundMultiplier(t model.TurnaroundType) decimal.Decimal {
	switch t {
	case model.TurnaroundRush:
		return r.RushMultiplier
	case model.TurnaroundSameDay:
		return r.SameDayMultiplier
	default:
		return decimal.NewFromInt(1)
	}
}

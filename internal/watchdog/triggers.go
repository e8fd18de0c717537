package watchdog

import (
	"github.com/shopspring/decimal"

	"github.com/lingua-desk/quoteflow/internal/model"
)

// TriggerConfig holds the thresholds that route a quote into human review.
type TriggerConfig struct {
	// Minimum acceptable confidence per field; anything below triggers.
	MinOCRConfidence      float64
	MinLanguageConfidence float64
	MinClassifyConfidence float64

	// Order-level triggers.
	HighValueThreshold decimal.Decimal
	HighPageThreshold  int
}

// DefaultTriggerConfig returns the default review thresholds.
func DefaultTriggerConfig() TriggerConfig {
	return TriggerConfig{
		MinOCRConfidence:      0.75,
		MinLanguageConfidence: 0.80,
		MinClassifyConfidence: 0.70,
		HighValueThreshold:    decimal.RequireFromString("1000"),
		HighPageThreshold:     50,
	}
}

// Evaluate inspects completed analysis results plus order characteristics and
// returns the review trigger reasons that fire, in a stable order. An empty
// result means the quote can proceed straight to pricing.
func Evaluate(cfg TriggerConfig, results []model.PendingAnalysis, orderTotal decimal.Decimal, totalPages int, customerRequested bool) []model.TriggerReason {
	var reasons []model.TriggerReason
	seen := map[model.TriggerReason]bool{}
	add := func(r model.TriggerReason) {
		if !seen[r] {
			seen[r] = true
			reasons = append(reasons, r)
		}
	}

	for _, res := range results {
		if res.Status != model.AnalysisComplete {
			continue
		}
		if res.Confidence.OCR < cfg.MinOCRConfidence {
			add(model.TriggerLowOCRConfidence)
		}
		if res.Confidence.Language < cfg.MinLanguageConfidence {
			add(model.TriggerLowLanguageConfidence)
		}
		if res.Confidence.Classification < cfg.MinClassifyConfidence {
			add(model.TriggerLowClassifyConfidence)
		}
	}

	if orderTotal.GreaterThanOrEqual(cfg.HighValueThreshold) {
		add(model.TriggerHighValueOrder)
	}
	if totalPages >= cfg.HighPageThreshold {
		add(model.TriggerHighPageCount)
	}
	if customerRequested {
		add(model.TriggerCustomerRequested)
	}
	return reasons
}

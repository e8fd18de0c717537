package watchdog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/lingua-desk/quoteflow/internal/model"
)

func TestEvaluate(t *testing.T) {
	cfg := DefaultTriggerConfig()
	money := decimal.RequireFromString

	tests := []struct {
		name      string
		results   []model.PendingAnalysis
		total     decimal.Decimal
		pages     int
		requested bool
		want      []model.TriggerReason
	}{
		{
			name:    "clean analysis proceeds",
			results: []model.PendingAnalysis{complete("d1", 0.95, 0.92, 0.90)},
			total:   money("169"),
			pages:   3,
			want:    nil,
		},
		{
			name:    "low ocr confidence",
			results: []model.PendingAnalysis{complete("d1", 0.60, 0.92, 0.90)},
			want:    []model.TriggerReason{model.TriggerLowOCRConfidence},
		},
		{
			name:    "low language confidence",
			results: []model.PendingAnalysis{complete("d1", 0.95, 0.70, 0.90)},
			want:    []model.TriggerReason{model.TriggerLowLanguageConfidence},
		},
		{
			name:    "low classification confidence",
			results: []model.PendingAnalysis{complete("d1", 0.95, 0.92, 0.50)},
			want:    []model.TriggerReason{model.TriggerLowClassifyConfidence},
		},
		{
			name: "duplicate reasons reported once",
			results: []model.PendingAnalysis{
				complete("d1", 0.40, 0.92, 0.90),
				complete("d2", 0.30, 0.92, 0.90),
			},
			want: []model.TriggerReason{model.TriggerLowOCRConfidence},
		},
		{
			name:    "unfinished results are ignored",
			results: []model.PendingAnalysis{processing("d1")},
			want:    nil,
		},
		{
			name:  "high value threshold is inclusive",
			total: money("1000"),
			want:  []model.TriggerReason{model.TriggerHighValueOrder},
		},
		{
			name:  "just under the value threshold",
			total: money("999.99"),
			want:  nil,
		},
		{
			name:  "high page count",
			pages: 50,
			want:  []model.TriggerReason{model.TriggerHighPageCount},
		},
		{
			name:      "customer requested",
			requested: true,
			want:      []model.TriggerReason{model.TriggerCustomerRequested},
		},
		{
			name:      "reasons collect in stable order",
			results:   []model.PendingAnalysis{complete("d1", 0.40, 0.50, 0.90)},
			total:     money("2500"),
			pages:     80,
			requested: true,
			want: []model.TriggerReason{
				model.TriggerLowOCRConfidence,
				model.TriggerLowLanguageConfidence,
				model.TriggerHighValueOrder,
				model.TriggerHighPageCount,
				model.TriggerCustomerRequested,
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Evaluate(cfg, tc.results, tc.total, tc.pages, tc.requested)
			assert.Equal(t, tc.want, got)
		})
	}
}

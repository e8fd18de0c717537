package pricing

import (
	"fmt"

	"github.com/lingua-desk/quoteflow/internal/model"
)

// Snapshot captures the price-relevant input fields of a quote as last
// persisted. Change detection compares fields, never totals: an edit that
// happens to leave the total unchanged is still a change and must be logged.
type Snapshot struct {
	Turnaround     model.TurnaroundType `json:"turnaround"`
	DeliveryOption string               `json:"delivery_option"`
	Certifications []CertificationLine  `json:"certifications"`
	Surcharge      Adjustment           `json:"surcharge"`
	Discount       Adjustment           `json:"discount"`
}

// FieldChange records one changed input field between two snapshots.
type FieldChange struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// DetectChanges compares every input field of two snapshots and returns the
// differences. An empty result means the quote can be re-sent without a
// version bump.
func DetectChanges(prev, next Snapshot) []FieldChange {
	var changes []FieldChange

	if prev.Turnaround != next.Turnaround {
		changes = append(changes, FieldChange{"turnaround", string(prev.Turnaround), string(next.Turnaround)})
	}
	if prev.DeliveryOption != next.DeliveryOption {
		changes = append(changes, FieldChange{"delivery_option", prev.DeliveryOption, next.DeliveryOption})
	}
	if !adjustmentsEqual(prev.Surcharge, next.Surcharge) {
		changes = append(changes, FieldChange{"surcharge", formatAdjustment(prev.Surcharge), formatAdjustment(next.Surcharge)})
	}
	if !adjustmentsEqual(prev.Discount, next.Discount) {
		changes = append(changes, FieldChange{"discount", formatAdjustment(prev.Discount), formatAdjustment(next.Discount)})
	}
	if !certificationsEqual(prev.Certifications, next.Certifications) {
		changes = append(changes, FieldChange{
			Field: "certifications",
			Old:   fmt.Sprintf("%d lines", countActive(prev.Certifications)),
			New:   fmt.Sprintf("%d lines", countActive(next.Certifications)),
		})
	}
	return changes
}

func adjustmentsEqual(a, b Adjustment) bool {
	if a.IsZero() && b.IsZero() {
		return true
	}
	return a.Kind == b.Kind && a.Value.Equal(b.Value)
}

func certificationsEqual(a, b []CertificationLine) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].GroupID != b[i].GroupID ||
			a[i].Quantity != b[i].Quantity ||
			a[i].Deleted != b[i].Deleted ||
			!a[i].UnitPrice.Equal(b[i].UnitPrice) {
			return false
		}
	}
	return true
}

func countActive(lines []CertificationLine) int {
	n := 0
	for _, l := range lines {
		if !l.Deleted {
			n++
		}
	}
	return n
}

func formatAdjustment(a Adjustment) string {
	if a.IsZero() {
		return "none"
	}
	return fmt.Sprintf("%s %s", a.Kind, a.Value)
}

package pricing

import (
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/lingua-desk/quoteflow/internal/model"
	"github.com/lingua-desk/quoteflow/internal/money"
)

// ErrInvalidInput marks a precondition violation such as a negative word
// count. Invalid inputs are rejected before any calculation.
var ErrInvalidInput = eris.New("pricing: invalid input")

// Warning is a data-quality finding surfaced alongside a result rather than
// failing it, e.g. an unknown complexity level falling back to 1.0.
type Warning struct {
	DocumentID string `json:"document_id,omitempty"`
	Field      string `json:"field"`
	Message    string `json:"message"`
}

var minDocumentPages = decimal.NewFromInt(1)

// PageUnits converts a single page's word count into billable pages:
// ceil(words / wordsPerPage * multiplier * 10) / 10. Zero words yields zero.
// An unknown complexity level uses multiplier 1.0 and returns a warning.
func PageUnits(words int, level model.ComplexityLevel, rates Rates) (decimal.Decimal, *Warning, error) {
	if words < 0 {
		return decimal.Zero, nil, eris.Wrapf(ErrInvalidInput, "negative word count %d", words)
	}
	if words == 0 {
		return decimal.Zero, nil, nil
	}

	mult, ok := rates.Complexity[level]
	var warn *Warning
	if !ok {
		mult = decimal.NewFromInt(1)
		warn = &Warning{
			Field:   "complexity",
			Message: "unknown complexity level " + string(level) + ", defaulting multiplier to 1.0",
		}
	}

	raw := decimal.NewFromInt(int64(words)).
		Div(decimal.NewFromInt(int64(rates.WordsPerPage))).
		Mul(mult)
	return money.CeilPagesTenth(raw), warn, nil
}

// DocumentPages sums billable pages across a document's pages and applies the
// per-document minimum of 1.0. A document whose pages all have zero words
// still bills the minimum.
func DocumentPages(doc model.Document, rates Rates) (decimal.Decimal, []Warning, error) {
	total := decimal.Zero
	var warnings []Warning

	for _, p := range doc.Pages {
		units, warn, err := PageUnits(p.WordCount, doc.Complexity, rates)
		if err != nil {
			return decimal.Zero, nil, eris.Wrapf(err, "document %s page %d", doc.ID, p.Number)
		}
		if warn != nil {
			warn.DocumentID = doc.ID
			warnings = append(warnings, *warn)
		}
		total = total.Add(units)
	}

	if total.LessThan(minDocumentPages) {
		total = minDocumentPages
	}
	return total, warnings, nil
}

package pricing

import (
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/lingua-desk/quoteflow/internal/model"
	"github.com/lingua-desk/quoteflow/internal/money"
)

// DocumentInput is the per-document slice of the calculator input.
type DocumentInput struct {
	DocumentID         string          `json:"document_id"`
	BillablePages      decimal.Decimal `json:"billable_pages"`
	LanguageMultiplier decimal.Decimal `json:"language_multiplier"`
}

// CertificationLine is one active or deleted certification charge.
type CertificationLine struct {
	GroupID   string          `json:"group_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Deleted   bool            `json:"deleted"`
}

// Input is everything the calculator needs. Calculate is pure: identical
// inputs always produce identical breakdowns.
type Input struct {
	Documents      []DocumentInput      `json:"documents"`
	Certifications []CertificationLine  `json:"certifications"`
	Surcharge      Adjustment           `json:"surcharge"`
	Discount       Adjustment           `json:"discount"`
	Turnaround     model.TurnaroundType `json:"turnaround"`
	DeliveryFee    decimal.Decimal      `json:"delivery_fee"`
	TaxRate        decimal.Decimal      `json:"tax_rate"`
	PreviousTotal  *decimal.Decimal     `json:"previous_total,omitempty"`
	Rates          Rates                `json:"-"`
}

// DocumentLine is the priced result for one document.
type DocumentLine struct {
	DocumentID    string          `json:"document_id"`
	BillablePages decimal.Decimal `json:"billable_pages"`
	Cost          decimal.Decimal `json:"cost"`
}

// Breakdown is the structured pricing result. Each component is rounded to
// cents at the step that produces it, not only at the end; historical quotes
// reconcile against these exact rounding points.
type Breakdown struct {
	Lines              []DocumentLine  `json:"lines"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	CertificationTotal decimal.Decimal `json:"certification_total"`
	SurchargeTotal     decimal.Decimal `json:"surcharge_total"`
	DiscountTotal      decimal.Decimal `json:"discount_total"`
	RushFee            decimal.Decimal `json:"rush_fee"`
	DeliveryFee        decimal.Decimal `json:"delivery_fee"`
	TaxableBase        decimal.Decimal `json:"taxable_base"`
	TaxAmount          decimal.Decimal `json:"tax_amount"`
	Total              decimal.Decimal `json:"total"`
	BalanceChange      *decimal.Decimal `json:"balance_change,omitempty"`
}

// Calculate prices a quote. Per-document translation cost is rounded up to
// the nearest $2.50; surcharge, discount and the rush fee apply to the
// translation+certification subtotal before delivery; tax applies to the
// full taxable base.
func Calculate(in Input) (Breakdown, error) {
	if in.TaxRate.IsNegative() {
		return Breakdown{}, eris.Wrapf(ErrInvalidInput, "negative tax rate %s", in.TaxRate)
	}
	if in.DeliveryFee.IsNegative() {
		return Breakdown{}, eris.Wrapf(ErrInvalidInput, "negative delivery fee %s", in.DeliveryFee)
	}

	var out Breakdown
	out.Subtotal = decimal.Zero
	for _, doc := range in.Documents {
		if doc.BillablePages.IsNegative() {
			return Breakdown{}, eris.Wrapf(ErrInvalidInput, "document %s: negative billable pages", doc.DocumentID)
		}
		mult := doc.LanguageMultiplier
		if mult.IsZero() {
			mult = decimal.NewFromInt(1)
		}
		cost := money.CeilCost(doc.BillablePages.Mul(in.Rates.BaseRate).Mul(mult))
		cost = money.RoundCents(cost)
		out.Lines = append(out.Lines, DocumentLine{
			DocumentID:    doc.DocumentID,
			BillablePages: doc.BillablePages,
			Cost:          cost,
		})
		out.Subtotal = out.Subtotal.Add(cost)
	}
	out.Subtotal = money.RoundCents(out.Subtotal)

	out.CertificationTotal = decimal.Zero
	for _, cert := range in.Certifications {
		if cert.Deleted || cert.Quantity <= 0 {
			continue
		}
		line := money.RoundCents(cert.UnitPrice.Mul(decimal.NewFromInt(int64(cert.Quantity))))
		out.CertificationTotal = out.CertificationTotal.Add(line)
	}
	out.CertificationTotal = money.RoundCents(out.CertificationTotal)

	// Surcharge, discount and rush all key off the pre-rush, pre-delivery
	// subtotal.
	adjustBase := out.Subtotal.Add(out.CertificationTotal)
	out.SurchargeTotal = in.Surcharge.AmountOf(adjustBase)
	out.DiscountTotal = in.Discount.AmountOf(adjustBase)

	out.RushFee = decimal.Zero
	if in.Turnaround != model.TurnaroundStandard && in.Turnaround != "" {
		mult := in.Rates.TurnaroundMultiplier(in.Turnaround)
		out.RushFee = money.RoundCents(adjustBase.Mul(mult.Sub(decimal.NewFromInt(1))))
	}

	out.DeliveryFee = money.RoundCents(in.DeliveryFee)

	out.TaxableBase = money.RoundCents(adjustBase.
		Add(out.SurchargeTotal).
		Sub(out.DiscountTotal).
		Add(out.RushFee).
		Add(out.DeliveryFee))
	out.TaxAmount = money.RoundCents(out.TaxableBase.Mul(in.TaxRate))
	out.Total = money.RoundCents(out.TaxableBase.Add(out.TaxAmount))

	if in.PreviousTotal != nil {
		delta := money.RoundCents(out.Total.Sub(*in.PreviousTotal))
		out.BalanceChange = &delta
	}
	return out, nil
}

package workflow

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lingua-desk/quoteflow/internal/model"
	"github.com/lingua-desk/quoteflow/internal/pricing"
	"github.com/lingua-desk/quoteflow/internal/store"
)

// DeliveryPriceTable maps delivery-option codes to fees. Digital-only
// delivery is always free.
type DeliveryPriceTable map[string]decimal.Decimal

// FeeFor returns the delivery fee for an option code, zero when unknown or
// digital.
func (t DeliveryPriceTable) FeeFor(option string) decimal.Decimal {
	if option == "" || option == "digital" {
		return decimal.Zero
	}
	if fee, ok := t[option]; ok {
		return fee
	}
	return decimal.Zero
}

// SetDeliveryTable installs the externally supplied delivery price table.
func (s *Service) SetDeliveryTable(t DeliveryPriceTable) { s.delivery = t }

// Recalculate re-runs the pricing calculator against the most recently
// persisted state of the quote and stores the resulting breakdown. It is the
// single recalculation path used after every staff edit and grouping change.
func (s *Service) Recalculate(ctx context.Context, quoteID string) (*pricing.Breakdown, []pricing.Warning, error) {
	quote, err := s.store.GetQuote(ctx, quoteID)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "workflow: recalculate %s", quoteID)
	}

	// A terminal review freezes pricing along with everything else.
	review, err := s.store.GetReviewByQuote(ctx, quoteID)
	if err != nil && !eris.Is(err, store.ErrNotFound) {
		return nil, nil, eris.Wrapf(err, "workflow: recalculate %s", quoteID)
	}
	if review != nil && review.Status.Terminal() {
		return nil, nil, eris.Wrapf(ErrTerminalState, "quote %s review is %s", quoteID, review.Status)
	}

	docs, err := s.store.GetDocuments(ctx, quoteID)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "workflow: load documents %s", quoteID)
	}
	groups, err := s.store.GetGroups(ctx, quoteID)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "workflow: load groups %s", quoteID)
	}

	in, warnings, err := s.buildInput(quote, docs, groups)
	if err != nil {
		return nil, nil, err
	}
	breakdown, err := pricing.Calculate(in)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "workflow: price quote %s", quoteID)
	}

	// Persist per-document billing lines, then the quote totals.
	for _, line := range breakdown.Lines {
		if err := s.store.UpdateDocumentBilling(ctx, line.DocumentID, line.BillablePages, line.Cost); err != nil {
			return nil, nil, eris.Wrapf(err, "workflow: persist billing for document %s", line.DocumentID)
		}
	}
	totals := store.QuoteTotals{
		Subtotal:           breakdown.Subtotal,
		CertificationTotal: breakdown.CertificationTotal,
		SurchargeTotal:     breakdown.SurchargeTotal,
		DiscountTotal:      breakdown.DiscountTotal,
		RushFee:            breakdown.RushFee,
		DeliveryFee:        breakdown.DeliveryFee,
		TaxRate:            quote.TaxRate,
		TaxAmount:          breakdown.TaxAmount,
		Total:              breakdown.Total,
		BalanceDue:         breakdown.Total.Sub(quote.AmountPaid),
	}
	if err := s.store.UpdateQuoteTotals(ctx, quoteID, totals); err != nil {
		return nil, nil, eris.Wrapf(err, "workflow: persist totals %s", quoteID)
	}

	for _, w := range warnings {
		zap.L().Warn("pricing data-quality warning",
			zap.String("quote_id", quoteID),
			zap.String("document_id", w.DocumentID),
			zap.String("field", w.Field),
			zap.String("message", w.Message),
		)
	}
	return &breakdown, warnings, nil
}

// buildInput assembles the pure calculator input from persisted state.
func (s *Service) buildInput(quote *model.Quote, docs []model.Document, groups []model.DocumentGroup) (pricing.Input, []pricing.Warning, error) {
	var warnings []pricing.Warning
	in := pricing.Input{
		Turnaround:  quote.Turnaround,
		DeliveryFee: s.delivery.FeeFor(quote.DeliveryOption),
		TaxRate:     quote.TaxRate,
		Rates:       s.rates,
	}
	prev := quote.Total
	if !prev.IsZero() {
		in.PreviousTotal = &prev
	}

	langMult := quote.LanguageMultiplier
	if langMult.IsZero() {
		langMult = decimal.NewFromInt(1)
	}
	for _, doc := range docs {
		pages, w, err := pricing.DocumentPages(doc, s.rates)
		if err != nil {
			return pricing.Input{}, nil, eris.Wrapf(err, "workflow: pages for document %s", doc.ID)
		}
		warnings = append(warnings, w...)
		in.Documents = append(in.Documents, pricing.DocumentInput{
			DocumentID:         doc.ID,
			BillablePages:      pages,
			LanguageMultiplier: langMult,
		})
	}

	for _, g := range groups {
		in.Certifications = append(in.Certifications, pricing.CertificationLine{
			GroupID:   g.ID,
			Quantity:  g.CertQuantity,
			UnitPrice: g.CertUnitPrice,
			Deleted:   g.Deleted,
		})
	}

	in.Surcharge = pricing.Adjustment{Kind: pricing.AdjustmentKind(quote.SurchargeKind), Value: quote.SurchargeValue}
	in.Discount = pricing.Adjustment{Kind: pricing.AdjustmentKind(quote.DiscountKind), Value: quote.DiscountValue}
	return in, warnings, nil
}

// SetTurnaround changes the quote's turnaround tier and delivery option,
// audits the edit, and reprices.
func (s *Service) SetTurnaround(ctx context.Context, staff model.StaffContext, quoteID string, turnaround model.TurnaroundType, deliveryOption string) (*pricing.Breakdown, error) {
	quote, err := s.store.GetQuote(ctx, quoteID)
	if err != nil {
		return nil, eris.Wrapf(err, "workflow: set turnaround %s", quoteID)
	}
	if err := s.store.UpdateQuoteOptions(ctx, quoteID, turnaround, deliveryOption); err != nil {
		return nil, eris.Wrapf(err, "workflow: set turnaround %s", quoteID)
	}

	changes := pricing.DetectChanges(
		pricing.Snapshot{Turnaround: quote.Turnaround, DeliveryOption: quote.DeliveryOption},
		pricing.Snapshot{Turnaround: turnaround, DeliveryOption: deliveryOption},
	)
	for _, c := range changes {
		s.audit(ctx, model.AuditRecord{
			QuoteID:  quoteID,
			StaffID:  staff.StaffID,
			Action:   model.AuditQuoteEdit,
			Field:    c.Field,
			OldValue: c.Old,
			NewValue: c.New,
		})
	}

	breakdown, _, err := s.Recalculate(ctx, quoteID)
	return breakdown, err
}

// Correction is one staff fix to analyzed data.
type Correction struct {
	PageID     string                `json:"page_id,omitempty"`
	WordCount  *int                  `json:"word_count,omitempty"`
	DocumentID string                `json:"document_id,omitempty"`
	Complexity model.ComplexityLevel `json:"complexity,omitempty"`
}

// CorrectionFailure reports one correction that could not be applied.
type CorrectionFailure struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// ApplyCorrections applies a batch of staff corrections best-effort: each
// failure is reported rather than aborting the batch, and pricing is re-run
// once at the end over whatever succeeded.
func (s *Service) ApplyCorrections(ctx context.Context, staff model.StaffContext, quoteID string, corrections []Correction) (*pricing.Breakdown, []CorrectionFailure, error) {
	review, err := s.store.GetReviewByQuote(ctx, quoteID)
	if err != nil && !eris.Is(err, store.ErrNotFound) {
		return nil, nil, eris.Wrapf(err, "workflow: corrections %s", quoteID)
	}
	if review != nil {
		if err := guardMutable(review); err != nil {
			return nil, nil, err
		}
		if review.AssignedStaffID != staff.StaffID {
			return nil, nil, eris.Wrapf(ErrNotClaimant, "review %s held by %q", review.ID, review.AssignedStaffID)
		}
	}

	var failures []CorrectionFailure
	applied := 0
	for i, c := range corrections {
		var err error
		switch {
		case c.PageID != "" && c.WordCount != nil:
			if *c.WordCount < 0 {
				err = eris.Wrapf(pricing.ErrInvalidInput, "negative word count %d", *c.WordCount)
			} else {
				err = s.store.UpdatePageWordCount(ctx, c.PageID, *c.WordCount)
			}
		case c.DocumentID != "" && c.Complexity != "":
			err = s.store.UpdateDocumentDetection(ctx, c.DocumentID, "", "", c.Complexity, model.Confidence{})
		default:
			err = eris.New("workflow: empty correction")
		}
		if err != nil {
			failures = append(failures, CorrectionFailure{Index: i, Error: err.Error()})
			continue
		}
		applied++
		s.audit(ctx, model.AuditRecord{
			QuoteID: quoteID,
			StaffID: staff.StaffID,
			Action:  model.AuditQuoteEdit,
			Field:   correctionField(c),
		})
	}

	if applied == 0 && len(failures) > 0 {
		return nil, failures, nil
	}
	breakdown, _, err := s.Recalculate(ctx, quoteID)
	return breakdown, failures, err
}

func correctionField(c Correction) string {
	if c.PageID != "" {
		return "page_word_count"
	}
	return "document_complexity"
}

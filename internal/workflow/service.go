package workflow

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lingua-desk/quoteflow/internal/model"
	"github.com/lingua-desk/quoteflow/internal/pricing"
	"github.com/lingua-desk/quoteflow/internal/store"
)

// Notifier is the external notification collaborator. Sends are
// fire-and-forget: failures are logged, never retried here.
type Notifier interface {
	Send(ctx context.Context, template, recipient string, vars map[string]string) error
}

// Service implements the staff-facing workflow operations. Every method takes
// an explicit StaffContext; nothing reads ambient session state. All methods
// confirm against the store before reflecting any state, and every successful
// mutation appends an audit record.
type Service struct {
	store    store.Store
	notifier Notifier
	rates    pricing.Rates
	delivery DeliveryPriceTable
}

// NewService builds a workflow service.
func NewService(st store.Store, notifier Notifier, rates pricing.Rates) *Service {
	return &Service{store: st, notifier: notifier, rates: rates}
}

// guardMutable rejects operations against terminal reviews before anything
// is attempted.
func guardMutable(r *model.HITLReview) error {
	if r.Status.Terminal() {
		return eris.Wrapf(ErrTerminalState, "review %s is %s", r.ID, r.Status)
	}
	return nil
}

// Claim assigns the review to the requesting staff member iff it is
// unclaimed. Re-claiming one's own review is a no-op success. The store
// performs the compare-and-set; local state is only updated from the
// confirmed result.
func (s *Service) Claim(ctx context.Context, staff model.StaffContext, reviewID string) (*model.HITLReview, error) {
	review, err := s.store.GetReview(ctx, reviewID)
	if err != nil {
		return nil, eris.Wrapf(err, "workflow: claim %s", reviewID)
	}
	if err := guardMutable(review); err != nil {
		return nil, err
	}
	if review.AssignedStaffID == staff.StaffID {
		return review, nil
	}
	if review.AssignedStaffID != "" {
		return nil, eris.Wrapf(ErrAlreadyClaimed, "review %s held by %s", reviewID, review.AssignedStaffID)
	}

	claimed, err := s.store.ClaimReview(ctx, reviewID, staff.StaffID)
	if err != nil {
		return nil, eris.Wrapf(err, "workflow: claim %s", reviewID)
	}
	if !claimed {
		return nil, eris.Wrapf(ErrAlreadyClaimed, "review %s was claimed concurrently", reviewID)
	}

	if review.Status == model.ReviewStatusPending {
		next, err := NextReviewStatus(review.Status, EventStartReview)
		if err != nil {
			return nil, err
		}
		if err := s.store.UpdateReviewStatus(ctx, reviewID, next, ""); err != nil {
			return nil, eris.Wrapf(err, "workflow: start review %s", reviewID)
		}
		if err := s.mirrorQuoteStatus(ctx, review.QuoteID, EventStartReview); err != nil {
			return nil, err
		}
	}

	s.audit(ctx, model.AuditRecord{
		QuoteID:  review.QuoteID,
		ReviewID: reviewID,
		StaffID:  staff.StaffID,
		Action:   model.AuditClaim,
		NewValue: staff.StaffID,
	})

	confirmed, err := s.store.GetReview(ctx, reviewID)
	if err != nil {
		return nil, eris.Wrapf(err, "workflow: refetch review %s", reviewID)
	}
	return confirmed, nil
}

// Override seizes a claim held by a lower-ranked staff member. Equal rank
// never overrides. A successful override is audited with both identities,
// distinct from a normal claim.
func (s *Service) Override(ctx context.Context, staff model.StaffContext, reviewID, reason string) (*model.HITLReview, error) {
	review, err := s.store.GetReview(ctx, reviewID)
	if err != nil {
		return nil, eris.Wrapf(err, "workflow: override %s", reviewID)
	}
	if err := guardMutable(review); err != nil {
		return nil, err
	}
	if review.AssignedStaffID == "" {
		return s.Claim(ctx, staff, reviewID)
	}
	if review.AssignedStaffID == staff.StaffID {
		return review, nil
	}

	claimant, err := s.store.GetStaff(ctx, review.AssignedStaffID)
	if err != nil {
		return nil, eris.Wrapf(err, "workflow: resolve claimant %s", review.AssignedStaffID)
	}
	if !CanOverride(staff.Role, claimant.Role) {
		return nil, eris.Wrapf(ErrForbiddenOverride, "%s does not outrank %s", staff.Role, claimant.Role)
	}

	moved, err := s.store.ReassignReview(ctx, reviewID, review.AssignedStaffID, staff.StaffID)
	if err != nil {
		return nil, eris.Wrapf(err, "workflow: override %s", reviewID)
	}
	if !moved {
		return nil, eris.Wrapf(ErrStaleClaim, "claim on %s changed during override", reviewID)
	}

	s.audit(ctx, model.AuditRecord{
		QuoteID:  review.QuoteID,
		ReviewID: reviewID,
		StaffID:  staff.StaffID,
		Action:   model.AuditOverride,
		OldValue: review.AssignedStaffID,
		NewValue: staff.StaffID,
		Reason:   reason,
	})

	confirmed, err := s.store.GetReview(ctx, reviewID)
	if err != nil {
		return nil, eris.Wrapf(err, "workflow: refetch review %s", reviewID)
	}
	return confirmed, nil
}

// decide runs a review decision shared by Approve, RejectReview, Escalate.
func (s *Service) decide(ctx context.Context, staff model.StaffContext, reviewID, event string, action model.AuditAction, notes string) (*model.HITLReview, error) {
	review, err := s.store.GetReview(ctx, reviewID)
	if err != nil {
		return nil, eris.Wrapf(err, "workflow: decide %s", reviewID)
	}
	if err := guardMutable(review); err != nil {
		return nil, err
	}
	if review.AssignedStaffID != staff.StaffID {
		return nil, eris.Wrapf(ErrNotClaimant, "review %s held by %q", reviewID, review.AssignedStaffID)
	}

	next, err := NextReviewStatus(review.Status, event)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateReviewStatus(ctx, reviewID, next, staff.StaffID); err != nil {
		return nil, eris.Wrapf(err, "workflow: update review %s", reviewID)
	}
	if notes != "" {
		if err := s.store.UpdateReviewNotes(ctx, reviewID, notes); err != nil {
			return nil, eris.Wrapf(err, "workflow: update notes %s", reviewID)
		}
	}
	if err := s.mirrorQuoteStatus(ctx, review.QuoteID, event); err != nil {
		return nil, err
	}

	s.audit(ctx, model.AuditRecord{
		QuoteID:  review.QuoteID,
		ReviewID: reviewID,
		StaffID:  staff.StaffID,
		Action:   action,
		OldValue: string(review.Status),
		NewValue: string(next),
		Reason:   notes,
	})

	confirmed, err := s.store.GetReview(ctx, reviewID)
	if err != nil {
		return nil, eris.Wrapf(err, "workflow: refetch review %s", reviewID)
	}
	return confirmed, nil
}

// Approve completes the review and mirrors the quote to approved.
func (s *Service) Approve(ctx context.Context, staff model.StaffContext, reviewID, notes string) (*model.HITLReview, error) {
	return s.decide(ctx, staff, reviewID, EventApprove, model.AuditReviewApprove, notes)
}

// RejectReview closes the review as rejected. The quote itself also moves to
// rejected; use RejectQuote from states without an open review.
func (s *Service) RejectReview(ctx context.Context, staff model.StaffContext, reviewID, notes string) (*model.HITLReview, error) {
	return s.decide(ctx, staff, reviewID, EventReject, model.AuditReviewReject, notes)
}

// Escalate closes the review as escalated. Escalated quotes are terminal;
// there is no un-escalate edge.
func (s *Service) Escalate(ctx context.Context, staff model.StaffContext, reviewID, notes string) (*model.HITLReview, error) {
	return s.decide(ctx, staff, reviewID, EventEscalate, model.AuditReviewEscalate, notes)
}

// RejectQuote is the stronger, irreversible customer-facing rejection of the
// quote itself, valid from approved or awaiting-payment states.
func (s *Service) RejectQuote(ctx context.Context, staff model.StaffContext, quoteID, reason string) error {
	quote, err := s.store.GetQuote(ctx, quoteID)
	if err != nil {
		return eris.Wrapf(err, "workflow: reject quote %s", quoteID)
	}
	next, err := NextQuoteStatus(quote.Status, EventReject)
	if err != nil {
		return err
	}
	if err := s.store.UpdateQuoteStatus(ctx, quoteID, next); err != nil {
		return eris.Wrapf(err, "workflow: reject quote %s", quoteID)
	}
	s.audit(ctx, model.AuditRecord{
		QuoteID:  quoteID,
		StaffID:  staff.StaffID,
		Action:   model.AuditQuoteReject,
		OldValue: string(quote.Status),
		NewValue: string(next),
		Reason:   reason,
	})
	return nil
}

// mirrorQuoteStatus applies a review event to the owning quote. The quote and
// review graphs are not synchronized automatically; this is the explicit
// mirroring point.
func (s *Service) mirrorQuoteStatus(ctx context.Context, quoteID, event string) error {
	quote, err := s.store.GetQuote(ctx, quoteID)
	if err != nil {
		return eris.Wrapf(err, "workflow: mirror quote %s", quoteID)
	}
	next, err := NextQuoteStatus(quote.Status, event)
	if err != nil {
		return err
	}
	if err := s.store.UpdateQuoteStatus(ctx, quoteID, next); err != nil {
		return eris.Wrapf(err, "workflow: mirror quote %s", quoteID)
	}
	return nil
}

// SendToCustomer transitions an approved quote to awaiting_payment, bumps the
// monotonic version, and notifies the customer.
func (s *Service) SendToCustomer(ctx context.Context, staff model.StaffContext, quoteID string) (*model.Quote, error) {
	quote, err := s.store.GetQuote(ctx, quoteID)
	if err != nil {
		return nil, eris.Wrapf(err, "workflow: send quote %s", quoteID)
	}
	next, err := NextQuoteStatus(quote.Status, EventSend)
	if err != nil {
		return nil, err
	}

	version, err := s.store.BumpQuoteVersion(ctx, quoteID)
	if err != nil {
		return nil, eris.Wrapf(err, "workflow: bump version %s", quoteID)
	}
	if err := s.store.UpdateQuoteStatus(ctx, quoteID, next); err != nil {
		return nil, eris.Wrapf(err, "workflow: send quote %s", quoteID)
	}

	s.audit(ctx, model.AuditRecord{
		QuoteID:  quoteID,
		StaffID:  staff.StaffID,
		Action:   model.AuditVersionBump,
		NewValue: strconv.Itoa(version),
	})
	s.notify(ctx, "quote_ready", quote.CustomerRef, map[string]string{
		"quote_id": quoteID,
		"total":    quote.Total.StringFixed(2),
	})

	confirmed, err := s.store.GetQuote(ctx, quoteID)
	if err != nil {
		return nil, eris.Wrapf(err, "workflow: refetch quote %s", quoteID)
	}
	return confirmed, nil
}

// MarkPaid records a payment against the quote and transitions it to paid
// when the balance reaches zero.
func (s *Service) MarkPaid(ctx context.Context, quoteID string, amount decimal.Decimal) (*model.Quote, error) {
	if amount.IsNegative() || amount.IsZero() {
		return nil, eris.Wrapf(pricing.ErrInvalidInput, "payment amount %s", amount)
	}
	quote, err := s.store.GetQuote(ctx, quoteID)
	if err != nil {
		return nil, eris.Wrapf(err, "workflow: mark paid %s", quoteID)
	}

	paid := quote.AmountPaid.Add(amount)
	balance := quote.Total.Sub(paid)
	if err := s.store.UpdateQuotePayment(ctx, quoteID, paid, balance); err != nil {
		return nil, eris.Wrapf(err, "workflow: mark paid %s", quoteID)
	}

	if balance.LessThanOrEqual(decimal.Zero) {
		next, err := NextQuoteStatus(quote.Status, EventPay)
		if err != nil {
			return nil, err
		}
		if err := s.store.UpdateQuoteStatus(ctx, quoteID, next); err != nil {
			return nil, eris.Wrapf(err, "workflow: mark paid %s", quoteID)
		}
	}

	s.audit(ctx, model.AuditRecord{
		QuoteID:  quoteID,
		StaffID:  "system",
		Action:   model.AuditPayment,
		NewValue: amount.StringFixed(2),
	})

	confirmed, err := s.store.GetQuote(ctx, quoteID)
	if err != nil {
		return nil, eris.Wrapf(err, "workflow: refetch quote %s", quoteID)
	}
	return confirmed, nil
}

// audit appends a trail record; audit failures are logged, never fatal to the
// operation that already committed.
func (s *Service) audit(ctx context.Context, rec model.AuditRecord) {
	rec.ID = uuid.New().String()
	rec.CreatedAt = time.Now().UTC()
	if err := s.store.AppendAudit(ctx, rec); err != nil {
		zap.L().Error("audit append failed",
			zap.String("quote_id", rec.QuoteID),
			zap.String("action", string(rec.Action)),
			zap.Error(err),
		)
	}
}

func (s *Service) notify(ctx context.Context, template, recipient string, vars map[string]string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, template, recipient, vars); err != nil {
		zap.L().Warn("notification failed",
			zap.String("template", template),
			zap.Error(err),
		)
	}
}

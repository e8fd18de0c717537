package workflow

import (
	"github.com/anggasct/fluo"
	"github.com/rotisserie/eris"

	"github.com/lingua-desk/quoteflow/internal/model"
)

// Workflow events. Each event is an edge label in the quote or review graph;
// the fluo machine is the single source of truth for which edges exist.
const (
	EventOpenReview  = "open_review"
	EventStartReview = "start_review"
	EventApprove     = "approve"
	EventReject      = "reject"
	EventEscalate    = "escalate"
	EventSend        = "send"
	EventPay         = "pay"
	EventConvert     = "convert"
)

var (
	quoteDef  = buildQuoteMachine()
	reviewDef = buildReviewMachine()
)

// buildQuoteMachine encodes the quote status graph:
// draft -> hitl_pending -> in_review -> {approved, escalated, rejected},
// approved -> awaiting_payment -> {paid, converted}. Escalated and rejected
// quotes are terminal; un-escalation is deliberately not an edge.
func buildQuoteMachine() fluo.MachineDefinition {
	b := fluo.NewMachine()

	b.State(string(model.QuoteStatusDraft)).Initial().
		To(string(model.QuoteStatusHITLPending)).On(EventOpenReview)

	b.State(string(model.QuoteStatusHITLPending)).
		To(string(model.QuoteStatusInReview)).On(EventStartReview)

	b.State(string(model.QuoteStatusInReview)).
		To(string(model.QuoteStatusApproved)).On(EventApprove).
		To(string(model.QuoteStatusEscalated)).On(EventEscalate).
		To(string(model.QuoteStatusRejected)).On(EventReject)

	b.State(string(model.QuoteStatusApproved)).
		To(string(model.QuoteStatusAwaitingPayment)).On(EventSend).
		To(string(model.QuoteStatusRejected)).On(EventReject)

	b.State(string(model.QuoteStatusAwaitingPayment)).
		To(string(model.QuoteStatusPaid)).On(EventPay).
		To(string(model.QuoteStatusConverted)).On(EventConvert).
		To(string(model.QuoteStatusRejected)).On(EventReject)

	b.State(string(model.QuoteStatusEscalated)).Final()
	b.State(string(model.QuoteStatusRejected)).Final()
	b.State(string(model.QuoteStatusPaid)).Final()
	b.State(string(model.QuoteStatusConverted)).Final()

	return b.Build()
}

// buildReviewMachine encodes the review status graph:
// pending -> in_review -> {approved, rejected, escalated}.
func buildReviewMachine() fluo.MachineDefinition {
	b := fluo.NewMachine()

	b.State(string(model.ReviewStatusPending)).Initial().
		To(string(model.ReviewStatusInReview)).On(EventStartReview)

	b.State(string(model.ReviewStatusInReview)).
		To(string(model.ReviewStatusApproved)).On(EventApprove).
		To(string(model.ReviewStatusRejected)).On(EventReject).
		To(string(model.ReviewStatusEscalated)).On(EventEscalate)

	b.State(string(model.ReviewStatusApproved)).Final()
	b.State(string(model.ReviewStatusRejected)).Final()
	b.State(string(model.ReviewStatusEscalated)).Final()

	return b.Build()
}

func applyEvent(def fluo.MachineDefinition, current, event string) (string, error) {
	m := def.CreateInstance()
	if err := m.Start(); err != nil {
		return "", eris.Wrap(err, "workflow: start machine")
	}
	if err := m.SetState(current); err != nil {
		return "", eris.Wrapf(ErrInvalidTransition, "unknown state %q", current)
	}
	res := m.SendEvent(event, nil)
	// fluo reports a missing edge through res.Error, so a rejection must still
	// carry the sentinel for errors.Is checks upstream.
	if res.Error != nil || !res.Processed || !res.StateChanged {
		if res.Error != nil {
			return "", eris.Wrapf(ErrInvalidTransition, "%s on %s: %v", event, current, res.Error)
		}
		return "", eris.Wrapf(ErrInvalidTransition, "%s is not valid from %s", event, current)
	}
	return res.CurrentState, nil
}

// NextQuoteStatus applies a workflow event to a quote status, returning the
// resulting status or ErrInvalidTransition.
func NextQuoteStatus(current model.QuoteStatus, event string) (model.QuoteStatus, error) {
	next, err := applyEvent(quoteDef, string(current), event)
	if err != nil {
		return "", err
	}
	return model.QuoteStatus(next), nil
}

// NextReviewStatus applies a workflow event to a review status.
func NextReviewStatus(current model.ReviewStatus, event string) (model.ReviewStatus, error) {
	next, err := applyEvent(reviewDef, string(current), event)
	if err != nil {
		return "", err
	}
	return model.ReviewStatus(next), nil
}

// CanOverride reports whether staff role a may seize a claim held by role b.
// Strictly greater rank only; equal rank never overrides.
func CanOverride(a, b model.StaffRole) bool {
	return a.Outranks(b)
}

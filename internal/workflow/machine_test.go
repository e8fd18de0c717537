package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingua-desk/quoteflow/internal/model"
)

func TestNextQuoteStatusValidPath(t *testing.T) {
	steps := []struct {
		from  model.QuoteStatus
		event string
		want  model.QuoteStatus
	}{
		{model.QuoteStatusDraft, EventOpenReview, model.QuoteStatusHITLPending},
		{model.QuoteStatusHITLPending, EventStartReview, model.QuoteStatusInReview},
		{model.QuoteStatusInReview, EventApprove, model.QuoteStatusApproved},
		{model.QuoteStatusApproved, EventSend, model.QuoteStatusAwaitingPayment},
		{model.QuoteStatusAwaitingPayment, EventPay, model.QuoteStatusPaid},
	}
	for _, s := range steps {
		got, err := NextQuoteStatus(s.from, s.event)
		require.NoError(t, err, "%s on %s", s.event, s.from)
		assert.Equal(t, s.want, got)
	}
}

func TestNextQuoteStatusRejectable(t *testing.T) {
	for _, from := range []model.QuoteStatus{
		model.QuoteStatusInReview,
		model.QuoteStatusApproved,
		model.QuoteStatusAwaitingPayment,
	} {
		got, err := NextQuoteStatus(from, EventReject)
		require.NoError(t, err)
		assert.Equal(t, model.QuoteStatusRejected, got)
	}
}

func TestNextQuoteStatusInvalidEdges(t *testing.T) {
	cases := []struct {
		from  model.QuoteStatus
		event string
	}{
		{model.QuoteStatusDraft, EventApprove},
		{model.QuoteStatusDraft, EventPay},
		{model.QuoteStatusApproved, EventPay},
		{model.QuoteStatusPaid, EventReject},
		{model.QuoteStatusRejected, EventApprove},
		// escalation is one-way; no edge leads out
		{model.QuoteStatusEscalated, EventApprove},
		{model.QuoteStatusEscalated, EventStartReview},
	}
	for _, c := range cases {
		_, err := NextQuoteStatus(c.from, c.event)
		require.Error(t, err, "%s on %s should fail", c.event, c.from)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	}
}

func TestNextReviewStatus(t *testing.T) {
	got, err := NextReviewStatus(model.ReviewStatusPending, EventStartReview)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewStatusInReview, got)

	for event, want := range map[string]model.ReviewStatus{
		EventApprove:  model.ReviewStatusApproved,
		EventReject:   model.ReviewStatusRejected,
		EventEscalate: model.ReviewStatusEscalated,
	} {
		got, err := NextReviewStatus(model.ReviewStatusInReview, event)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	// decisions require the review to be started first
	_, err = NextReviewStatus(model.ReviewStatusPending, EventApprove)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// terminal review states accept nothing
	for _, from := range []model.ReviewStatus{
		model.ReviewStatusApproved,
		model.ReviewStatusRejected,
		model.ReviewStatusEscalated,
	} {
		_, err := NextReviewStatus(from, EventStartReview)
		require.Error(t, err)
	}
}

func TestNextQuoteStatusUnknownState(t *testing.T) {
	_, err := NextQuoteStatus("no-such-state", EventApprove)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCanOverride(t *testing.T) {
	cases := []struct {
		a, b model.StaffRole
		want bool
	}{
		{model.RoleSeniorReviewer, model.RoleReviewer, true},
		{model.RoleAdmin, model.RoleSeniorReviewer, true},
		{model.RoleSuperAdmin, model.RoleReviewer, true},
		{model.RoleReviewer, model.RoleReviewer, false},
		{model.RoleAdmin, model.RoleAdmin, false},
		{model.RoleReviewer, model.RoleSeniorReviewer, false},
		{model.RoleSeniorReviewer, model.RoleSuperAdmin, false},
		{"unknown", model.RoleReviewer, false},
		{model.RoleReviewer, "unknown", true},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, CanOverride(c.a, c.b), "%s over %s", c.a, c.b)
	}
}

package model

import "time"

// ReviewStatus is the state of a human review case.
type ReviewStatus string

const (
	ReviewStatusPending   ReviewStatus = "pending"
	ReviewStatusInReview  ReviewStatus = "in_review"
	ReviewStatusApproved  ReviewStatus = "approved"
	ReviewStatusRejected  ReviewStatus = "rejected"
	ReviewStatusEscalated ReviewStatus = "escalated"
)

// Terminal reports whether the review is read-only. Terminal reviews accept
// no further edits, claims, or pricing mutations.
func (s ReviewStatus) Terminal() bool {
	return s == ReviewStatusRejected || s == ReviewStatusEscalated
}

// TriggerReason is a cause code explaining why a review was opened.
type TriggerReason string

const (
	TriggerTimeout               TriggerReason = "timeout"
	TriggerLowOCRConfidence      TriggerReason = "low_ocr_confidence"
	TriggerLowLanguageConfidence TriggerReason = "low_language_confidence"
	TriggerLowClassifyConfidence TriggerReason = "low_classification_confidence"
	TriggerHighValueOrder        TriggerReason = "high_value_order"
	TriggerHighPageCount         TriggerReason = "high_page_count"
	TriggerCustomerRequested     TriggerReason = "customer_requested"
	TriggerQualityCheck          TriggerReason = "quality_check"
)

// ReviewPriority orders the review queue.
type ReviewPriority string

const (
	PriorityNormal ReviewPriority = "normal"
	PriorityHigh   ReviewPriority = "high"
	PriorityUrgent ReviewPriority = "urgent"
)

// HITLReview is a human-review case tied 1:1 to a quote. Reviews are never
// destroyed; once terminal they remain as audit records.
type HITLReview struct {
	ID              string          `json:"id"`
	QuoteID         string          `json:"quote_id"`
	Status          ReviewStatus    `json:"status"`
	AssignedStaffID string          `json:"assigned_staff_id,omitempty"` // empty = unclaimed
	TriggerReasons  []TriggerReason `json:"trigger_reasons"`
	Priority        ReviewPriority  `json:"priority"`
	SLADeadline     time.Time       `json:"sla_deadline"`
	Notes           string          `json:"notes,omitempty"`

	CompletedBy string     `json:"completed_by,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasTrigger reports whether the given cause code is present.
func (r *HITLReview) HasTrigger(reason TriggerReason) bool {
	for _, t := range r.TriggerReasons {
		if t == reason {
			return true
		}
	}
	return false
}

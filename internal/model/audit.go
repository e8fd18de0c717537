package model

import "time"

// AuditAction categorizes an audit record.
type AuditAction string

const (
	AuditClaim          AuditAction = "claim"
	AuditOverride       AuditAction = "override"
	AuditReviewApprove  AuditAction = "review_approve"
	AuditReviewReject   AuditAction = "review_reject"
	AuditReviewEscalate AuditAction = "review_escalate"
	AuditQuoteReject    AuditAction = "quote_reject"
	AuditQuoteEdit      AuditAction = "quote_edit"
	AuditGroupChange    AuditAction = "group_change"
	AuditVersionBump    AuditAction = "version_bump"
	AuditPayment        AuditAction = "payment"
)

// AuditRecord is an append-only trail entry. Edits are last-write-wins; the
// trail is what makes that acceptable.
type AuditRecord struct {
	ID        string      `json:"id"`
	QuoteID   string      `json:"quote_id"`
	ReviewID  string      `json:"review_id,omitempty"`
	StaffID   string      `json:"staff_id"`
	Action    AuditAction `json:"action"`
	Field     string      `json:"field,omitempty"`
	OldValue  string      `json:"old_value,omitempty"`
	NewValue  string      `json:"new_value,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

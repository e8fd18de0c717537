package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DocumentGroup is a billing unit: an ordered set of page assignments sharing
// one document type, complexity, and certification line. Certification cost
// and billable-page totals are derived from the assignment set, never stored
// independently of it.
type DocumentGroup struct {
	ID                string          `json:"id"`
	QuoteID           string          `json:"quote_id"`
	Name              string          `json:"name"`
	DocumentType      string          `json:"document_type"`
	Complexity        ComplexityLevel `json:"complexity"`
	CertificationType string          `json:"certification_type"`
	CertQuantity      int             `json:"cert_quantity"`
	CertUnitPrice     decimal.Decimal `json:"cert_unit_price"`
	Deleted           bool            `json:"deleted"`

	Assignments []GroupAssignment `json:"assignments,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GroupAssignment binds one page to one group. Removed assignments that were
// previously persisted are soft-deleted to preserve audit history.
type GroupAssignment struct {
	ID        string    `json:"id"`
	GroupID   string    `json:"group_id"`
	PageID    string    `json:"page_id"`
	Position  int       `json:"position"`
	Removed   bool      `json:"removed"`
	Persisted bool      `json:"persisted"`
	CreatedAt time.Time `json:"created_at"`
}

// CertificationLine returns quantity x unit price for the group, zero for
// deleted groups.
func (g *DocumentGroup) CertificationLine() decimal.Decimal {
	if g.Deleted || g.CertQuantity <= 0 {
		return decimal.Zero
	}
	return g.CertUnitPrice.Mul(decimal.NewFromInt(int64(g.CertQuantity)))
}

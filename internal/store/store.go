// Package store provides persistence for quotes, documents, reviews, and the
// audit trail. Two backends exist: Postgres (pgx) and SQLite. Beyond plain
// CRUD the interface carries the two atomic primitives the workflow requires:
// the compare-and-set claim and append-only audit records.
package store

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/lingua-desk/quoteflow/internal/model"
)

// QuoteFilter specifies criteria for listing quotes.
type QuoteFilter struct {
	Status      model.QuoteStatus `json:"status,omitempty"`
	CustomerRef string            `json:"customer_ref,omitempty"`
	Limit       int               `json:"limit,omitempty"`
	Offset      int               `json:"offset,omitempty"`
}

// ReviewFilter specifies criteria for listing reviews.
type ReviewFilter struct {
	Status     model.ReviewStatus `json:"status,omitempty"`
	AssignedTo string             `json:"assigned_to,omitempty"`
	Unclaimed  bool               `json:"unclaimed,omitempty"`
	Limit      int                `json:"limit,omitempty"`
}

// QuoteTotals is the persisted pricing breakdown of a quote.
type QuoteTotals struct {
	Subtotal           decimal.Decimal
	CertificationTotal decimal.Decimal
	SurchargeTotal     decimal.Decimal
	DiscountTotal      decimal.Decimal
	RushFee            decimal.Decimal
	DeliveryFee        decimal.Decimal
	TaxRate            decimal.Decimal
	TaxAmount          decimal.Decimal
	Total              decimal.Decimal
	BalanceDue         decimal.Decimal
}

// Store is the persistence interface for the quoting platform.
type Store interface {
	// Quotes
	CreateQuote(ctx context.Context, q *model.Quote) error
	GetQuote(ctx context.Context, id string) (*model.Quote, error)
	ListQuotes(ctx context.Context, filter QuoteFilter) ([]model.Quote, error)
	UpdateQuoteStatus(ctx context.Context, id string, status model.QuoteStatus) error
	UpdateQuoteTotals(ctx context.Context, id string, totals QuoteTotals) error
	UpdateQuoteOptions(ctx context.Context, id string, turnaround model.TurnaroundType, deliveryOption string) error
	BumpQuoteVersion(ctx context.Context, id string) (int, error)
	UpdateQuotePayment(ctx context.Context, id string, amountPaid, balanceDue decimal.Decimal) error

	// Documents and pages
	CreateDocument(ctx context.Context, doc *model.Document) error
	GetDocuments(ctx context.Context, quoteID string) ([]model.Document, error)
	UpdateDocumentAnalysis(ctx context.Context, docID string, status model.AnalysisStatus, failReason string) error
	// UpdateDocumentDetection sets the detected fields; empty string / zero
	// values leave the existing column unchanged.
	UpdateDocumentDetection(ctx context.Context, docID string, lang, docType string, complexity model.ComplexityLevel, conf model.Confidence) error
	UpdateDocumentBilling(ctx context.Context, docID string, billablePages, lineTotal decimal.Decimal) error
	UpdatePageWordCount(ctx context.Context, pageID string, wordCount int) error
	UpdatePageGroup(ctx context.Context, pageID, groupID string) error

	// Document groups
	CreateGroup(ctx context.Context, g *model.DocumentGroup) error
	GetGroups(ctx context.Context, quoteID string) ([]model.DocumentGroup, error)
	UpdateGroup(ctx context.Context, g *model.DocumentGroup) error

	// Reviews. CreateReviewIfAbsent is check-then-insert keyed on quote id so
	// concurrent trigger paths never open a duplicate review.
	CreateReviewIfAbsent(ctx context.Context, r *model.HITLReview) (bool, *model.HITLReview, error)
	GetReview(ctx context.Context, id string) (*model.HITLReview, error)
	GetReviewByQuote(ctx context.Context, quoteID string) (*model.HITLReview, error)
	ListReviews(ctx context.Context, filter ReviewFilter) ([]model.HITLReview, error)
	UpdateReviewStatus(ctx context.Context, id string, status model.ReviewStatus, completedBy string) error
	UpdateReviewNotes(ctx context.Context, id string, notes string) error

	// ClaimReview assigns the review to staffID iff currently unassigned.
	// Returns false (no error) when someone else holds the claim.
	ClaimReview(ctx context.Context, id, staffID string) (bool, error)
	// ReassignReview moves the claim from one staff member to another iff the
	// current claimant still matches. Returns false when the claim moved.
	ReassignReview(ctx context.Context, id, fromStaffID, toStaffID string) (bool, error)

	// Staff
	CreateStaff(ctx context.Context, s *model.StaffUser) error
	GetStaff(ctx context.Context, id string) (*model.StaffUser, error)

	// Audit trail (append-only)
	AppendAudit(ctx context.Context, rec model.AuditRecord) error
	ListAudit(ctx context.Context, quoteID string) ([]model.AuditRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = eris.New("store: not found")

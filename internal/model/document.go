package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ComplexityLevel classifies how demanding a document is to translate.
type ComplexityLevel string

const (
	ComplexityEasy   ComplexityLevel = "easy"
	ComplexityMedium ComplexityLevel = "medium"
	ComplexityHard   ComplexityLevel = "hard"
)

// AnalysisStatus is the state of the external AI analysis for one document.
type AnalysisStatus string

const (
	AnalysisPending    AnalysisStatus = "pending"
	AnalysisProcessing AnalysisStatus = "processing"
	AnalysisComplete   AnalysisStatus = "complete"
	AnalysisFailed     AnalysisStatus = "failed"
)

// Document is a file (possibly multi-page) belonging to a quote.
type Document struct {
	ID         string `json:"id"`
	QuoteID    string `json:"quote_id"`
	Filename   string `json:"filename"`
	StorageRef string `json:"storage_ref"`
	PageCount  int    `json:"page_count"`

	DetectedLanguage   string          `json:"detected_language,omitempty"`
	DetectedType       string          `json:"detected_type,omitempty"`
	Complexity         ComplexityLevel `json:"complexity,omitempty"`
	Confidence         Confidence      `json:"confidence"`
	AnalysisStatus     AnalysisStatus  `json:"analysis_status"`
	AnalysisFailReason string          `json:"analysis_fail_reason,omitempty"`

	BillablePages     decimal.Decimal `json:"billable_pages"`
	CertificationType string          `json:"certification_type,omitempty"`
	LineTotal         decimal.Decimal `json:"line_total"`

	Pages []Page `json:"pages,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Page is a single page within a document. WordCount is page-level so staff
// corrections can target individual pages.
type Page struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Number     int    `json:"number"`
	WordCount  int    `json:"word_count"`
	GroupID    string `json:"group_id,omitempty"` // empty = unassigned
}

// Confidence holds per-field AI confidence scores, 0.0 to 1.0.
type Confidence struct {
	OCR            float64 `json:"ocr"`
	Language       float64 `json:"language"`
	Classification float64 `json:"classification"`
}

// PendingAnalysis is the watchdog's read-only view of one document's
// asynchronous analysis state as reported by the external pipeline.
type PendingAnalysis struct {
	DocumentID string         `json:"document_id"`
	Status     AnalysisStatus `json:"status"`
	Confidence Confidence     `json:"confidence"`
}

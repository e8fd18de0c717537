package analysis

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"

	"github.com/lingua-desk/quoteflow/internal/model"
)

// Result is a completed (or failed) analysis for one document, delivered by
// the pipeline's webhook callback.
type Result struct {
	QuoteID    string `json:"quote_id"`
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`

	DetectedLanguage string  `json:"detected_language,omitempty"`
	DetectedType     string  `json:"detected_type,omitempty"`
	Complexity       string  `json:"complexity,omitempty"`
	OCRConfidence    float64 `json:"ocr_confidence"`
	LangConfidence   float64 `json:"language_confidence"`
	TypeConfidence   float64 `json:"classification_confidence"`
	FailReason       string  `json:"fail_reason,omitempty"`

	PageWordCounts []PageWordCount `json:"page_word_counts,omitempty"`
}

// PageWordCount is the pipeline's word count for one page.
type PageWordCount struct {
	PageNumber int `json:"page_number"`
	WordCount  int `json:"word_count"`
}

// ParseWebhook decodes and validates a webhook delivery body.
func ParseWebhook(r io.Reader) (*Result, error) {
	var res Result
	if err := json.NewDecoder(r).Decode(&res); err != nil {
		return nil, eris.Wrap(err, "analysis: decode webhook")
	}
	if res.QuoteID == "" || res.DocumentID == "" {
		return nil, eris.New("analysis: webhook missing quote or document id")
	}
	if _, ok := parseStatus(res.Status); !ok {
		return nil, eris.Errorf("analysis: webhook has unknown status %q", res.Status)
	}
	return &res, nil
}

// AnalysisStatus returns the parsed status. Call only after ParseWebhook has
// validated the result.
func (r *Result) AnalysisStatus() model.AnalysisStatus {
	s, _ := parseStatus(r.Status)
	return s
}

// ConfidenceScores returns the clamped per-field confidence scores.
func (r *Result) ConfidenceScores() model.Confidence {
	return model.Confidence{
		OCR:            clampScore(r.OCRConfidence),
		Language:       clampScore(r.LangConfidence),
		Classification: clampScore(r.TypeConfidence),
	}
}

// ComplexityLevel maps the reported complexity onto a known level, defaulting
// to medium for unknown values.
func (r *Result) ComplexityLevel() model.ComplexityLevel {
	switch model.ComplexityLevel(r.Complexity) {
	case model.ComplexityEasy, model.ComplexityMedium, model.ComplexityHard:
		return model.ComplexityLevel(r.Complexity)
	}
	return model.ComplexityMedium
}

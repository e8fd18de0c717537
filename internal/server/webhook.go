package server

import (
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lingua-desk/quoteflow/internal/analysis"
	"github.com/lingua-desk/quoteflow/internal/model"
	"github.com/lingua-desk/quoteflow/internal/store"
)

// handleAnalysisWebhook records one document's analysis result. Completion
// handling stays with the watchdog: the handler restarts polling so the next
// tick observes the new state, which also covers results arriving after a
// server restart.
func (s *Server) handleAnalysisWebhook(w http.ResponseWriter, r *http.Request) {
	result, err := analysis.ParseWebhook(r.Body)
	if err != nil {
		badRequest(w, "invalid webhook payload")
		return
	}

	docs, err := s.store.GetDocuments(r.Context(), result.QuoteID)
	if err != nil {
		writeError(w, err)
		return
	}
	var doc *model.Document
	for i := range docs {
		if docs[i].ID == result.DocumentID {
			doc = &docs[i]
			break
		}
	}
	if doc == nil {
		writeError(w, eris.Wrapf(store.ErrNotFound, "document %s", result.DocumentID))
		return
	}

	if err := s.store.UpdateDocumentAnalysis(r.Context(), doc.ID, result.AnalysisStatus(), result.FailReason); err != nil {
		writeError(w, err)
		return
	}

	if result.AnalysisStatus() == model.AnalysisComplete {
		if err := s.store.UpdateDocumentDetection(r.Context(), doc.ID,
			result.DetectedLanguage, result.DetectedType,
			result.ComplexityLevel(), result.ConfidenceScores()); err != nil {
			writeError(w, err)
			return
		}

		pageByNumber := make(map[int]string, len(doc.Pages))
		for _, p := range doc.Pages {
			pageByNumber[p.Number] = p.ID
		}
		for _, pwc := range result.PageWordCounts {
			pageID, ok := pageByNumber[pwc.PageNumber]
			if !ok {
				zap.L().Warn("webhook word count for unknown page",
					zap.String("document_id", doc.ID),
					zap.Int("page_number", pwc.PageNumber),
				)
				continue
			}
			if err := s.store.UpdatePageWordCount(r.Context(), pageID, pwc.WordCount); err != nil {
				writeError(w, err)
				return
			}
		}
	}

	s.startWatchdog(result.QuoteID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

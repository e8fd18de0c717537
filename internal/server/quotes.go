package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lingua-desk/quoteflow/internal/analysis"
	"github.com/lingua-desk/quoteflow/internal/model"
	"github.com/lingua-desk/quoteflow/internal/payment"
	"github.com/lingua-desk/quoteflow/internal/store"
	"github.com/lingua-desk/quoteflow/internal/workflow"
)

type createQuoteRequest struct {
	CustomerRef        string               `json:"customer_ref"`
	SourceLanguage     string               `json:"source_language"`
	TargetLanguage     string               `json:"target_language"`
	LanguageMultiplier string               `json:"language_multiplier,omitempty"`
	DocumentType       string               `json:"document_type,omitempty"`
	IntendedUse        string               `json:"intended_use,omitempty"`
	DeliveryOption     string               `json:"delivery_option,omitempty"`
	Documents          []createDocumentItem `json:"documents"`
}

type createDocumentItem struct {
	Filename   string `json:"filename"`
	StorageRef string `json:"storage_ref"`
	PageCount  int    `json:"page_count"`
}

func (s *Server) handleCreateQuote(w http.ResponseWriter, r *http.Request) {
	var req createQuoteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CustomerRef == "" || req.SourceLanguage == "" || req.TargetLanguage == "" {
		badRequest(w, "customer_ref, source_language and target_language are required")
		return
	}
	if len(req.Documents) == 0 {
		badRequest(w, "at least one document is required")
		return
	}
	for _, item := range req.Documents {
		if item.Filename == "" {
			badRequest(w, "document filename is required")
			return
		}
	}

	multiplier := decimal.NewFromInt(1)
	if req.LanguageMultiplier != "" {
		var err error
		multiplier, err = decimal.NewFromString(req.LanguageMultiplier)
		if err != nil || multiplier.LessThanOrEqual(decimal.Zero) {
			badRequest(w, "language_multiplier must be a positive decimal")
			return
		}
	}

	delivery := req.DeliveryOption
	if delivery == "" {
		delivery = "digital"
	}

	quote := &model.Quote{
		ID:                 uuid.New().String(),
		CustomerRef:        req.CustomerRef,
		SourceLanguage:     req.SourceLanguage,
		TargetLanguage:     req.TargetLanguage,
		LanguageMultiplier: multiplier,
		DocumentType:       req.DocumentType,
		IntendedUse:        req.IntendedUse,
		Turnaround:         model.TurnaroundStandard,
		DeliveryOption:     delivery,
		Status:             model.QuoteStatusDraft,
	}
	if err := s.store.CreateQuote(r.Context(), quote); err != nil {
		writeError(w, err)
		return
	}

	for _, item := range req.Documents {
		pageCount := item.PageCount
		if pageCount <= 0 {
			pageCount = 1
		}
		docID := uuid.New().String()
		doc := &model.Document{
			ID:             docID,
			QuoteID:        quote.ID,
			Filename:       item.Filename,
			StorageRef:     item.StorageRef,
			PageCount:      pageCount,
			Complexity:     model.ComplexityMedium,
			AnalysisStatus: model.AnalysisPending,
		}
		for n := 1; n <= pageCount; n++ {
			doc.Pages = append(doc.Pages, model.Page{
				ID:         uuid.New().String(),
				DocumentID: docID,
				Number:     n,
			})
		}
		if err := s.store.CreateDocument(r.Context(), doc); err != nil {
			writeError(w, err)
			return
		}

		if _, err := s.analysis.Submit(r.Context(), analysis.SubmitRequest{
			QuoteID:    quote.ID,
			DocumentID: docID,
			StorageRef: item.StorageRef,
			Filename:   item.Filename,
		}); err != nil {
			// The watchdog picks up documents whose submission failed; its
			// attempt cap escalates them to review.
			zap.L().Warn("analysis submit failed",
				zap.String("quote_id", quote.ID),
				zap.String("document_id", docID),
				zap.Error(err),
			)
		}
	}

	s.startWatchdog(quote.ID)
	writeJSON(w, http.StatusAccepted, quote)
}

func (s *Server) handleGetQuote(w http.ResponseWriter, r *http.Request) {
	quoteID := chi.URLParam(r, "quoteID")
	quote, err := s.store.GetQuote(r.Context(), quoteID)
	if err != nil {
		writeError(w, err)
		return
	}
	docs, err := s.store.GetDocuments(r.Context(), quoteID)
	if err != nil {
		writeError(w, err)
		return
	}
	groups, err := s.store.GetGroups(r.Context(), quoteID)
	if err != nil {
		writeError(w, err)
		return
	}
	quote.Documents = docs
	quote.Groups = groups
	writeJSON(w, http.StatusOK, quote)
}

func (s *Server) handleListQuotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.QuoteFilter{
		Status:      model.QuoteStatus(q.Get("status")),
		CustomerRef: q.Get("customer_ref"),
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(w, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(w, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	quotes, err := s.store.ListQuotes(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quotes": quotes, "count": len(quotes)})
}

func (s *Server) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	quoteID := chi.URLParam(r, "quoteID")
	breakdown, warnings, err := s.service.Recalculate(r.Context(), quoteID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"breakdown": breakdown,
		"warnings":  warnings,
	})
}

type turnaroundRequest struct {
	Turnaround     string `json:"turnaround"`
	DeliveryOption string `json:"delivery_option"`
}

func (s *Server) handleSetTurnaround(w http.ResponseWriter, r *http.Request) {
	quoteID := chi.URLParam(r, "quoteID")
	var req turnaroundRequest
	if !decodeBody(w, r, &req) {
		return
	}
	switch model.TurnaroundType(req.Turnaround) {
	case model.TurnaroundStandard, model.TurnaroundRush, model.TurnaroundSameDay:
	default:
		badRequest(w, "turnaround must be standard, rush or same_day")
		return
	}

	breakdown, err := s.service.SetTurnaround(r.Context(), staffFrom(r), quoteID,
		model.TurnaroundType(req.Turnaround), req.DeliveryOption)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"breakdown": breakdown})
}

type correctionsRequest struct {
	Corrections []workflow.Correction `json:"corrections"`
}

func (s *Server) handleCorrections(w http.ResponseWriter, r *http.Request) {
	quoteID := chi.URLParam(r, "quoteID")
	var req correctionsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Corrections) == 0 {
		badRequest(w, "at least one correction is required")
		return
	}

	breakdown, failures, err := s.service.ApplyCorrections(r.Context(), staffFrom(r), quoteID, req.Corrections)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if len(failures) > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, map[string]any{
		"breakdown": breakdown,
		"failures":  failures,
	})
}

func (s *Server) handleSendToCustomer(w http.ResponseWriter, r *http.Request) {
	quoteID := chi.URLParam(r, "quoteID")
	quote, err := s.service.SendToCustomer(r.Context(), staffFrom(r), quoteID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleRejectQuote(w http.ResponseWriter, r *http.Request) {
	quoteID := chi.URLParam(r, "quoteID")
	var req rejectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.service.RejectQuote(r.Context(), staffFrom(r), quoteID, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

type paymentRequest struct {
	Amount string `json:"amount"`
}

func (s *Server) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	quoteID := chi.URLParam(r, "quoteID")
	var req paymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		badRequest(w, "amount must be a decimal string")
		return
	}
	quote, err := s.service.MarkPaid(r.Context(), quoteID, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	quoteID := chi.URLParam(r, "quoteID")
	quote, err := s.store.GetQuote(r.Context(), quoteID)
	if err != nil {
		writeError(w, err)
		return
	}
	if quote.Status != model.QuoteStatusAwaitingPayment {
		writeError(w, eris.Wrapf(workflow.ErrInvalidTransition,
			"quote %s is %s, checkout requires awaiting_payment", quoteID, quote.Status))
		return
	}

	session, err := s.payment.CreateCheckoutSession(r.Context(), payment.CheckoutRequest{
		QuoteID:     quote.ID,
		CustomerRef: quote.CustomerRef,
		Amount:      quote.BalanceDue,
		Currency:    s.currency,
		Description: "Certified translation quote " + quote.ID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleQuoteAudit(w http.ResponseWriter, r *http.Request) {
	quoteID := chi.URLParam(r, "quoteID")
	if _, err := s.store.GetQuote(r.Context(), quoteID); err != nil {
		writeError(w, err)
		return
	}
	records, err := s.store.ListAudit(r.Context(), quoteID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) handleExportLedger(w http.ResponseWriter, r *http.Request) {
	filter := store.QuoteFilter{
		Status:      model.QuoteStatus(r.URL.Query().Get("status")),
		CustomerRef: r.URL.Query().Get("customer_ref"),
	}

	filename := "quotes-" + time.Now().UTC().Format("20060102") + ".xlsx"
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if _, err := s.exporter.Ledger(r.Context(), filter, w); err != nil {
		zap.L().Error("ledger export failed", zap.Error(err))
	}
}

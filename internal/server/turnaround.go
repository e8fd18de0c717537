package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lingua-desk/quoteflow/internal/model"
	"github.com/lingua-desk/quoteflow/internal/turnaround"
)

type turnaroundTier struct {
	Available    bool   `json:"available"`
	BusinessDays int    `json:"business_days,omitempty"`
	DeliveryDate string `json:"delivery_date,omitempty"`
}

// handleTurnaroundAvailability reports which turnaround tiers the quote can
// still book right now, with the delivery date each would commit to. Cutoffs
// are evaluated in the business timezone.
func (s *Server) handleTurnaroundAvailability(w http.ResponseWriter, r *http.Request) {
	quoteID := chi.URLParam(r, "quoteID")
	q, err := s.store.GetQuote(r.Context(), quoteID)
	if err != nil {
		writeError(w, err)
		return
	}
	docs, err := s.store.GetDocuments(r.Context(), quoteID)
	if err != nil {
		writeError(w, err)
		return
	}

	pages := 0.0
	for i := range docs {
		pages += docs[i].BillablePages.InexactFloat64()
	}

	now := time.Now()
	avail := turnaround.Availability(now, s.schedule.Location, s.schedule.Table,
		s.schedule.RushCutoff, s.schedule.SameDayCutoff,
		q.SourceLanguage, q.TargetLanguage, q.DocumentType, q.IntendedUse)

	tiers := map[string]turnaroundTier{}
	for tier, ok := range map[model.TurnaroundType]bool{
		model.TurnaroundStandard: avail.Standard,
		model.TurnaroundRush:     avail.Rush,
		model.TurnaroundSameDay:  avail.SameDay,
	} {
		entry := turnaroundTier{Available: ok}
		if ok {
			days := turnaround.DaysFor(tier, pages, s.schedule.RushDays)
			entry.BusinessDays = days
			entry.DeliveryDate = turnaround.DeliveryDate(now, days, s.schedule.Calendar).Format("2006-01-02")
		}
		tiers[string(tier)] = entry
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"quote_id": quoteID,
		"options":  tiers,
	})
}

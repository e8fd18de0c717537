package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lingua-desk/quoteflow/internal/model"
	"github.com/lingua-desk/quoteflow/internal/store"
)

func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ReviewFilter{
		Status:     model.ReviewStatus(q.Get("status")),
		AssignedTo: q.Get("assigned_to"),
		Unclaimed:  q.Get("unclaimed") == "true",
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(w, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	reviews, err := s.store.ListReviews(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reviews": reviews, "count": len(reviews)})
}

func (s *Server) handleGetReview(w http.ResponseWriter, r *http.Request) {
	review, err := s.store.GetReview(r.Context(), chi.URLParam(r, "reviewID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

func (s *Server) handleClaimReview(w http.ResponseWriter, r *http.Request) {
	review, err := s.service.Claim(r.Context(), staffFrom(r), chi.URLParam(r, "reviewID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

type overrideRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleOverrideClaim(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Reason == "" {
		badRequest(w, "override reason is required")
		return
	}
	review, err := s.service.Override(r.Context(), staffFrom(r), chi.URLParam(r, "reviewID"), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

type decisionRequest struct {
	Notes string `json:"notes"`
}

func (s *Server) handleApproveReview(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	review, err := s.service.Approve(r.Context(), staffFrom(r), chi.URLParam(r, "reviewID"), req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

func (s *Server) handleRejectReview(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	review, err := s.service.RejectReview(r.Context(), staffFrom(r), chi.URLParam(r, "reviewID"), req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

func (s *Server) handleEscalateReview(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	review, err := s.service.Escalate(r.Context(), staffFrom(r), chi.URLParam(r, "reviewID"), req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/lingua-desk/quoteflow/internal/grouping"
	"github.com/lingua-desk/quoteflow/internal/model"
	"github.com/lingua-desk/quoteflow/internal/store"
)

// loadLedger rebuilds the grouping ledger from persisted pages and groups.
func (s *Server) loadLedger(ctx context.Context, quoteID string) (*grouping.Ledger, map[string]bool, error) {
	if _, err := s.store.GetQuote(ctx, quoteID); err != nil {
		return nil, nil, err
	}
	docs, err := s.store.GetDocuments(ctx, quoteID)
	if err != nil {
		return nil, nil, err
	}
	var pages []model.Page
	for _, d := range docs {
		pages = append(pages, d.Pages...)
	}
	groups, err := s.store.GetGroups(ctx, quoteID)
	if err != nil {
		return nil, nil, err
	}
	known := make(map[string]bool, len(groups))
	for _, g := range groups {
		known[g.ID] = true
	}
	ledger, err := grouping.NewLedger(quoteID, pages, groups)
	if err != nil {
		return nil, nil, err
	}
	return ledger, known, nil
}

// persistLedger writes the mutated ledger back and re-prices the quote.
func (s *Server) persistLedger(ctx context.Context, quoteID string, ledger *grouping.Ledger, known map[string]bool) error {
	for _, g := range ledger.Groups() {
		g := g
		if known[g.ID] {
			if err := s.store.UpdateGroup(ctx, &g); err != nil {
				return err
			}
			continue
		}
		if err := s.store.CreateGroup(ctx, &g); err != nil {
			return err
		}
	}
	for _, p := range ledger.Pages() {
		if err := s.store.UpdatePageGroup(ctx, p.ID, p.GroupID); err != nil {
			return err
		}
	}
	if _, _, err := s.service.Recalculate(ctx, quoteID); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	ledger, _, err := s.loadLedger(r.Context(), chi.URLParam(r, "quoteID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"groups":     ledger.Groups(),
		"unassigned": ledger.Unassigned(),
	})
}

type createGroupRequest struct {
	Name          string `json:"name"`
	DocumentType  string `json:"document_type"`
	Complexity    string `json:"complexity,omitempty"`
	CertQuantity  int    `json:"cert_quantity,omitempty"`
	CertUnitPrice string `json:"cert_unit_price,omitempty"`
	CertType      string `json:"certification_type,omitempty"`
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	quoteID := chi.URLParam(r, "quoteID")
	var req createGroupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		badRequest(w, "group name is required")
		return
	}
	complexity := model.ComplexityMedium
	if req.Complexity != "" {
		complexity = model.ComplexityLevel(req.Complexity)
	}

	ledger, known, err := s.loadLedger(r.Context(), quoteID)
	if err != nil {
		writeError(w, err)
		return
	}
	group := ledger.CreateGroup(req.Name, req.DocumentType, complexity)
	if req.CertQuantity > 0 {
		group.CertQuantity = req.CertQuantity
		group.CertificationType = req.CertType
		if req.CertUnitPrice != "" {
			price, err := parseMoney(req.CertUnitPrice)
			if err != nil {
				badRequest(w, "cert_unit_price must be a decimal string")
				return
			}
			group.CertUnitPrice = price
		}
	}

	if err := s.persistLedger(r.Context(), quoteID, ledger, known); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

type assignPageRequest struct {
	GroupID string `json:"group_id"`
	PageID  string `json:"page_id"`
}

func (s *Server) handleAssignPage(w http.ResponseWriter, r *http.Request) {
	quoteID := chi.URLParam(r, "quoteID")
	var req assignPageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.GroupID == "" || req.PageID == "" {
		badRequest(w, "group_id and page_id are required")
		return
	}

	ledger, known, err := s.loadLedger(r.Context(), quoteID)
	if err != nil {
		writeError(w, err)
		return
	}
	assignment, err := ledger.AssignItem(req.GroupID, req.PageID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.persistLedger(r.Context(), quoteID, ledger, known); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assignment)
}

type splitRequest struct {
	PageIDs   []string `json:"page_ids"`
	GroupName string   `json:"group_name"`
}

func (s *Server) handleSplitPages(w http.ResponseWriter, r *http.Request) {
	quoteID := chi.URLParam(r, "quoteID")
	var req splitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.PageIDs) == 0 || req.GroupName == "" {
		badRequest(w, "page_ids and group_name are required")
		return
	}

	ledger, known, err := s.loadLedger(r.Context(), quoteID)
	if err != nil {
		writeError(w, err)
		return
	}
	group, err := ledger.SplitPages(req.PageIDs, req.GroupName)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.persistLedger(r.Context(), quoteID, ledger, known); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

type combineRequest struct {
	PageIDs       []string `json:"page_ids"`
	TargetGroupID string   `json:"target_group_id"`
}

func (s *Server) handleCombinePages(w http.ResponseWriter, r *http.Request) {
	quoteID := chi.URLParam(r, "quoteID")
	var req combineRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.PageIDs) == 0 || req.TargetGroupID == "" {
		badRequest(w, "page_ids and target_group_id are required")
		return
	}

	ledger, known, err := s.loadLedger(r.Context(), quoteID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := ledger.CombinePages(req.PageIDs, req.TargetGroupID); err != nil {
		writeError(w, err)
		return
	}
	if err := s.persistLedger(r.Context(), quoteID, ledger, known); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "combined"})
}

// handleDeleteGroup soft-deletes a group. Its certification line drops to
// zero and its pages return to the unassigned pool; the row stays for audit.
func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	quoteID := chi.URLParam(r, "quoteID")
	groupID := chi.URLParam(r, "groupID")

	groups, err := s.store.GetGroups(r.Context(), quoteID)
	if err != nil {
		writeError(w, err)
		return
	}
	var target *model.DocumentGroup
	for i := range groups {
		if groups[i].ID == groupID {
			target = &groups[i]
			break
		}
	}
	if target == nil {
		writeError(w, eris.Wrapf(store.ErrNotFound, "group %s", groupID))
		return
	}
	if target.Deleted {
		writeError(w, eris.Wrapf(grouping.ErrGroupDeleted, "%s", groupID))
		return
	}

	target.Deleted = true
	if err := s.store.UpdateGroup(r.Context(), target); err != nil {
		writeError(w, err)
		return
	}

	docs, err := s.store.GetDocuments(r.Context(), quoteID)
	if err != nil {
		writeError(w, err)
		return
	}
	for _, d := range docs {
		for _, p := range d.Pages {
			if p.GroupID != groupID {
				continue
			}
			if err := s.store.UpdatePageGroup(r.Context(), p.ID, ""); err != nil {
				writeError(w, err)
				return
			}
		}
	}

	if _, _, err := s.service.Recalculate(r.Context(), quoteID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, target)
}

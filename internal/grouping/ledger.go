// Package grouping maintains the assignment of pages into billing groups.
// One group equals one certification line. The ledger never loses a page:
// the union of assigned and unassigned pages always equals the quote's full
// page set, with no duplicates, across every split and combine.
package grouping

import (
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/lingua-desk/quoteflow/internal/model"
)

// Sentinel errors for structural operations.
var (
	ErrUnknownGroup   = eris.New("grouping: unknown group")
	ErrUnknownPage    = eris.New("grouping: unknown page")
	ErrPageAssigned   = eris.New("grouping: page already assigned")
	ErrGroupDeleted   = eris.New("grouping: group is deleted")
	ErrCoverageBroken = eris.New("grouping: page coverage invariant violated")
)

// Ledger is an in-memory working copy of a quote's groups and pages. Staff
// edits mutate the ledger; the caller persists the resulting state and
// re-runs pricing for the affected group and the whole quote.
type Ledger struct {
	quoteID string
	pages   map[string]*model.Page
	groups  map[string]*model.DocumentGroup
}

// NewLedger builds a ledger over the quote's current pages and groups.
func NewLedger(quoteID string, pages []model.Page, groups []model.DocumentGroup) (*Ledger, error) {
	l := &Ledger{
		quoteID: quoteID,
		pages:   make(map[string]*model.Page, len(pages)),
		groups:  make(map[string]*model.DocumentGroup, len(groups)),
	}
	for i := range pages {
		p := pages[i]
		l.pages[p.ID] = &p
	}
	for i := range groups {
		g := groups[i]
		l.groups[g.ID] = &g
	}
	if err := l.checkCoverage(); err != nil {
		return nil, err
	}
	return l, nil
}

// CreateGroup adds a new empty group.
func (l *Ledger) CreateGroup(name, docType string, complexity model.ComplexityLevel) *model.DocumentGroup {
	now := time.Now().UTC()
	g := &model.DocumentGroup{
		ID:           uuid.New().String(),
		QuoteID:      l.quoteID,
		Name:         name,
		DocumentType: docType,
		Complexity:   complexity,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	l.groups[g.ID] = g
	return g
}

// AssignItem places an unassigned page into a group.
func (l *Ledger) AssignItem(groupID, pageID string) (*model.GroupAssignment, error) {
	g, ok := l.groups[groupID]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownGroup, "%s", groupID)
	}
	if g.Deleted {
		return nil, eris.Wrapf(ErrGroupDeleted, "%s", groupID)
	}
	p, ok := l.pages[pageID]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownPage, "%s", pageID)
	}
	if p.GroupID != "" {
		return nil, eris.Wrapf(ErrPageAssigned, "page %s is in group %s", pageID, p.GroupID)
	}

	a := model.GroupAssignment{
		ID:        uuid.New().String(),
		GroupID:   groupID,
		PageID:    pageID,
		Position:  l.activeCount(g) + 1,
		CreatedAt: time.Now().UTC(),
	}
	g.Assignments = append(g.Assignments, a)
	p.GroupID = groupID
	if err := l.checkCoverage(); err != nil {
		return nil, err
	}
	return &g.Assignments[len(g.Assignments)-1], nil
}

// RemoveItem takes a page out of its group. The page becomes unassigned,
// never silently reassigned. Assignments that were already persisted are
// soft-removed to preserve audit history; never-persisted ones are dropped.
func (l *Ledger) RemoveItem(assignmentID string) error {
	for _, g := range l.groups {
		for i := range g.Assignments {
			a := &g.Assignments[i]
			if a.ID != assignmentID || a.Removed {
				continue
			}
			if p, ok := l.pages[a.PageID]; ok && p.GroupID == g.ID {
				p.GroupID = ""
			}
			if a.Persisted {
				a.Removed = true
			} else {
				g.Assignments = append(g.Assignments[:i], g.Assignments[i+1:]...)
			}
			return l.checkCoverage()
		}
	}
	return eris.Errorf("grouping: unknown assignment %s", assignmentID)
}

// SplitPages moves the given pages out of their current groups into a new
// group with the given name. Source groups keep their soft-removed history.
func (l *Ledger) SplitPages(pageIDs []string, newGroupName string) (*model.DocumentGroup, error) {
	for _, id := range pageIDs {
		if _, ok := l.pages[id]; !ok {
			return nil, eris.Wrapf(ErrUnknownPage, "%s", id)
		}
	}

	target := l.CreateGroup(newGroupName, "", "")
	for _, id := range pageIDs {
		p := l.pages[id]
		if p.GroupID != "" {
			if err := l.detach(p); err != nil {
				return nil, err
			}
		}
		if _, err := l.AssignItem(target.ID, id); err != nil {
			return nil, err
		}
	}
	return target, l.checkCoverage()
}

// CombinePages moves the given pages into an existing target group.
func (l *Ledger) CombinePages(pageIDs []string, targetGroupID string) error {
	g, ok := l.groups[targetGroupID]
	if !ok {
		return eris.Wrapf(ErrUnknownGroup, "%s", targetGroupID)
	}
	if g.Deleted {
		return eris.Wrapf(ErrGroupDeleted, "%s", targetGroupID)
	}
	for _, id := range pageIDs {
		if _, ok := l.pages[id]; !ok {
			return eris.Wrapf(ErrUnknownPage, "%s", id)
		}
	}
	for _, id := range pageIDs {
		p := l.pages[id]
		if p.GroupID == targetGroupID {
			continue
		}
		if p.GroupID != "" {
			if err := l.detach(p); err != nil {
				return err
			}
		}
		if _, err := l.AssignItem(targetGroupID, id); err != nil {
			return err
		}
	}
	return l.checkCoverage()
}

// detach removes the page's active assignment from its current group.
func (l *Ledger) detach(p *model.Page) error {
	g, ok := l.groups[p.GroupID]
	if !ok {
		return eris.Wrapf(ErrUnknownGroup, "%s", p.GroupID)
	}
	for i := range g.Assignments {
		a := &g.Assignments[i]
		if a.PageID == p.ID && !a.Removed {
			return l.RemoveItem(a.ID)
		}
	}
	return eris.Errorf("grouping: page %s has no active assignment in group %s", p.ID, p.GroupID)
}

// Groups returns the current group set, including soft-removed assignment
// history, for persistence.
func (l *Ledger) Groups() []model.DocumentGroup {
	out := make([]model.DocumentGroup, 0, len(l.groups))
	for _, g := range l.groups {
		out = append(out, *g)
	}
	return out
}

// Pages returns the current page set for persistence.
func (l *Ledger) Pages() []model.Page {
	out := make([]model.Page, 0, len(l.pages))
	for _, p := range l.pages {
		out = append(out, *p)
	}
	return out
}

// Unassigned lists pages not currently in any group.
func (l *Ledger) Unassigned() []model.Page {
	var out []model.Page
	for _, p := range l.pages {
		if p.GroupID == "" {
			out = append(out, *p)
		}
	}
	return out
}

func (l *Ledger) activeCount(g *model.DocumentGroup) int {
	n := 0
	for _, a := range g.Assignments {
		if !a.Removed {
			n++
		}
	}
	return n
}

// checkCoverage verifies the invariant: every page appears in exactly one
// active assignment or is unassigned, and every active assignment points at a
// page that agrees.
func (l *Ledger) checkCoverage() error {
	assigned := map[string]string{}
	for _, g := range l.groups {
		for _, a := range g.Assignments {
			if a.Removed {
				continue
			}
			if g.Deleted {
				return eris.Wrapf(ErrCoverageBroken, "deleted group %s has active assignment %s", g.ID, a.ID)
			}
			if prev, dup := assigned[a.PageID]; dup {
				return eris.Wrapf(ErrCoverageBroken, "page %s assigned to both %s and %s", a.PageID, prev, g.ID)
			}
			assigned[a.PageID] = g.ID
		}
	}
	for id, p := range l.pages {
		groupID, isAssigned := assigned[id]
		if isAssigned != (p.GroupID != "") || (isAssigned && groupID != p.GroupID) {
			return eris.Wrapf(ErrCoverageBroken, "page %s assignment mismatch", id)
		}
	}
	for pageID := range assigned {
		if _, ok := l.pages[pageID]; !ok {
			return eris.Wrapf(ErrCoverageBroken, "assignment references unknown page %s", pageID)
		}
	}
	return nil
}

package grouping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingua-desk/quoteflow/internal/model"
)

func testPages(n int) []model.Page {
	pages := make([]model.Page, n)
	for i := range pages {
		pages[i] = model.Page{ID: string(rune('a' + i)), DocumentID: "doc-1", Number: i + 1, WordCount: 200}
	}
	return pages
}

func newTestLedger(t *testing.T, n int) *Ledger {
	t.Helper()
	l, err := NewLedger("quote-1", testPages(n), nil)
	require.NoError(t, err)
	return l
}

func TestAssignAndRemove(t *testing.T) {
	l := newTestLedger(t, 3)
	g := l.CreateGroup("certificates", "birth_certificate", model.ComplexityEasy)

	a, err := l.AssignItem(g.ID, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, a.Position)

	_, err = l.AssignItem(g.ID, "a")
	assert.ErrorIs(t, err, ErrPageAssigned, "a page belongs to at most one group")

	require.NoError(t, l.RemoveItem(a.ID))
	assert.Len(t, l.Unassigned(), 3, "removed page becomes unassigned, never reassigned")
}

func TestRemovePersistedIsSoft(t *testing.T) {
	pages := testPages(1)
	pages[0].GroupID = "g1"
	groups := []model.DocumentGroup{{
		ID:      "g1",
		QuoteID: "quote-1",
		Assignments: []model.GroupAssignment{
			{ID: "as1", GroupID: "g1", PageID: "a", Position: 1, Persisted: true},
		},
	}}
	l, err := NewLedger("quote-1", pages, groups)
	require.NoError(t, err)

	require.NoError(t, l.RemoveItem("as1"))
	gs := l.Groups()
	require.Len(t, gs, 1)
	require.Len(t, gs[0].Assignments, 1, "persisted assignments are kept as audit history")
	assert.True(t, gs[0].Assignments[0].Removed)
}

func TestRemoveUnpersistedIsHard(t *testing.T) {
	l := newTestLedger(t, 1)
	g := l.CreateGroup("new", "", "")
	a, err := l.AssignItem(g.ID, "a")
	require.NoError(t, err)

	require.NoError(t, l.RemoveItem(a.ID))
	gs := l.Groups()
	require.Len(t, gs, 1)
	assert.Empty(t, gs[0].Assignments, "never-persisted assignments are dropped outright")
}

func TestSplitPreservesCoverage(t *testing.T) {
	l := newTestLedger(t, 4)
	g := l.CreateGroup("all", "", "")
	for _, id := range []string{"a", "b", "c", "d"} {
		_, err := l.AssignItem(g.ID, id)
		require.NoError(t, err)
	}

	split, err := l.SplitPages([]string{"c", "d"}, "second certificate")
	require.NoError(t, err)

	byGroup := map[string]int{}
	for _, p := range l.Pages() {
		byGroup[p.GroupID]++
	}
	assert.Equal(t, 2, byGroup[g.ID])
	assert.Equal(t, 2, byGroup[split.ID])
	assert.Empty(t, l.Unassigned())
}

func TestCombinePages(t *testing.T) {
	l := newTestLedger(t, 3)
	g1 := l.CreateGroup("one", "", "")
	g2 := l.CreateGroup("two", "", "")
	_, err := l.AssignItem(g1.ID, "a")
	require.NoError(t, err)
	_, err = l.AssignItem(g2.ID, "b")
	require.NoError(t, err)

	require.NoError(t, l.CombinePages([]string{"a", "b", "c"}, g2.ID))
	for _, p := range l.Pages() {
		assert.Equal(t, g2.ID, p.GroupID)
	}
}

func TestCombineIntoDeletedGroup(t *testing.T) {
	pages := testPages(1)
	groups := []model.DocumentGroup{{ID: "gone", QuoteID: "quote-1", Deleted: true}}
	l, err := NewLedger("quote-1", pages, groups)
	require.NoError(t, err)

	err = l.CombinePages([]string{"a"}, "gone")
	assert.ErrorIs(t, err, ErrGroupDeleted)
}

func TestAssignUnknowns(t *testing.T) {
	l := newTestLedger(t, 1)
	g := l.CreateGroup("g", "", "")

	_, err := l.AssignItem("missing", "a")
	assert.ErrorIs(t, err, ErrUnknownGroup)

	_, err = l.AssignItem(g.ID, "missing")
	assert.ErrorIs(t, err, ErrUnknownPage)
}

func TestLedgerRejectsCorruptInput(t *testing.T) {
	// Two active assignments for one page must be refused at load time.
	pages := testPages(1)
	pages[0].GroupID = "g1"
	groups := []model.DocumentGroup{
		{ID: "g1", Assignments: []model.GroupAssignment{{ID: "x", GroupID: "g1", PageID: "a"}}},
		{ID: "g2", Assignments: []model.GroupAssignment{{ID: "y", GroupID: "g2", PageID: "a"}}},
	}
	_, err := NewLedger("quote-1", pages, groups)
	assert.ErrorIs(t, err, ErrCoverageBroken)
}

package export

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/lingua-desk/quoteflow/internal/model"
	"github.com/lingua-desk/quoteflow/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "export.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedQuote(t *testing.T, st *store.SQLiteStore, customer string, status model.QuoteStatus, total string) *model.Quote {
	t.Helper()
	q := &model.Quote{
		ID:                 uuid.New().String(),
		CustomerRef:        customer,
		SourceLanguage:     "es",
		TargetLanguage:     "en",
		LanguageMultiplier: decimal.NewFromInt(1),
		Turnaround:         model.TurnaroundStandard,
		DeliveryOption:     "digital",
		Status:             status,
		Subtotal:           decimal.RequireFromString(total),
		Total:              decimal.RequireFromString(total),
		BalanceDue:         decimal.RequireFromString(total),
	}
	require.NoError(t, st.CreateQuote(context.Background(), q))
	return q
}

func seedDocument(t *testing.T, st *store.SQLiteStore, quoteID, pages string) {
	t.Helper()
	docID := uuid.New().String()
	doc := &model.Document{
		ID:             docID,
		QuoteID:        quoteID,
		Filename:       "birth-certificate.pdf",
		PageCount:      1,
		Complexity:     model.ComplexityMedium,
		BillablePages:  decimal.RequireFromString(pages),
		AnalysisStatus: model.AnalysisComplete,
		Pages: []model.Page{
			{ID: uuid.New().String(), DocumentID: docID, Number: 1, WordCount: 400},
		},
	}
	require.NoError(t, st.CreateDocument(context.Background(), doc))
}

func TestLedgerWritesWorkbook(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	q := seedQuote(t, st, "acme", model.QuoteStatusApproved, "170")
	seedDocument(t, st, q.ID, "1.5")
	seedDocument(t, st, q.ID, "1.1")
	seedQuote(t, st, "globex", model.QuoteStatusDraft, "0")

	path := filepath.Join(t.TempDir(), "ledger.xlsx")
	n, err := New(st).LedgerFile(ctx, store.QuoteFilter{}, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	sheet, ok := f.Sheet[ledgerSheet]
	require.True(t, ok)
	require.Len(t, sheet.Rows, 3)

	header := sheet.Rows[0]
	require.Len(t, header.Cells, len(ledgerHeader))
	assert.Equal(t, "Quote ID", header.Cells[0].String())
	assert.Equal(t, "Total", header.Cells[12].String())

	var acme *xlsx.Row
	for _, row := range sheet.Rows[1:] {
		if row.Cells[1].String() == "acme" {
			acme = row
		}
	}
	require.NotNil(t, acme)
	assert.Equal(t, q.ID, acme.Cells[0].String())
	assert.Equal(t, "es -> en", acme.Cells[2].String())
	assert.Equal(t, "2", acme.Cells[3].String())
	assert.Equal(t, "2.6", acme.Cells[4].String())
	assert.Equal(t, "approved", acme.Cells[6].String())
	assert.Equal(t, "170.00", acme.Cells[12].String())
	assert.Equal(t, "0.00", acme.Cells[13].String())
	assert.Equal(t, "170.00", acme.Cells[14].String())
}

func TestLedgerHonoursFilter(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	seedQuote(t, st, "acme", model.QuoteStatusApproved, "170")
	seedQuote(t, st, "globex", model.QuoteStatusDraft, "0")

	var buf bytes.Buffer
	n, err := New(st).Ledger(ctx, store.QuoteFilter{Status: model.QuoteStatusDraft}, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NotZero(t, buf.Len())

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	sheet := f.Sheet[ledgerSheet]
	require.NotNil(t, sheet)
	require.Len(t, sheet.Rows, 2)
	assert.Equal(t, "globex", sheet.Rows[1].Cells[1].String())
}

func TestLedgerEmptyStore(t *testing.T) {
	st := newTestStore(t)

	var buf bytes.Buffer
	n, err := New(st).Ledger(context.Background(), store.QuoteFilter{}, &buf)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NotZero(t, buf.Len())
}

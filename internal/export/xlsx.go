// Package export produces back-office ledger workbooks from stored quotes.
package export

import (
	"context"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/lingua-desk/quoteflow/internal/model"
	"github.com/lingua-desk/quoteflow/internal/store"
)

const ledgerSheet = "Quotes"

var ledgerHeader = []string{
	"Quote ID",
	"Customer",
	"Languages",
	"Documents",
	"Billable Pages",
	"Turnaround",
	"Status",
	"Version",
	"Subtotal",
	"Certifications",
	"Rush Fee",
	"Tax",
	"Total",
	"Paid",
	"Balance Due",
	"Created",
}

// Exporter writes quote ledgers for accounting handoff.
type Exporter struct {
	store store.Store
}

func New(st store.Store) *Exporter {
	return &Exporter{store: st}
}

// Ledger writes one workbook row per quote matching the filter and returns
// the number of rows written. Money cells carry two decimal places.
func (e *Exporter) Ledger(ctx context.Context, filter store.QuoteFilter, w io.Writer) (int, error) {
	quotes, err := e.store.ListQuotes(ctx, filter)
	if err != nil {
		return 0, eris.Wrap(err, "export: list quotes")
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet(ledgerSheet)
	if err != nil {
		return 0, eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range ledgerHeader {
		header.AddCell().Value = h
	}

	for i := range quotes {
		q := &quotes[i]
		docs, err := e.store.GetDocuments(ctx, q.ID)
		if err != nil {
			return 0, eris.Wrapf(err, "export: documents for quote %s", q.ID)
		}
		writeLedgerRow(sheet.AddRow(), q, docs)
	}

	if err := f.Write(w); err != nil {
		return 0, eris.Wrap(err, "export: write workbook")
	}

	zap.L().Info("quote ledger exported",
		zap.Int("rows", len(quotes)),
	)
	return len(quotes), nil
}

// LedgerFile writes the ledger to path, creating or truncating the file.
func (e *Exporter) LedgerFile(ctx context.Context, filter store.QuoteFilter, path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrapf(err, "export: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	n, err := e.Ledger(ctx, filter, f)
	if err != nil {
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, eris.Wrapf(err, "export: close %s", path)
	}
	return n, nil
}

func writeLedgerRow(row *xlsx.Row, q *model.Quote, docs []model.Document) {
	pages := decimal.Zero
	for _, d := range docs {
		pages = pages.Add(d.BillablePages)
	}

	row.AddCell().Value = q.ID
	row.AddCell().Value = q.CustomerRef
	row.AddCell().Value = q.SourceLanguage + " -> " + q.TargetLanguage
	row.AddCell().SetInt(len(docs))
	row.AddCell().Value = pages.String()
	row.AddCell().Value = string(q.Turnaround)
	row.AddCell().Value = string(q.Status)
	row.AddCell().SetInt(q.Version)
	row.AddCell().Value = q.Subtotal.StringFixed(2)
	row.AddCell().Value = q.CertificationTotal.StringFixed(2)
	row.AddCell().Value = q.RushFee.StringFixed(2)
	row.AddCell().Value = q.TaxAmount.StringFixed(2)
	row.AddCell().Value = q.Total.StringFixed(2)
	row.AddCell().Value = q.AmountPaid.StringFixed(2)
	row.AddCell().Value = q.BalanceDue.StringFixed(2)
	row.AddCell().Value = q.CreatedAt.UTC().Format("2006-01-02 15:04")
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/lingua-desk/quoteflow/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS quotes (
	id                  TEXT PRIMARY KEY,
	customer_ref        TEXT NOT NULL,
	source_language     TEXT NOT NULL DEFAULT '',
	target_language     TEXT NOT NULL DEFAULT '',
	language_multiplier TEXT NOT NULL DEFAULT '1',
	document_type       TEXT NOT NULL DEFAULT '',
	intended_use        TEXT NOT NULL DEFAULT '',
	subtotal            TEXT NOT NULL DEFAULT '0',
	certification_total TEXT NOT NULL DEFAULT '0',
	surcharge_total     TEXT NOT NULL DEFAULT '0',
	discount_total      TEXT NOT NULL DEFAULT '0',
	rush_fee            TEXT NOT NULL DEFAULT '0',
	delivery_fee        TEXT NOT NULL DEFAULT '0',
	tax_rate            TEXT NOT NULL DEFAULT '0',
	tax_amount          TEXT NOT NULL DEFAULT '0',
	total               TEXT NOT NULL DEFAULT '0',
	amount_paid         TEXT NOT NULL DEFAULT '0',
	balance_due         TEXT NOT NULL DEFAULT '0',
	surcharge_kind      TEXT NOT NULL DEFAULT '',
	surcharge_value     TEXT NOT NULL DEFAULT '0',
	discount_kind       TEXT NOT NULL DEFAULT '',
	discount_value      TEXT NOT NULL DEFAULT '0',
	turnaround          TEXT NOT NULL DEFAULT 'standard',
	delivery_option     TEXT NOT NULL DEFAULT 'digital',
	status              TEXT NOT NULL DEFAULT 'draft',
	version             INTEGER NOT NULL DEFAULT 1,
	billing_address     TEXT,
	shipping_address    TEXT,
	created_at          DATETIME NOT NULL,
	updated_at          DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_quotes_status ON quotes(status);
CREATE INDEX IF NOT EXISTS idx_quotes_customer ON quotes(customer_ref);

CREATE TABLE IF NOT EXISTS documents (
	id                        TEXT PRIMARY KEY,
	quote_id                  TEXT NOT NULL REFERENCES quotes(id),
	filename                  TEXT NOT NULL,
	storage_ref               TEXT NOT NULL DEFAULT '',
	page_count                INTEGER NOT NULL DEFAULT 0,
	detected_language         TEXT NOT NULL DEFAULT '',
	detected_type             TEXT NOT NULL DEFAULT '',
	complexity                TEXT NOT NULL DEFAULT '',
	ocr_confidence            REAL NOT NULL DEFAULT 0,
	language_confidence       REAL NOT NULL DEFAULT 0,
	classification_confidence REAL NOT NULL DEFAULT 0,
	analysis_status           TEXT NOT NULL DEFAULT 'pending',
	analysis_fail_reason      TEXT NOT NULL DEFAULT '',
	billable_pages            TEXT NOT NULL DEFAULT '0',
	certification_type        TEXT NOT NULL DEFAULT '',
	line_total                TEXT NOT NULL DEFAULT '0',
	created_at                DATETIME NOT NULL,
	updated_at                DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_quote ON documents(quote_id);

CREATE TABLE IF NOT EXISTS pages (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id),
	number      INTEGER NOT NULL,
	word_count  INTEGER NOT NULL DEFAULT 0,
	group_id    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_pages_document ON pages(document_id);
CREATE INDEX IF NOT EXISTS idx_pages_group ON pages(group_id);

CREATE TABLE IF NOT EXISTS document_groups (
	id                 TEXT PRIMARY KEY,
	quote_id           TEXT NOT NULL REFERENCES quotes(id),
	name               TEXT NOT NULL DEFAULT '',
	document_type      TEXT NOT NULL DEFAULT '',
	complexity         TEXT NOT NULL DEFAULT 'medium',
	certification_type TEXT NOT NULL DEFAULT '',
	cert_quantity      INTEGER NOT NULL DEFAULT 0,
	cert_unit_price    TEXT NOT NULL DEFAULT '0',
	deleted            INTEGER NOT NULL DEFAULT 0,
	assignments        TEXT,
	created_at         DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_groups_quote ON document_groups(quote_id);

CREATE TABLE IF NOT EXISTS hitl_reviews (
	id                TEXT PRIMARY KEY,
	quote_id          TEXT NOT NULL UNIQUE REFERENCES quotes(id),
	status            TEXT NOT NULL DEFAULT 'pending',
	assigned_staff_id TEXT,
	trigger_reasons   TEXT NOT NULL DEFAULT '[]',
	priority          TEXT NOT NULL DEFAULT 'normal',
	sla_deadline      DATETIME,
	notes             TEXT NOT NULL DEFAULT '',
	completed_by      TEXT NOT NULL DEFAULT '',
	completed_at      DATETIME,
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reviews_status ON hitl_reviews(status);
CREATE INDEX IF NOT EXISTS idx_reviews_assigned ON hitl_reviews(assigned_staff_id);

CREATE TABLE IF NOT EXISTS staff (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'reviewer'
);

CREATE TABLE IF NOT EXISTS audit_log (
	id         TEXT PRIMARY KEY,
	quote_id   TEXT NOT NULL,
	review_id  TEXT NOT NULL DEFAULT '',
	staff_id   TEXT NOT NULL,
	action     TEXT NOT NULL,
	field      TEXT NOT NULL DEFAULT '',
	old_value  TEXT NOT NULL DEFAULT '',
	new_value  TEXT NOT NULL DEFAULT '',
	reason     TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_quote ON audit_log(quote_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", kind, id)
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: %s %s", kind, id)
	}
	return nil
}

func (s *SQLiteStore) CreateQuote(ctx context.Context, q *model.Quote) error {
	now := time.Now().UTC()
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
	q.UpdatedAt = now
	if q.Version == 0 {
		q.Version = 1
	}
	if q.LanguageMultiplier.IsZero() {
		q.LanguageMultiplier = decimal.NewFromInt(1)
	}

	billing, err := marshalAddress(q.BillingAddress)
	if err != nil {
		return err
	}
	shipping, err := marshalAddress(q.ShippingAddress)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO quotes (id, customer_ref, source_language, target_language, language_multiplier, document_type, intended_use,
subtotal, certification_total, surcharge_total, discount_total, rush_fee, delivery_fee, tax_rate, tax_amount, total, amount_paid, balance_due,
surcharge_kind, surcharge_value, discount_kind, discount_value,
turnaround, delivery_option, status, version, billing_address, shipping_address, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.CustomerRef, q.SourceLanguage, q.TargetLanguage, q.LanguageMultiplier.String(), q.DocumentType, q.IntendedUse,
		q.Subtotal.String(), q.CertificationTotal.String(), q.SurchargeTotal.String(), q.DiscountTotal.String(),
		q.RushFee.String(), q.DeliveryFee.String(), q.TaxRate.String(), q.TaxAmount.String(), q.Total.String(),
		q.AmountPaid.String(), q.BalanceDue.String(),
		q.SurchargeKind, q.SurchargeValue.String(), q.DiscountKind, q.DiscountValue.String(),
		string(q.Turnaround), q.DeliveryOption, string(q.Status), q.Version,
		nullBytes(billing), nullBytes(shipping), q.CreatedAt, q.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert quote %s", q.ID)
}

const sqliteSelectQuote = `SELECT id, customer_ref, source_language, target_language, language_multiplier, document_type, intended_use,
subtotal, certification_total, surcharge_total, discount_total, rush_fee, delivery_fee, tax_rate, tax_amount, total, amount_paid, balance_due,
surcharge_kind, surcharge_value, discount_kind, discount_value,
turnaround, delivery_option, status, version, billing_address, shipping_address, created_at, updated_at FROM quotes`

type rowScanner interface {
	Scan(dest ...any) error
}

func sqliteScanQuote(row rowScanner) (*model.Quote, error) {
	var q model.Quote
	var turnaround, status string
	var billing, shipping sql.NullString

	err := row.Scan(&q.ID, &q.CustomerRef, &q.SourceLanguage, &q.TargetLanguage,
		decScan{&q.LanguageMultiplier}, &q.DocumentType, &q.IntendedUse,
		decScan{&q.Subtotal}, decScan{&q.CertificationTotal}, decScan{&q.SurchargeTotal}, decScan{&q.DiscountTotal},
		decScan{&q.RushFee}, decScan{&q.DeliveryFee}, decScan{&q.TaxRate}, decScan{&q.TaxAmount}, decScan{&q.Total},
		decScan{&q.AmountPaid}, decScan{&q.BalanceDue},
		&q.SurchargeKind, decScan{&q.SurchargeValue}, &q.DiscountKind, decScan{&q.DiscountValue},
		&turnaround, &q.DeliveryOption, &status, &q.Version,
		&billing, &shipping, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	q.Turnaround = model.TurnaroundType(turnaround)
	q.Status = model.QuoteStatus(status)
	if billing.Valid && billing.String != "" {
		q.BillingAddress = &model.Address{}
		if err := json.Unmarshal([]byte(billing.String), q.BillingAddress); err != nil {
			return nil, eris.Wrap(err, "unmarshal billing address")
		}
	}
	if shipping.Valid && shipping.String != "" {
		q.ShippingAddress = &model.Address{}
		if err := json.Unmarshal([]byte(shipping.String), q.ShippingAddress); err != nil {
			return nil, eris.Wrap(err, "unmarshal shipping address")
		}
	}
	return &q, nil
}

func (s *SQLiteStore) GetQuote(ctx context.Context, id string) (*model.Quote, error) {
	q, err := sqliteScanQuote(s.db.QueryRowContext(ctx, sqliteSelectQuote+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "sqlite: quote %s", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get quote %s", id)
	}
	return q, nil
}

func (s *SQLiteStore) ListQuotes(ctx context.Context, filter QuoteFilter) ([]model.Quote, error) {
	query := sqliteSelectQuote + ` WHERE 1=1`
	args := []any{}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.CustomerRef != "" {
		query += ` AND customer_ref = ?`
		args = append(args, filter.CustomerRef)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list quotes")
	}
	defer rows.Close()

	var quotes []model.Quote
	for rows.Next() {
		q, err := sqliteScanQuote(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan quote")
		}
		quotes = append(quotes, *q)
	}
	return quotes, eris.Wrap(rows.Err(), "sqlite: list quotes rows")
}

func (s *SQLiteStore) UpdateQuoteStatus(ctx context.Context, id string, status model.QuoteStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE quotes SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update quote status %s", id)
	}
	return checkRowsAffected(res, "quote", id)
}

func (s *SQLiteStore) UpdateQuoteTotals(ctx context.Context, id string, t QuoteTotals) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE quotes SET subtotal = ?, certification_total = ?, surcharge_total = ?, discount_total = ?,
rush_fee = ?, delivery_fee = ?, tax_rate = ?, tax_amount = ?, total = ?, balance_due = ?, updated_at = ? WHERE id = ?`,
		t.Subtotal.String(), t.CertificationTotal.String(), t.SurchargeTotal.String(), t.DiscountTotal.String(),
		t.RushFee.String(), t.DeliveryFee.String(), t.TaxRate.String(), t.TaxAmount.String(), t.Total.String(),
		t.BalanceDue.String(), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update quote totals %s", id)
	}
	return checkRowsAffected(res, "quote", id)
}

func (s *SQLiteStore) UpdateQuoteOptions(ctx context.Context, id string, turnaround model.TurnaroundType, deliveryOption string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE quotes SET turnaround = ?, delivery_option = ?, updated_at = ? WHERE id = ?`,
		string(turnaround), deliveryOption, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update quote options %s", id)
	}
	return checkRowsAffected(res, "quote", id)
}

func (s *SQLiteStore) BumpQuoteVersion(ctx context.Context, id string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE quotes SET version = version + 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: bump quote version %s", id)
	}
	if err := checkRowsAffected(res, "quote", id); err != nil {
		return 0, err
	}
	var version int
	err = s.db.QueryRowContext(ctx, `SELECT version FROM quotes WHERE id = ?`, id).Scan(&version)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: read quote version %s", id)
	}
	return version, nil
}

func (s *SQLiteStore) UpdateQuotePayment(ctx context.Context, id string, amountPaid, balanceDue decimal.Decimal) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE quotes SET amount_paid = ?, balance_due = ?, updated_at = ? WHERE id = ?`,
		amountPaid.String(), balanceDue.String(), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update quote payment %s", id)
	}
	return checkRowsAffected(res, "quote", id)
}

func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *model.Document) error {
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if doc.AnalysisStatus == "" {
		doc.AnalysisStatus = model.AnalysisPending
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, quote_id, filename, storage_ref, page_count, detected_language, detected_type, complexity,
ocr_confidence, language_confidence, classification_confidence, analysis_status, analysis_fail_reason,
billable_pages, certification_type, line_total, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.QuoteID, doc.Filename, doc.StorageRef, doc.PageCount,
		doc.DetectedLanguage, doc.DetectedType, string(doc.Complexity),
		doc.Confidence.OCR, doc.Confidence.Language, doc.Confidence.Classification,
		string(doc.AnalysisStatus), doc.AnalysisFailReason,
		doc.BillablePages.String(), doc.CertificationType, doc.LineTotal.String(),
		doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert document %s", doc.ID)
	}

	for _, p := range doc.Pages {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO pages (id, document_id, number, word_count, group_id) VALUES (?, ?, ?, ?, ?)`,
			p.ID, doc.ID, p.Number, p.WordCount, p.GroupID,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert page %s", p.ID)
		}
	}
	return nil
}

func (s *SQLiteStore) GetDocuments(ctx context.Context, quoteID string) ([]model.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, quote_id, filename, storage_ref, page_count, detected_language, detected_type, complexity,
ocr_confidence, language_confidence, classification_confidence, analysis_status, analysis_fail_reason,
billable_pages, certification_type, line_total, created_at, updated_at FROM documents WHERE quote_id = ? ORDER BY created_at, id`,
		quoteID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get documents %s", quoteID)
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		var d model.Document
		var complexity, status string
		if err := rows.Scan(&d.ID, &d.QuoteID, &d.Filename, &d.StorageRef, &d.PageCount,
			&d.DetectedLanguage, &d.DetectedType, &complexity,
			&d.Confidence.OCR, &d.Confidence.Language, &d.Confidence.Classification,
			&status, &d.AnalysisFailReason,
			decScan{&d.BillablePages}, &d.CertificationType, decScan{&d.LineTotal},
			&d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan document")
		}
		d.Complexity = model.ComplexityLevel(complexity)
		d.AnalysisStatus = model.AnalysisStatus(status)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: document rows")
	}

	for i := range docs {
		pages, err := s.getPages(ctx, docs[i].ID)
		if err != nil {
			return nil, err
		}
		docs[i].Pages = pages
	}
	return docs, nil
}

func (s *SQLiteStore) getPages(ctx context.Context, docID string) ([]model.Page, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, number, word_count, group_id FROM pages WHERE document_id = ? ORDER BY number`, docID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get pages %s", docID)
	}
	defer rows.Close()

	var pages []model.Page
	for rows.Next() {
		var p model.Page
		if err := rows.Scan(&p.ID, &p.DocumentID, &p.Number, &p.WordCount, &p.GroupID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan page")
		}
		pages = append(pages, p)
	}
	return pages, eris.Wrap(rows.Err(), "sqlite: page rows")
}

func (s *SQLiteStore) UpdateDocumentAnalysis(ctx context.Context, docID string, status model.AnalysisStatus, failReason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET analysis_status = ?, analysis_fail_reason = ?, updated_at = ? WHERE id = ?`,
		string(status), failReason, time.Now().UTC(), docID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update document analysis %s", docID)
	}
	return checkRowsAffected(res, "document", docID)
}

func (s *SQLiteStore) UpdateDocumentDetection(ctx context.Context, docID string, lang, docType string, complexity model.ComplexityLevel, conf model.Confidence) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET
detected_language = CASE WHEN ? = '' THEN detected_language ELSE ? END,
detected_type = CASE WHEN ? = '' THEN detected_type ELSE ? END,
complexity = CASE WHEN ? = '' THEN complexity ELSE ? END,
ocr_confidence = CASE WHEN ? = 0 THEN ocr_confidence ELSE ? END,
language_confidence = CASE WHEN ? = 0 THEN language_confidence ELSE ? END,
classification_confidence = CASE WHEN ? = 0 THEN classification_confidence ELSE ? END,
updated_at = ? WHERE id = ?`,
		lang, lang, docType, docType, string(complexity), string(complexity),
		conf.OCR, conf.OCR, conf.Language, conf.Language, conf.Classification, conf.Classification,
		time.Now().UTC(), docID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update document detection %s", docID)
	}
	return checkRowsAffected(res, "document", docID)
}

func (s *SQLiteStore) UpdateDocumentBilling(ctx context.Context, docID string, billablePages, lineTotal decimal.Decimal) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET billable_pages = ?, line_total = ?, updated_at = ? WHERE id = ?`,
		billablePages.String(), lineTotal.String(), time.Now().UTC(), docID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update document billing %s", docID)
	}
	return checkRowsAffected(res, "document", docID)
}

func (s *SQLiteStore) UpdatePageWordCount(ctx context.Context, pageID string, wordCount int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pages SET word_count = ? WHERE id = ?`, wordCount, pageID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update page word count %s", pageID)
	}
	return checkRowsAffected(res, "page", pageID)
}

func (s *SQLiteStore) UpdatePageGroup(ctx context.Context, pageID, groupID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pages SET group_id = ? WHERE id = ?`, groupID, pageID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update page group %s", pageID)
	}
	return checkRowsAffected(res, "page", pageID)
}

func (s *SQLiteStore) CreateGroup(ctx context.Context, g *model.DocumentGroup) error {
	now := time.Now().UTC()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	g.UpdatedAt = now

	assignments, err := json.Marshal(g.Assignments)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal assignments")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO document_groups (id, quote_id, name, document_type, complexity, certification_type, cert_quantity, cert_unit_price, deleted, assignments, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.QuoteID, g.Name, g.DocumentType, string(g.Complexity), g.CertificationType,
		g.CertQuantity, g.CertUnitPrice.String(), g.Deleted, string(assignments), g.CreatedAt, g.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert group %s", g.ID)
}

func (s *SQLiteStore) GetGroups(ctx context.Context, quoteID string) ([]model.DocumentGroup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, quote_id, name, document_type, complexity, certification_type, cert_quantity, cert_unit_price, deleted, assignments, created_at, updated_at
FROM document_groups WHERE quote_id = ? ORDER BY created_at, id`, quoteID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get groups %s", quoteID)
	}
	defer rows.Close()

	var groups []model.DocumentGroup
	for rows.Next() {
		var g model.DocumentGroup
		var complexity string
		var assignments sql.NullString
		if err := rows.Scan(&g.ID, &g.QuoteID, &g.Name, &g.DocumentType, &complexity,
			&g.CertificationType, &g.CertQuantity, decScan{&g.CertUnitPrice}, &g.Deleted,
			&assignments, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan group")
		}
		g.Complexity = model.ComplexityLevel(complexity)
		if assignments.Valid && assignments.String != "" && assignments.String != "null" {
			if err := json.Unmarshal([]byte(assignments.String), &g.Assignments); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal assignments")
			}
		}
		groups = append(groups, g)
	}
	return groups, eris.Wrap(rows.Err(), "sqlite: group rows")
}

func (s *SQLiteStore) UpdateGroup(ctx context.Context, g *model.DocumentGroup) error {
	assignments, err := json.Marshal(g.Assignments)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal assignments")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE document_groups SET name = ?, document_type = ?, complexity = ?, certification_type = ?,
cert_quantity = ?, cert_unit_price = ?, deleted = ?, assignments = ?, updated_at = ? WHERE id = ?`,
		g.Name, g.DocumentType, string(g.Complexity), g.CertificationType,
		g.CertQuantity, g.CertUnitPrice.String(), g.Deleted, string(assignments), time.Now().UTC(), g.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update group %s", g.ID)
	}
	return checkRowsAffected(res, "group", g.ID)
}

const sqliteSelectReview = `SELECT id, quote_id, status, assigned_staff_id, trigger_reasons, priority, sla_deadline, notes, completed_by, completed_at, created_at, updated_at FROM hitl_reviews`

func sqliteScanReview(row rowScanner) (*model.HITLReview, error) {
	var r model.HITLReview
	var status, priority string
	var assigned sql.NullString
	var triggers string
	var slaDeadline, completedAt sql.NullTime

	err := row.Scan(&r.ID, &r.QuoteID, &status, &assigned, &triggers, &priority,
		&slaDeadline, &r.Notes, &r.CompletedBy, &completedAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Status = model.ReviewStatus(status)
	r.Priority = model.ReviewPriority(priority)
	if assigned.Valid {
		r.AssignedStaffID = assigned.String
	}
	if slaDeadline.Valid {
		r.SLADeadline = slaDeadline.Time
	}
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	if triggers != "" && triggers != "null" {
		if err := json.Unmarshal([]byte(triggers), &r.TriggerReasons); err != nil {
			return nil, eris.Wrap(err, "unmarshal trigger reasons")
		}
	}
	return &r, nil
}

func (s *SQLiteStore) CreateReviewIfAbsent(ctx context.Context, r *model.HITLReview) (bool, *model.HITLReview, error) {
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	if r.Status == "" {
		r.Status = model.ReviewStatusPending
	}
	if r.Priority == "" {
		r.Priority = model.PriorityNormal
	}

	triggers, err := json.Marshal(r.TriggerReasons)
	if err != nil {
		return false, nil, eris.Wrap(err, "sqlite: marshal triggers")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO hitl_reviews (id, quote_id, status, assigned_staff_id, trigger_reasons, priority, sla_deadline, notes, completed_by, completed_at, created_at, updated_at)
VALUES (?, ?, ?, NULLIF(?, ''), ?, ?, ?, ?, '', NULL, ?, ?)`,
		r.ID, r.QuoteID, string(r.Status), r.AssignedStaffID, string(triggers), string(r.Priority),
		nullTime(r.SLADeadline), r.Notes, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return false, nil, eris.Wrapf(err, "sqlite: insert review %s", r.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, nil, eris.Wrap(err, "sqlite: insert review rows affected")
	}
	if n == 1 {
		return true, r, nil
	}
	existing, err := s.GetReviewByQuote(ctx, r.QuoteID)
	if err != nil {
		return false, nil, err
	}
	return false, existing, nil
}

func (s *SQLiteStore) GetReview(ctx context.Context, id string) (*model.HITLReview, error) {
	r, err := sqliteScanReview(s.db.QueryRowContext(ctx, sqliteSelectReview+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "sqlite: review %s", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get review %s", id)
	}
	return r, nil
}

func (s *SQLiteStore) GetReviewByQuote(ctx context.Context, quoteID string) (*model.HITLReview, error) {
	r, err := sqliteScanReview(s.db.QueryRowContext(ctx, sqliteSelectReview+` WHERE quote_id = ?`, quoteID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "sqlite: review for quote %s", quoteID)
		}
		return nil, eris.Wrapf(err, "sqlite: get review for quote %s", quoteID)
	}
	return r, nil
}

func (s *SQLiteStore) ListReviews(ctx context.Context, filter ReviewFilter) ([]model.HITLReview, error) {
	query := sqliteSelectReview + ` WHERE 1=1`
	args := []any{}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.AssignedTo != "" {
		query += ` AND assigned_staff_id = ?`
		args = append(args, filter.AssignedTo)
	}
	if filter.Unclaimed {
		query += ` AND (assigned_staff_id IS NULL OR assigned_staff_id = '')`
	}
	query += ` ORDER BY priority = 'urgent' DESC, priority = 'high' DESC, created_at`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reviews")
	}
	defer rows.Close()

	var reviews []model.HITLReview
	for rows.Next() {
		r, err := sqliteScanReview(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan review")
		}
		reviews = append(reviews, *r)
	}
	return reviews, eris.Wrap(rows.Err(), "sqlite: review rows")
}

func (s *SQLiteStore) UpdateReviewStatus(ctx context.Context, id string, status model.ReviewStatus, completedBy string) error {
	now := time.Now().UTC()
	var completedAt any
	if status.Terminal() || status == model.ReviewStatusApproved {
		completedAt = now
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE hitl_reviews SET status = ?, completed_by = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
		string(status), completedBy, completedAt, now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update review status %s", id)
	}
	return checkRowsAffected(res, "review", id)
}

func (s *SQLiteStore) UpdateReviewNotes(ctx context.Context, id string, notes string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE hitl_reviews SET notes = ?, updated_at = ? WHERE id = ?`,
		notes, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update review notes %s", id)
	}
	return checkRowsAffected(res, "review", id)
}

func (s *SQLiteStore) ClaimReview(ctx context.Context, id, staffID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE hitl_reviews SET assigned_staff_id = ?, updated_at = ? WHERE id = ? AND (assigned_staff_id IS NULL OR assigned_staff_id = '')`,
		staffID, time.Now().UTC(), id,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: claim review %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: claim rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) ReassignReview(ctx context.Context, id, fromStaffID, toStaffID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE hitl_reviews SET assigned_staff_id = ?, updated_at = ? WHERE id = ? AND assigned_staff_id = ?`,
		toStaffID, time.Now().UTC(), id, fromStaffID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: reassign review %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: reassign rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) CreateStaff(ctx context.Context, u *model.StaffUser) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO staff (id, name, role) VALUES (?, ?, ?)`,
		u.ID, u.Name, string(u.Role),
	)
	return eris.Wrapf(err, "sqlite: insert staff %s", u.ID)
}

func (s *SQLiteStore) GetStaff(ctx context.Context, id string) (*model.StaffUser, error) {
	var u model.StaffUser
	var role string
	err := s.db.QueryRowContext(ctx, `SELECT id, name, role FROM staff WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "sqlite: staff %s", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get staff %s", id)
	}
	u.Role = model.StaffRole(role)
	return &u, nil
}

func (s *SQLiteStore) AppendAudit(ctx context.Context, rec model.AuditRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, quote_id, review_id, staff_id, action, field, old_value, new_value, reason, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.QuoteID, rec.ReviewID, rec.StaffID, string(rec.Action),
		rec.Field, rec.OldValue, rec.NewValue, rec.Reason, rec.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: append audit %s", rec.ID)
}

func (s *SQLiteStore) ListAudit(ctx context.Context, quoteID string) ([]model.AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, quote_id, review_id, staff_id, action, field, old_value, new_value, reason, created_at
FROM audit_log WHERE quote_id = ? ORDER BY created_at, id`, quoteID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list audit %s", quoteID)
	}
	defer rows.Close()

	var records []model.AuditRecord
	for rows.Next() {
		var rec model.AuditRecord
		var action string
		if err := rows.Scan(&rec.ID, &rec.QuoteID, &rec.ReviewID, &rec.StaffID, &action,
			&rec.Field, &rec.OldValue, &rec.NewValue, &rec.Reason, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan audit")
		}
		rec.Action = model.AuditAction(action)
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: audit rows")
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

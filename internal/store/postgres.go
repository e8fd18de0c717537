package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/lingua-desk/quoteflow/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it
// for unit tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries prepared on each new connection. These
// are the hot paths: quote reads, claim CAS, and audit appends.
var preparedStatements = map[string]string{
	"get_quote":       selectQuote + ` WHERE id = $1`,
	"get_review":      selectReview + ` WHERE id = $1`,
	"claim_review":    `UPDATE hitl_reviews SET assigned_staff_id = $1, updated_at = $2 WHERE id = $3 AND (assigned_staff_id IS NULL OR assigned_staff_id = '')`,
	"reassign_review": `UPDATE hitl_reviews SET assigned_staff_id = $1, updated_at = $2 WHERE id = $3 AND assigned_staff_id = $4`,
	"append_audit":    `INSERT INTO audit_log (id, quote_id, review_id, staff_id, action, field, old_value, new_value, reason, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
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
	billing_address     JSONB,
	shipping_address    JSONB,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
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
	ocr_confidence            DOUBLE PRECISION NOT NULL DEFAULT 0,
	language_confidence       DOUBLE PRECISION NOT NULL DEFAULT 0,
	classification_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	analysis_status           TEXT NOT NULL DEFAULT 'pending',
	analysis_fail_reason      TEXT NOT NULL DEFAULT '',
	billable_pages            TEXT NOT NULL DEFAULT '0',
	certification_type        TEXT NOT NULL DEFAULT '',
	line_total                TEXT NOT NULL DEFAULT '0',
	created_at                TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at                TIMESTAMPTZ NOT NULL DEFAULT now()
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
	deleted            BOOLEAN NOT NULL DEFAULT false,
	assignments        JSONB,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_groups_quote ON document_groups(quote_id);

CREATE TABLE IF NOT EXISTS hitl_reviews (
	id                TEXT PRIMARY KEY,
	quote_id          TEXT NOT NULL UNIQUE REFERENCES quotes(id),
	status            TEXT NOT NULL DEFAULT 'pending',
	assigned_staff_id TEXT,
	trigger_reasons   JSONB NOT NULL DEFAULT '[]',
	priority          TEXT NOT NULL DEFAULT 'normal',
	sla_deadline      TIMESTAMPTZ,
	notes             TEXT NOT NULL DEFAULT '',
	completed_by      TEXT NOT NULL DEFAULT '',
	completed_at      TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
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
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_audit_quote ON audit_log(quote_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const selectQuote = `SELECT id, customer_ref, source_language, target_language, language_multiplier, document_type, intended_use,
subtotal, certification_total, surcharge_total, discount_total, rush_fee, delivery_fee, tax_rate, tax_amount, total, amount_paid, balance_due,
surcharge_kind, surcharge_value, discount_kind, discount_value,
turnaround, delivery_option, status, version, billing_address, shipping_address, created_at, updated_at FROM quotes`

func (s *PostgresStore) CreateQuote(ctx context.Context, q *model.Quote) error {
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

	_, err = s.pool.Exec(ctx,
		`INSERT INTO quotes (id, customer_ref, source_language, target_language, language_multiplier, document_type, intended_use,
subtotal, certification_total, surcharge_total, discount_total, rush_fee, delivery_fee, tax_rate, tax_amount, total, amount_paid, balance_due,
surcharge_kind, surcharge_value, discount_kind, discount_value,
turnaround, delivery_option, status, version, billing_address, shipping_address, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30)`,
		q.ID, q.CustomerRef, q.SourceLanguage, q.TargetLanguage, q.LanguageMultiplier.String(), q.DocumentType, q.IntendedUse,
		q.Subtotal.String(), q.CertificationTotal.String(), q.SurchargeTotal.String(), q.DiscountTotal.String(),
		q.RushFee.String(), q.DeliveryFee.String(), q.TaxRate.String(), q.TaxAmount.String(), q.Total.String(),
		q.AmountPaid.String(), q.BalanceDue.String(),
		q.SurchargeKind, q.SurchargeValue.String(), q.DiscountKind, q.DiscountValue.String(),
		string(q.Turnaround), q.DeliveryOption, string(q.Status), q.Version,
		billing, shipping, q.CreatedAt, q.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: insert quote %s", q.ID)
}

func (s *PostgresStore) GetQuote(ctx context.Context, id string) (*model.Quote, error) {
	q, err := scanQuote(s.pool.QueryRow(ctx, selectQuote+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: quote %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get quote %s", id)
	}
	return q, nil
}

func (s *PostgresStore) ListQuotes(ctx context.Context, filter QuoteFilter) ([]model.Quote, error) {
	query := selectQuote + ` WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.CustomerRef != "" {
		query += fmt.Sprintf(` AND customer_ref = $%d`, argIdx)
		args = append(args, filter.CustomerRef)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list quotes")
	}
	defer rows.Close()

	var quotes []model.Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan quote")
		}
		quotes = append(quotes, *q)
	}
	return quotes, eris.Wrap(rows.Err(), "postgres: list quotes rows")
}

func (s *PostgresStore) UpdateQuoteStatus(ctx context.Context, id string, status model.QuoteStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE quotes SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update quote status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: quote %s", id)
	}
	return nil
}

func (s *PostgresStore) UpdateQuoteTotals(ctx context.Context, id string, t QuoteTotals) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE quotes SET subtotal = $1, certification_total = $2, surcharge_total = $3, discount_total = $4,
rush_fee = $5, delivery_fee = $6, tax_rate = $7, tax_amount = $8, total = $9, balance_due = $10, updated_at = $11 WHERE id = $12`,
		t.Subtotal.String(), t.CertificationTotal.String(), t.SurchargeTotal.String(), t.DiscountTotal.String(),
		t.RushFee.String(), t.DeliveryFee.String(), t.TaxRate.String(), t.TaxAmount.String(), t.Total.String(),
		t.BalanceDue.String(), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update quote totals %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: quote %s", id)
	}
	return nil
}

func (s *PostgresStore) UpdateQuoteOptions(ctx context.Context, id string, turnaround model.TurnaroundType, deliveryOption string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE quotes SET turnaround = $1, delivery_option = $2, updated_at = $3 WHERE id = $4`,
		string(turnaround), deliveryOption, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update quote options %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: quote %s", id)
	}
	return nil
}

func (s *PostgresStore) BumpQuoteVersion(ctx context.Context, id string) (int, error) {
	var version int
	err := s.pool.QueryRow(ctx,
		`UPDATE quotes SET version = version + 1, updated_at = $1 WHERE id = $2 RETURNING version`,
		time.Now().UTC(), id,
	).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, eris.Wrapf(ErrNotFound, "postgres: quote %s", id)
		}
		return 0, eris.Wrapf(err, "postgres: bump quote version %s", id)
	}
	return version, nil
}

func (s *PostgresStore) UpdateQuotePayment(ctx context.Context, id string, amountPaid, balanceDue decimal.Decimal) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE quotes SET amount_paid = $1, balance_due = $2, updated_at = $3 WHERE id = $4`,
		amountPaid.String(), balanceDue.String(), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update quote payment %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: quote %s", id)
	}
	return nil
}

const selectDocument = `SELECT id, quote_id, filename, storage_ref, page_count, detected_language, detected_type, complexity,
ocr_confidence, language_confidence, classification_confidence, analysis_status, analysis_fail_reason,
billable_pages, certification_type, line_total, created_at, updated_at FROM documents`

func (s *PostgresStore) CreateDocument(ctx context.Context, doc *model.Document) error {
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if doc.AnalysisStatus == "" {
		doc.AnalysisStatus = model.AnalysisPending
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, quote_id, filename, storage_ref, page_count, detected_language, detected_type, complexity,
ocr_confidence, language_confidence, classification_confidence, analysis_status, analysis_fail_reason,
billable_pages, certification_type, line_total, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		doc.ID, doc.QuoteID, doc.Filename, doc.StorageRef, doc.PageCount,
		doc.DetectedLanguage, doc.DetectedType, string(doc.Complexity),
		doc.Confidence.OCR, doc.Confidence.Language, doc.Confidence.Classification,
		string(doc.AnalysisStatus), doc.AnalysisFailReason,
		doc.BillablePages.String(), doc.CertificationType, doc.LineTotal.String(),
		doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert document %s", doc.ID)
	}

	for _, p := range doc.Pages {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO pages (id, document_id, number, word_count, group_id) VALUES ($1, $2, $3, $4, $5)`,
			p.ID, doc.ID, p.Number, p.WordCount, p.GroupID,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert page %s", p.ID)
		}
	}
	return nil
}

func (s *PostgresStore) GetDocuments(ctx context.Context, quoteID string) ([]model.Document, error) {
	rows, err := s.pool.Query(ctx, selectDocument+` WHERE quote_id = $1 ORDER BY created_at, id`, quoteID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get documents %s", quoteID)
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
			return nil, eris.Wrap(err, "postgres: scan document")
		}
		d.Complexity = model.ComplexityLevel(complexity)
		d.AnalysisStatus = model.AnalysisStatus(status)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: document rows")
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

func (s *PostgresStore) getPages(ctx context.Context, docID string) ([]model.Page, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, document_id, number, word_count, group_id FROM pages WHERE document_id = $1 ORDER BY number`, docID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get pages %s", docID)
	}
	defer rows.Close()

	var pages []model.Page
	for rows.Next() {
		var p model.Page
		if err := rows.Scan(&p.ID, &p.DocumentID, &p.Number, &p.WordCount, &p.GroupID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan page")
		}
		pages = append(pages, p)
	}
	return pages, eris.Wrap(rows.Err(), "postgres: page rows")
}

func (s *PostgresStore) UpdateDocumentAnalysis(ctx context.Context, docID string, status model.AnalysisStatus, failReason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET analysis_status = $1, analysis_fail_reason = $2, updated_at = $3 WHERE id = $4`,
		string(status), failReason, time.Now().UTC(), docID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update document analysis %s", docID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: document %s", docID)
	}
	return nil
}

func (s *PostgresStore) UpdateDocumentDetection(ctx context.Context, docID string, lang, docType string, complexity model.ComplexityLevel, conf model.Confidence) error {
	// Empty values leave the existing column intact so partial detections
	// never erase earlier results.
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET
detected_language = CASE WHEN $1 = '' THEN detected_language ELSE $1 END,
detected_type = CASE WHEN $2 = '' THEN detected_type ELSE $2 END,
complexity = CASE WHEN $3 = '' THEN complexity ELSE $3 END,
ocr_confidence = CASE WHEN $4 = 0 THEN ocr_confidence ELSE $4 END,
language_confidence = CASE WHEN $5 = 0 THEN language_confidence ELSE $5 END,
classification_confidence = CASE WHEN $6 = 0 THEN classification_confidence ELSE $6 END,
updated_at = $7 WHERE id = $8`,
		lang, docType, string(complexity),
		conf.OCR, conf.Language, conf.Classification,
		time.Now().UTC(), docID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update document detection %s", docID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: document %s", docID)
	}
	return nil
}

func (s *PostgresStore) UpdateDocumentBilling(ctx context.Context, docID string, billablePages, lineTotal decimal.Decimal) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET billable_pages = $1, line_total = $2, updated_at = $3 WHERE id = $4`,
		billablePages.String(), lineTotal.String(), time.Now().UTC(), docID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update document billing %s", docID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: document %s", docID)
	}
	return nil
}

func (s *PostgresStore) UpdatePageWordCount(ctx context.Context, pageID string, wordCount int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pages SET word_count = $1 WHERE id = $2`, wordCount, pageID)
	if err != nil {
		return eris.Wrapf(err, "postgres: update page word count %s", pageID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: page %s", pageID)
	}
	return nil
}

func (s *PostgresStore) UpdatePageGroup(ctx context.Context, pageID, groupID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pages SET group_id = $1 WHERE id = $2`, groupID, pageID)
	if err != nil {
		return eris.Wrapf(err, "postgres: update page group %s", pageID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: page %s", pageID)
	}
	return nil
}

const selectGroup = `SELECT id, quote_id, name, document_type, complexity, certification_type, cert_quantity, cert_unit_price, deleted, assignments, created_at, updated_at FROM document_groups`

func (s *PostgresStore) CreateGroup(ctx context.Context, g *model.DocumentGroup) error {
	now := time.Now().UTC()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	g.UpdatedAt = now

	assignments, err := json.Marshal(g.Assignments)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal assignments")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO document_groups (id, quote_id, name, document_type, complexity, certification_type, cert_quantity, cert_unit_price, deleted, assignments, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		g.ID, g.QuoteID, g.Name, g.DocumentType, string(g.Complexity), g.CertificationType,
		g.CertQuantity, g.CertUnitPrice.String(), g.Deleted, assignments, g.CreatedAt, g.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: insert group %s", g.ID)
}

func (s *PostgresStore) GetGroups(ctx context.Context, quoteID string) ([]model.DocumentGroup, error) {
	rows, err := s.pool.Query(ctx, selectGroup+` WHERE quote_id = $1 ORDER BY created_at, id`, quoteID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get groups %s", quoteID)
	}
	defer rows.Close()

	var groups []model.DocumentGroup
	for rows.Next() {
		var g model.DocumentGroup
		var complexity string
		var assignments []byte
		if err := rows.Scan(&g.ID, &g.QuoteID, &g.Name, &g.DocumentType, &complexity,
			&g.CertificationType, &g.CertQuantity, decScan{&g.CertUnitPrice}, &g.Deleted,
			&assignments, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan group")
		}
		g.Complexity = model.ComplexityLevel(complexity)
		if len(assignments) > 0 {
			if err := json.Unmarshal(assignments, &g.Assignments); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal assignments")
			}
		}
		groups = append(groups, g)
	}
	return groups, eris.Wrap(rows.Err(), "postgres: group rows")
}

func (s *PostgresStore) UpdateGroup(ctx context.Context, g *model.DocumentGroup) error {
	assignments, err := json.Marshal(g.Assignments)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal assignments")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE document_groups SET name = $1, document_type = $2, complexity = $3, certification_type = $4,
cert_quantity = $5, cert_unit_price = $6, deleted = $7, assignments = $8, updated_at = $9 WHERE id = $10`,
		g.Name, g.DocumentType, string(g.Complexity), g.CertificationType,
		g.CertQuantity, g.CertUnitPrice.String(), g.Deleted, assignments, time.Now().UTC(), g.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update group %s", g.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: group %s", g.ID)
	}
	return nil
}

const selectReview = `SELECT id, quote_id, status, assigned_staff_id, trigger_reasons, priority, sla_deadline, notes, completed_by, completed_at, created_at, updated_at FROM hitl_reviews`

func (s *PostgresStore) CreateReviewIfAbsent(ctx context.Context, r *model.HITLReview) (bool, *model.HITLReview, error) {
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
		return false, nil, eris.Wrap(err, "postgres: marshal triggers")
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO hitl_reviews (id, quote_id, status, assigned_staff_id, trigger_reasons, priority, sla_deadline, notes, completed_by, completed_at, created_at, updated_at)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, '', NULL, $9, $10)
ON CONFLICT (quote_id) DO NOTHING`,
		r.ID, r.QuoteID, string(r.Status), r.AssignedStaffID, triggers, string(r.Priority),
		nullTime(r.SLADeadline), r.Notes, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return false, nil, eris.Wrapf(err, "postgres: insert review %s", r.ID)
	}
	if tag.RowsAffected() == 1 {
		return true, r, nil
	}
	existing, err := s.GetReviewByQuote(ctx, r.QuoteID)
	if err != nil {
		return false, nil, err
	}
	return false, existing, nil
}

func (s *PostgresStore) GetReview(ctx context.Context, id string) (*model.HITLReview, error) {
	r, err := scanReview(s.pool.QueryRow(ctx, selectReview+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: review %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get review %s", id)
	}
	return r, nil
}

func (s *PostgresStore) GetReviewByQuote(ctx context.Context, quoteID string) (*model.HITLReview, error) {
	r, err := scanReview(s.pool.QueryRow(ctx, selectReview+` WHERE quote_id = $1`, quoteID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: review for quote %s", quoteID)
		}
		return nil, eris.Wrapf(err, "postgres: get review for quote %s", quoteID)
	}
	return r, nil
}

func (s *PostgresStore) ListReviews(ctx context.Context, filter ReviewFilter) ([]model.HITLReview, error) {
	query := selectReview + ` WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.AssignedTo != "" {
		query += fmt.Sprintf(` AND assigned_staff_id = $%d`, argIdx)
		args = append(args, filter.AssignedTo)
		argIdx++
	}
	if filter.Unclaimed {
		query += ` AND (assigned_staff_id IS NULL OR assigned_staff_id = '')`
	}
	query += ` ORDER BY priority = 'urgent' DESC, priority = 'high' DESC, created_at`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reviews")
	}
	defer rows.Close()

	var reviews []model.HITLReview
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan review")
		}
		reviews = append(reviews, *r)
	}
	return reviews, eris.Wrap(rows.Err(), "postgres: review rows")
}

func (s *PostgresStore) UpdateReviewStatus(ctx context.Context, id string, status model.ReviewStatus, completedBy string) error {
	now := time.Now().UTC()
	var completedAt any
	if status.Terminal() || status == model.ReviewStatusApproved {
		completedAt = now
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE hitl_reviews SET status = $1, completed_by = $2, completed_at = $3, updated_at = $4 WHERE id = $5`,
		string(status), completedBy, completedAt, now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update review status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: review %s", id)
	}
	return nil
}

func (s *PostgresStore) UpdateReviewNotes(ctx context.Context, id string, notes string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE hitl_reviews SET notes = $1, updated_at = $2 WHERE id = $3`,
		notes, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update review notes %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: review %s", id)
	}
	return nil
}

// ClaimReview is the compare-and-set claim: it succeeds only when the review
// is currently unassigned. A false return with nil error means another staff
// member holds the claim.
func (s *PostgresStore) ClaimReview(ctx context.Context, id, staffID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE hitl_reviews SET assigned_staff_id = $1, updated_at = $2 WHERE id = $3 AND (assigned_staff_id IS NULL OR assigned_staff_id = '')`,
		staffID, time.Now().UTC(), id,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: claim review %s", id)
	}
	return tag.RowsAffected() == 1, nil
}

// ReassignReview moves the claim iff fromStaffID still holds it.
func (s *PostgresStore) ReassignReview(ctx context.Context, id, fromStaffID, toStaffID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE hitl_reviews SET assigned_staff_id = $1, updated_at = $2 WHERE id = $3 AND assigned_staff_id = $4`,
		toStaffID, time.Now().UTC(), id, fromStaffID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: reassign review %s", id)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) CreateStaff(ctx context.Context, u *model.StaffUser) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO staff (id, name, role) VALUES ($1, $2, $3)`,
		u.ID, u.Name, string(u.Role),
	)
	return eris.Wrapf(err, "postgres: insert staff %s", u.ID)
}

func (s *PostgresStore) GetStaff(ctx context.Context, id string) (*model.StaffUser, error) {
	var u model.StaffUser
	var role string
	err := s.pool.QueryRow(ctx, `SELECT id, name, role FROM staff WHERE id = $1`, id).
		Scan(&u.ID, &u.Name, &role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: staff %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get staff %s", id)
	}
	u.Role = model.StaffRole(role)
	return &u, nil
}

func (s *PostgresStore) AppendAudit(ctx context.Context, rec model.AuditRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_log (id, quote_id, review_id, staff_id, action, field, old_value, new_value, reason, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.QuoteID, rec.ReviewID, rec.StaffID, string(rec.Action),
		rec.Field, rec.OldValue, rec.NewValue, rec.Reason, rec.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: append audit %s", rec.ID)
}

func (s *PostgresStore) ListAudit(ctx context.Context, quoteID string) ([]model.AuditRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, quote_id, review_id, staff_id, action, field, old_value, new_value, reason, created_at
FROM audit_log WHERE quote_id = $1 ORDER BY created_at, id`, quoteID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list audit %s", quoteID)
	}
	defer rows.Close()

	var records []model.AuditRecord
	for rows.Next() {
		var rec model.AuditRecord
		var action string
		if err := rows.Scan(&rec.ID, &rec.QuoteID, &rec.ReviewID, &rec.StaffID, &action,
			&rec.Field, &rec.OldValue, &rec.NewValue, &rec.Reason, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan audit")
		}
		rec.Action = model.AuditAction(action)
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "postgres: audit rows")
}

func scanQuote(row pgx.Row) (*model.Quote, error) {
	var q model.Quote
	var turnaround, status string
	var billing, shipping []byte

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
	if len(billing) > 0 {
		q.BillingAddress = &model.Address{}
		if err := json.Unmarshal(billing, q.BillingAddress); err != nil {
			return nil, eris.Wrap(err, "unmarshal billing address")
		}
	}
	if len(shipping) > 0 {
		q.ShippingAddress = &model.Address{}
		if err := json.Unmarshal(shipping, q.ShippingAddress); err != nil {
			return nil, eris.Wrap(err, "unmarshal shipping address")
		}
	}
	return &q, nil
}

func scanReview(row pgx.Row) (*model.HITLReview, error) {
	var r model.HITLReview
	var status, priority string
	var assigned *string
	var triggers []byte
	var slaDeadline, completedAt *time.Time

	err := row.Scan(&r.ID, &r.QuoteID, &status, &assigned, &triggers, &priority,
		&slaDeadline, &r.Notes, &r.CompletedBy, &completedAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Status = model.ReviewStatus(status)
	r.Priority = model.ReviewPriority(priority)
	if assigned != nil {
		r.AssignedStaffID = *assigned
	}
	if slaDeadline != nil {
		r.SLADeadline = *slaDeadline
	}
	r.CompletedAt = completedAt
	if len(triggers) > 0 {
		if err := json.Unmarshal(triggers, &r.TriggerReasons); err != nil {
			return nil, eris.Wrap(err, "unmarshal trigger reasons")
		}
	}
	return &r, nil
}

func marshalAddress(a *model.Address) ([]byte, error) {
	if a == nil {
		return nil, nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, eris.Wrap(err, "marshal address")
	}
	return data, nil
}

// decScan scans a TEXT money column into a decimal.Decimal. Money columns
// are stored as exact decimal strings, never floats.
type decScan struct {
	d *decimal.Decimal
}

func (s decScan) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case nil:
		*s.d = decimal.Zero
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return eris.Errorf("decimal column has unexpected type %T", src)
	}
	if raw == "" {
		*s.d = decimal.Zero
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return eris.Wrapf(err, "parse decimal %q", raw)
	}
	*s.d = d
	return nil
}

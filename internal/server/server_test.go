package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingua-desk/quoteflow/internal/analysis"
	"github.com/lingua-desk/quoteflow/internal/model"
	"github.com/lingua-desk/quoteflow/internal/payment"
	"github.com/lingua-desk/quoteflow/internal/pricing"
	"github.com/lingua-desk/quoteflow/internal/store"
	"github.com/lingua-desk/quoteflow/internal/watchdog"
	"github.com/lingua-desk/quoteflow/internal/workflow"
)

type stubAnalysis struct {
	mu       sync.Mutex
	submits  []analysis.SubmitRequest
	statuses []model.PendingAnalysis
}

func (a *stubAnalysis) Submit(_ context.Context, req analysis.SubmitRequest) (*analysis.SubmitResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.submits = append(a.submits, req)
	return &analysis.SubmitResponse{JobID: "job-1", DocumentID: req.DocumentID, Status: "queued"}, nil
}

func (a *stubAnalysis) GetStatus(_ context.Context, _ string) ([]model.PendingAnalysis, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.PendingAnalysis, len(a.statuses))
	copy(out, a.statuses)
	return out, nil
}

func (a *stubAnalysis) setStatuses(statuses []model.PendingAnalysis) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.statuses = statuses
}

func (a *stubAnalysis) submitCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.submits)
}

type nopNotifier struct{}

func (nopNotifier) Send(context.Context, string, string, map[string]string) error { return nil }

type testEnv struct {
	store    *store.SQLiteStore
	service  *workflow.Service
	analysis *stubAnalysis
	server   *Server
	handler  http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	svc := workflow.NewService(st, nopNotifier{}, pricing.DefaultRates())
	stub := &stubAnalysis{}

	wcfg := watchdog.DefaultConfig()
	wcfg.Interval = time.Hour // tests drive completion via the immediate tick

	srv := New(Options{
		Store:    st,
		Service:  svc,
		Analysis: stub,
		Payment:  payment.StubGateway{},
		Notifier: nopNotifier{},
		Watchdog: wcfg,
	})
	t.Cleanup(srv.Close)

	return &testEnv{
		store:    st,
		service:  svc,
		analysis: stub,
		server:   srv,
		handler:  srv.Router(),
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, staff *model.StaffContext) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if staff != nil {
		req.Header.Set("X-Staff-ID", staff.StaffID)
		req.Header.Set("X-Staff-Role", string(staff.Role))
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (e *testEnv) seedQuote(t *testing.T, status model.QuoteStatus) *model.Quote {
	t.Helper()
	q := &model.Quote{
		ID:                 uuid.New().String(),
		CustomerRef:        "customer-1",
		SourceLanguage:     "es",
		TargetLanguage:     "en",
		LanguageMultiplier: decimal.NewFromInt(1),
		Turnaround:         model.TurnaroundStandard,
		DeliveryOption:     "digital",
		Status:             status,
	}
	require.NoError(t, e.store.CreateQuote(context.Background(), q))
	return q
}

func (e *testEnv) seedAnalyzedDocument(t *testing.T, quoteID string, words int) *model.Document {
	t.Helper()
	docID := uuid.New().String()
	doc := &model.Document{
		ID:             docID,
		QuoteID:        quoteID,
		Filename:       "diploma.pdf",
		PageCount:      1,
		Complexity:     model.ComplexityMedium,
		AnalysisStatus: model.AnalysisComplete,
		Pages: []model.Page{
			{ID: uuid.New().String(), DocumentID: docID, Number: 1, WordCount: words},
		},
	}
	require.NoError(t, e.store.CreateDocument(context.Background(), doc))
	return doc
}

func (e *testEnv) seedStaff(t *testing.T, id string, role model.StaffRole) model.StaffContext {
	t.Helper()
	u := &model.StaffUser{ID: id, Name: id, Role: role}
	require.NoError(t, e.store.CreateStaff(context.Background(), u))
	return u.Context()
}

func (e *testEnv) seedReview(t *testing.T, quoteID string) *model.HITLReview {
	t.Helper()
	r := &model.HITLReview{
		ID:             uuid.New().String(),
		QuoteID:        quoteID,
		TriggerReasons: []model.TriggerReason{model.TriggerLowOCRConfidence},
	}
	created, got, err := e.store.CreateReviewIfAbsent(context.Background(), r)
	require.NoError(t, err)
	require.True(t, created)
	return got
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestCreateQuote(t *testing.T) {
	e := newTestEnv(t)
	e.analysis.setStatuses([]model.PendingAnalysis{{DocumentID: "d", Status: model.AnalysisProcessing}})

	rec := e.do(t, http.MethodPost, "/v1/quotes", map[string]any{
		"customer_ref":    "acme",
		"source_language": "es",
		"target_language": "en",
		"documents": []map[string]any{
			{"filename": "passport.pdf", "storage_ref": "s3://bucket/passport.pdf", "page_count": 2},
		},
	}, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	quote := decode[model.Quote](t, rec)
	assert.Equal(t, "acme", quote.CustomerRef)
	assert.Equal(t, model.QuoteStatusDraft, quote.Status)

	docs, err := e.store.GetDocuments(context.Background(), quote.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, model.AnalysisPending, docs[0].AnalysisStatus)
	assert.Len(t, docs[0].Pages, 2)

	assert.Equal(t, 1, e.analysis.submitCount())
}

func TestCreateQuoteValidation(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/v1/quotes", map[string]any{
		"customer_ref": "acme",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/v1/quotes", map[string]any{
		"customer_ref":    "acme",
		"source_language": "es",
		"target_language": "en",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetQuoteNotFound(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/v1/quotes/"+uuid.New().String(), nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListQuotesFilter(t *testing.T) {
	e := newTestEnv(t)
	e.seedQuote(t, model.QuoteStatusDraft)
	e.seedQuote(t, model.QuoteStatusApproved)

	rec := e.do(t, http.MethodGet, "/v1/quotes/?status=approved", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.EqualValues(t, 1, body["count"])
}

func TestStaffRoutesRequireIdentity(t *testing.T) {
	e := newTestEnv(t)
	q := e.seedQuote(t, model.QuoteStatusDraft)

	rec := e.do(t, http.MethodPost, "/v1/quotes/"+q.ID+"/recalculate", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodGet, "/v1/reviews/", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRecalculateEndpoint(t *testing.T) {
	e := newTestEnv(t)
	staff := e.seedStaff(t, "staff-a", model.RoleReviewer)
	q := e.seedQuote(t, model.QuoteStatusDraft)
	e.seedAnalyzedDocument(t, q.ID, 500)

	rec := e.do(t, http.MethodPost, "/v1/quotes/"+q.ID+"/recalculate", nil, &staff)
	require.Equal(t, http.StatusOK, rec.Code)

	quote, err := e.store.GetQuote(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Equal(t, "170", quote.Total.String())
}

func TestSetTurnaroundEndpoint(t *testing.T) {
	e := newTestEnv(t)
	staff := e.seedStaff(t, "staff-a", model.RoleReviewer)
	q := e.seedQuote(t, model.QuoteStatusDraft)
	e.seedAnalyzedDocument(t, q.ID, 500)

	rec := e.do(t, http.MethodPost, "/v1/quotes/"+q.ID+"/turnaround", map[string]string{
		"turnaround":      "rush",
		"delivery_option": "digital",
	}, &staff)
	require.Equal(t, http.StatusOK, rec.Code)

	quote, err := e.store.GetQuote(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TurnaroundRush, quote.Turnaround)
	assert.Equal(t, "221", quote.Total.String())

	rec = e.do(t, http.MethodPost, "/v1/quotes/"+q.ID+"/turnaround", map[string]string{
		"turnaround": "overnight",
	}, &staff)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReviewClaimFlow(t *testing.T) {
	e := newTestEnv(t)
	alice := e.seedStaff(t, "alice", model.RoleReviewer)
	bob := e.seedStaff(t, "bob", model.RoleReviewer)
	admin := e.seedStaff(t, "carol", model.RoleAdmin)
	q := e.seedQuote(t, model.QuoteStatusHITLPending)
	review := e.seedReview(t, q.ID)

	rec := e.do(t, http.MethodPost, "/v1/reviews/"+review.ID+"/claim", nil, &alice)
	require.Equal(t, http.StatusOK, rec.Code)
	claimed := decode[model.HITLReview](t, rec)
	assert.Equal(t, "alice", claimed.AssignedStaffID)

	// second claimant conflicts
	rec = e.do(t, http.MethodPost, "/v1/reviews/"+review.ID+"/claim", nil, &bob)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// peer override is forbidden, admin override succeeds
	rec = e.do(t, http.MethodPost, "/v1/reviews/"+review.ID+"/override",
		map[string]string{"reason": "coverage"}, &bob)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodPost, "/v1/reviews/"+review.ID+"/override",
		map[string]string{"reason": "sla breach"}, &admin)
	require.Equal(t, http.StatusOK, rec.Code)
	overridden := decode[model.HITLReview](t, rec)
	assert.Equal(t, "carol", overridden.AssignedStaffID)

	rec = e.do(t, http.MethodPost, "/v1/reviews/"+review.ID+"/approve",
		map[string]string{"notes": "looks right"}, &admin)
	require.Equal(t, http.StatusOK, rec.Code)

	quote, err := e.store.GetQuote(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QuoteStatusApproved, quote.Status)
}

func TestMarkPaidEndpoint(t *testing.T) {
	e := newTestEnv(t)
	q := e.seedQuote(t, model.QuoteStatusAwaitingPayment)
	require.NoError(t, e.store.UpdateQuoteTotals(context.Background(), q.ID, store.QuoteTotals{
		Subtotal:   decimal.RequireFromString("170"),
		Total:      decimal.RequireFromString("170"),
		BalanceDue: decimal.RequireFromString("170"),
	}))

	rec := e.do(t, http.MethodPost, "/v1/quotes/"+q.ID+"/payments",
		map[string]string{"amount": "70"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	quote := decode[model.Quote](t, rec)
	assert.Equal(t, model.QuoteStatusAwaitingPayment, quote.Status)

	rec = e.do(t, http.MethodPost, "/v1/quotes/"+q.ID+"/payments",
		map[string]string{"amount": "not-money"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/v1/quotes/"+q.ID+"/payments",
		map[string]string{"amount": "100"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	quote = decode[model.Quote](t, rec)
	assert.Equal(t, model.QuoteStatusPaid, quote.Status)
}

func TestCheckoutEndpoint(t *testing.T) {
	e := newTestEnv(t)
	q := e.seedQuote(t, model.QuoteStatusDraft)

	rec := e.do(t, http.MethodPost, "/v1/quotes/"+q.ID+"/checkout", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	paying := e.seedQuote(t, model.QuoteStatusAwaitingPayment)
	require.NoError(t, e.store.UpdateQuoteTotals(context.Background(), paying.ID, store.QuoteTotals{
		Total:      decimal.RequireFromString("170"),
		BalanceDue: decimal.RequireFromString("170"),
	}))
	rec = e.do(t, http.MethodPost, "/v1/quotes/"+paying.ID+"/checkout", nil, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	session := decode[payment.CheckoutSession](t, rec)
	assert.NotEmpty(t, session.URL)
}

func TestGroupEndpoints(t *testing.T) {
	e := newTestEnv(t)
	staff := e.seedStaff(t, "staff-a", model.RoleReviewer)
	q := e.seedQuote(t, model.QuoteStatusDraft)
	doc := e.seedAnalyzedDocument(t, q.ID, 500)
	base := "/v1/quotes/" + q.ID + "/groups"

	rec := e.do(t, http.MethodPost, base+"/", map[string]any{
		"name":            "Birth certificates",
		"document_type":   "birth_certificate",
		"cert_quantity":   2,
		"cert_unit_price": "25.00",
	}, &staff)
	require.Equal(t, http.StatusCreated, rec.Code)
	group := decode[model.DocumentGroup](t, rec)
	assert.Equal(t, 2, group.CertQuantity)

	rec = e.do(t, http.MethodPost, base+"/assign", map[string]string{
		"group_id": group.ID,
		"page_id":  doc.Pages[0].ID,
	}, &staff)
	require.Equal(t, http.StatusOK, rec.Code)

	// double assignment conflicts
	rec = e.do(t, http.MethodPost, base+"/assign", map[string]string{
		"group_id": group.ID,
		"page_id":  doc.Pages[0].ID,
	}, &staff)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// certification lines priced in: 170 + 2 x 25
	quote, err := e.store.GetQuote(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Equal(t, "220", quote.Total.String())

	rec = e.do(t, http.MethodDelete, base+"/"+group.ID, nil, &staff)
	require.Equal(t, http.StatusOK, rec.Code)

	quote, err = e.store.GetQuote(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Equal(t, "170", quote.Total.String())

	// deleting twice conflicts
	rec = e.do(t, http.MethodDelete, base+"/"+group.ID, nil, &staff)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAnalysisWebhook(t *testing.T) {
	e := newTestEnv(t)
	q := e.seedQuote(t, model.QuoteStatusDraft)
	docID := uuid.New().String()
	doc := &model.Document{
		ID:             docID,
		QuoteID:        q.ID,
		Filename:       "passport.pdf",
		PageCount:      1,
		Complexity:     model.ComplexityMedium,
		AnalysisStatus: model.AnalysisProcessing,
		Pages: []model.Page{
			{ID: uuid.New().String(), DocumentID: docID, Number: 1},
		},
	}
	require.NoError(t, e.store.CreateDocument(context.Background(), doc))

	e.analysis.setStatuses([]model.PendingAnalysis{{
		DocumentID: docID,
		Status:     model.AnalysisComplete,
		Confidence: model.Confidence{OCR: 0.95, Language: 0.92, Classification: 0.9},
	}})

	rec := e.do(t, http.MethodPost, "/v1/webhooks/analysis", map[string]any{
		"quote_id":                  q.ID,
		"document_id":               docID,
		"status":                    "complete",
		"detected_language":         "es",
		"detected_type":             "passport",
		"complexity":                "medium",
		"ocr_confidence":            0.95,
		"language_confidence":       0.92,
		"classification_confidence": 0.9,
		"page_word_counts": []map[string]int{
			{"page_number": 1, "word_count": 500},
		},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	docs, err := e.store.GetDocuments(context.Background(), q.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, model.AnalysisComplete, docs[0].AnalysisStatus)
	assert.Equal(t, "es", docs[0].DetectedLanguage)
	assert.Equal(t, 500, docs[0].Pages[0].WordCount)

	// the restarted watchdog finalizes pricing asynchronously
	require.Eventually(t, func() bool {
		quote, err := e.store.GetQuote(context.Background(), q.ID)
		return err == nil && quote.Total.Equal(decimal.RequireFromString("170"))
	}, 5*time.Second, 20*time.Millisecond)
}

func TestAnalysisWebhookRejectsBadPayload(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/v1/webhooks/analysis", map[string]string{
		"quote_id": "q-1",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/v1/webhooks/analysis", map[string]string{
		"quote_id":    uuid.New().String(),
		"document_id": uuid.New().String(),
		"status":      "complete",
	}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.seedQuote(t, model.QuoteStatusApproved)

	rec := e.do(t, http.MethodGet, "/v1/quotes/export", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "spreadsheetml")
	assert.NotZero(t, rec.Body.Len())
}

func TestTurnaroundAvailabilityEndpoint(t *testing.T) {
	e := newTestEnv(t)
	q := e.seedQuote(t, model.QuoteStatusDraft)
	e.seedAnalyzedDocument(t, q.ID, 500)

	rec := e.do(t, http.MethodGet, "/v1/quotes/"+q.ID+"/turnaround", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[struct {
		QuoteID string `json:"quote_id"`
		Options map[string]struct {
			Available    bool   `json:"available"`
			BusinessDays int    `json:"business_days"`
			DeliveryDate string `json:"delivery_date"`
		} `json:"options"`
	}](t, rec)

	require.Equal(t, q.ID, body.QuoteID)
	std, ok := body.Options["standard"]
	require.True(t, ok)
	assert.True(t, std.Available)
	assert.GreaterOrEqual(t, std.BusinessDays, 2)
	assert.NotEmpty(t, std.DeliveryDate)

	// No eligibility table is configured, so same-day is never offered.
	sameDay, ok := body.Options["same_day"]
	require.True(t, ok)
	assert.False(t, sameDay.Available)

	// The midnight cutoff default means rush is never bookable either.
	rush, ok := body.Options["rush"]
	require.True(t, ok)
	assert.False(t, rush.Available)
}

func TestTurnaroundAvailabilityUnknownQuote(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/v1/quotes/"+uuid.New().String()+"/turnaround", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

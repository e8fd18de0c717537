package analysis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingua-desk/quoteflow/internal/model"
	"github.com/lingua-desk/quoteflow/internal/resilience"
)

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}
}

func TestSubmit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/analyses", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"job_id":"job-1","document_id":"doc-1","status":"pending"}`))
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, APIKey: "test-key", Retry: fastRetry()})
	resp, err := c.Submit(context.Background(), SubmitRequest{
		QuoteID:    "q-1",
		DocumentID: "doc-1",
		StorageRef: "s3://bucket/doc-1.pdf",
		Filename:   "birth-certificate.pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, "job-1", resp.JobID)
}

func TestSubmitRequiresIDs(t *testing.T) {
	c := NewClient(Options{BaseURL: "http://unused"})
	_, err := c.Submit(context.Background(), SubmitRequest{DocumentID: "doc-1"})
	require.Error(t, err)
}

func TestGetStatusParsesAndClamps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/quotes/q-1/analyses", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"quote_id": "q-1",
			"documents": [
				{"document_id":"d1","status":"complete","ocr_confidence":0.92,"language_confidence":1.4,"classification_confidence":-0.1},
				{"document_id":"d2","status":"weird"}
			]
		}`))
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Retry: fastRetry()})
	results, err := c.GetStatus(context.Background(), "q-1")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, model.AnalysisComplete, results[0].Status)
	assert.Equal(t, 0.92, results[0].Confidence.OCR)
	assert.Equal(t, 1.0, results[0].Confidence.Language)
	assert.Equal(t, 0.0, results[0].Confidence.Classification)

	// unrecognized statuses are treated as still processing
	assert.Equal(t, model.AnalysisProcessing, results[1].Status)
}

func TestGetStatusRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"quote_id":"q-1","documents":[]}`))
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Retry: fastRetry()})
	results, err := c.GetStatus(context.Background(), "q-1")
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetStatusDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Retry: fastRetry()})
	_, err := c.GetStatus(context.Background(), "q-1")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestParseWebhook(t *testing.T) {
	body := `{
		"quote_id": "q-1",
		"document_id": "d1",
		"status": "complete",
		"detected_language": "es",
		"detected_type": "birth_certificate",
		"complexity": "medium",
		"ocr_confidence": 0.95,
		"language_confidence": 0.9,
		"classification_confidence": 0.85,
		"page_word_counts": [{"page_number":1,"word_count":320}]
	}`
	res, err := ParseWebhook(strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, model.AnalysisComplete, res.AnalysisStatus())
	assert.Equal(t, model.ComplexityMedium, res.ComplexityLevel())
	assert.Equal(t, 0.95, res.ConfidenceScores().OCR)
	require.Len(t, res.PageWordCounts, 1)
	assert.Equal(t, 320, res.PageWordCounts[0].WordCount)
}

func TestParseWebhookRejectsBadPayloads(t *testing.T) {
	cases := map[string]string{
		"not json":       `{{`,
		"missing ids":    `{"status":"complete"}`,
		"unknown status": `{"quote_id":"q","document_id":"d","status":"exploded"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseWebhook(strings.NewReader(body))
			require.Error(t, err)
		})
	}
}

func TestComplexityLevelDefaultsToMedium(t *testing.T) {
	r := &Result{Complexity: "unknown"}
	assert.Equal(t, model.ComplexityMedium, r.ComplexityLevel())
}

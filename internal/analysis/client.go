// Package analysis talks to the external document-analysis pipeline. The
// pipeline runs OCR, language detection, and document classification
// asynchronously; this client submits documents and polls per-quote status.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lingua-desk/quoteflow/internal/model"
	"github.com/lingua-desk/quoteflow/internal/resilience"
)

// Options configures the pipeline client.
type Options struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// RequestsPerSecond throttles calls to the pipeline. Zero disables
	// throttling.
	RequestsPerSecond float64
	Burst             int

	Retry resilience.RetryConfig
}

// Client is an HTTP client for the analysis pipeline.
type Client struct {
	http    *http.Client
	opts    Options
	limiter *rate.Limiter
}

// NewClient creates a pipeline client with sane defaults.
func NewClient(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Burst == 0 {
		opts.Burst = 1
	}
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst)
	}
	return &Client{
		http:    &http.Client{Timeout: opts.Timeout},
		opts:    opts,
		limiter: limiter,
	}
}

// SubmitRequest asks the pipeline to analyze one uploaded document.
type SubmitRequest struct {
	QuoteID    string `json:"quote_id"`
	DocumentID string `json:"document_id"`
	StorageRef string `json:"storage_ref"`
	Filename   string `json:"filename"`
}

// SubmitResponse is the pipeline's acknowledgment of a submission.
type SubmitResponse struct {
	JobID      string `json:"job_id"`
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
}

// Submit enqueues a document for asynchronous analysis.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	if req.DocumentID == "" || req.QuoteID == "" {
		return nil, eris.New("analysis: submit requires quote and document ids")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: marshal submit request")
	}

	cfg := c.opts.Retry
	cfg.OnRetry = resilience.RetryLogger("analysis", "submit")
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (*SubmitResponse, error) {
		var out SubmitResponse
		if err := c.doJSON(ctx, http.MethodPost, "/v1/analyses", bytes.NewReader(body), &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
}

// statusPayload is the wire shape of the per-quote status endpoint.
type statusPayload struct {
	QuoteID   string `json:"quote_id"`
	Documents []struct {
		DocumentID     string  `json:"document_id"`
		Status         string  `json:"status"`
		OCRConfidence  float64 `json:"ocr_confidence"`
		LangConfidence float64 `json:"language_confidence"`
		TypeConfidence float64 `json:"classification_confidence"`
	} `json:"documents"`
}

// GetStatus returns the analysis state of every document on a quote. It is
// the status source the review watchdog polls.
func (c *Client) GetStatus(ctx context.Context, quoteID string) ([]model.PendingAnalysis, error) {
	if quoteID == "" {
		return nil, eris.New("analysis: status requires a quote id")
	}

	cfg := c.opts.Retry
	cfg.OnRetry = resilience.RetryLogger("analysis", "get_status")
	payload, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*statusPayload, error) {
		var out statusPayload
		path := fmt.Sprintf("/v1/quotes/%s/analyses", quoteID)
		if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return nil, err
	}

	results := make([]model.PendingAnalysis, 0, len(payload.Documents))
	for _, d := range payload.Documents {
		status, ok := parseStatus(d.Status)
		if !ok {
			zap.L().Warn("analysis: unknown status from pipeline, treating as processing",
				zap.String("document_id", d.DocumentID),
				zap.String("status", d.Status),
			)
			status = model.AnalysisProcessing
		}
		results = append(results, model.PendingAnalysis{
			DocumentID: d.DocumentID,
			Status:     status,
			Confidence: model.Confidence{
				OCR:            clampScore(d.OCRConfidence),
				Language:       clampScore(d.LangConfidence),
				Classification: clampScore(d.TypeConfidence),
			},
		})
	}
	return results, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body io.Reader, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "analysis: rate limiter wait")
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.opts.BaseURL+path, body)
	if err != nil {
		return eris.Wrap(err, "analysis: build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "analysis: request failed"), 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := eris.Errorf("analysis: %s %s returned %d: %s", method, path, resp.StatusCode, string(data))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return eris.Wrap(err, "analysis: decode response")
	}
	return nil
}

func parseStatus(s string) (model.AnalysisStatus, bool) {
	switch model.AnalysisStatus(s) {
	case model.AnalysisPending, model.AnalysisProcessing, model.AnalysisComplete, model.AnalysisFailed:
		return model.AnalysisStatus(s), true
	}
	return "", false
}

// clampScore bounds a confidence score to [0, 1]. Out-of-range values from
// the pipeline are clamped rather than rejected so a single bad score does
// not stall the quote.
func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

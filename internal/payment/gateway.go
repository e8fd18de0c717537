// Package payment integrates the external payment provider. The platform
// only needs two operations: create a hosted checkout session for a quote,
// and create a shareable payment link. Fee math and capture mechanics stay
// on the provider side.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lingua-desk/quoteflow/internal/resilience"
)

// CheckoutRequest describes the charge for one quote.
type CheckoutRequest struct {
	QuoteID     string          `json:"quote_id"`
	CustomerRef string          `json:"customer_ref"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description,omitempty"`
}

// CheckoutSession is the provider's hosted payment session.
type CheckoutSession struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// Gateway is the payment provider collaborator.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	CreatePaymentLink(ctx context.Context, req CheckoutRequest) (string, error)
}

// HTTPGateway implements Gateway against the provider's REST API.
type HTTPGateway struct {
	http    *http.Client
	baseURL string
	apiKey  string
	retry   resilience.RetryConfig
}

// Options configures the HTTP gateway.
type Options struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Retry   resilience.RetryConfig
}

// NewHTTPGateway creates a provider-backed gateway.
func NewHTTPGateway(opts Options) *HTTPGateway {
	if opts.Timeout == 0 {
		opts.Timeout = 20 * time.Second
	}
	return &HTTPGateway{
		http:    &http.Client{Timeout: opts.Timeout},
		baseURL: opts.BaseURL,
		apiKey:  opts.APIKey,
		retry:   opts.Retry,
	}
}

func validate(req CheckoutRequest) error {
	if req.QuoteID == "" {
		return eris.New("payment: quote id is required")
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return eris.Errorf("payment: amount must be positive, got %s", req.Amount)
	}
	if req.Currency == "" {
		return eris.New("payment: currency is required")
	}
	return nil
}

// CreateCheckoutSession opens a hosted checkout session for the quote total.
func (g *HTTPGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	cfg := g.retry
	cfg.OnRetry = resilience.RetryLogger("payment", "create_checkout_session")
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (*CheckoutSession, error) {
		var out CheckoutSession
		if err := g.post(ctx, "/v1/checkout/sessions", req, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
}

// CreatePaymentLink returns a shareable payment URL for the quote total.
func (g *HTTPGateway) CreatePaymentLink(ctx context.Context, req CheckoutRequest) (string, error) {
	if err := validate(req); err != nil {
		return "", err
	}
	cfg := g.retry
	cfg.OnRetry = resilience.RetryLogger("payment", "create_payment_link")
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (string, error) {
		var out struct {
			URL string `json:"url"`
		}
		if err := g.post(ctx, "/v1/payment_links", req, &out); err != nil {
			return "", err
		}
		return out.URL, nil
	})
}

func (g *HTTPGateway) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return eris.Wrap(err, "payment: marshal request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "payment: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "payment: request failed"), 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		err := eris.Errorf("payment: %s returned %d: %s", path, resp.StatusCode, string(data))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return eris.Wrap(err, "payment: decode response")
	}
	return nil
}

// StubGateway logs requests and returns placeholder URLs. Used in local
// development when no provider credentials are configured.
type StubGateway struct{}

// CreateCheckoutSession returns a placeholder session keyed on the quote id.
func (StubGateway) CreateCheckoutSession(_ context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	zap.L().Info("stub checkout session",
		zap.String("quote_id", req.QuoteID),
		zap.String("amount", req.Amount.StringFixed(2)),
	)
	return &CheckoutSession{
		SessionID: "stub-" + req.QuoteID,
		URL:       "https://pay.example.invalid/checkout/" + req.QuoteID,
	}, nil
}

// CreatePaymentLink returns a placeholder link keyed on the quote id.
func (StubGateway) CreatePaymentLink(_ context.Context, req CheckoutRequest) (string, error) {
	if err := validate(req); err != nil {
		return "", err
	}
	return "https://pay.example.invalid/link/" + req.QuoteID, nil
}

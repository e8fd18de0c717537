package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingua-desk/quoteflow/internal/resilience"
)

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}
}

func checkoutReq() CheckoutRequest {
	return CheckoutRequest{
		QuoteID:     "q-1",
		CustomerRef: "customer-1",
		Amount:      decimal.RequireFromString("170.00"),
		Currency:    "USD",
	}
}

func TestCreateCheckoutSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		var req CheckoutRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "q-1", req.QuoteID)
		_, _ = w.Write([]byte(`{"session_id":"cs_123","url":"https://pay.example.com/cs_123"}`))
	}))
	defer srv.Close()

	g := NewHTTPGateway(Options{BaseURL: srv.URL, Retry: fastRetry()})
	sess, err := g.CreateCheckoutSession(context.Background(), checkoutReq())
	require.NoError(t, err)
	assert.Equal(t, "cs_123", sess.SessionID)
	assert.Equal(t, "https://pay.example.com/cs_123", sess.URL)
}

func TestCreatePaymentLinkRetriesOutage(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"url":"https://pay.example.com/link_9"}`))
	}))
	defer srv.Close()

	g := NewHTTPGateway(Options{BaseURL: srv.URL, Retry: fastRetry()})
	url, err := g.CreatePaymentLink(context.Background(), checkoutReq())
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example.com/link_9", url)
	assert.Equal(t, int32(2), calls.Load())
}

func TestValidateRejectsBadRequests(t *testing.T) {
	g := NewHTTPGateway(Options{BaseURL: "http://unused"})

	req := checkoutReq()
	req.QuoteID = ""
	_, err := g.CreateCheckoutSession(context.Background(), req)
	require.Error(t, err)

	req = checkoutReq()
	req.Amount = decimal.Zero
	_, err = g.CreateCheckoutSession(context.Background(), req)
	require.Error(t, err)

	req = checkoutReq()
	req.Currency = ""
	_, err = g.CreatePaymentLink(context.Background(), req)
	require.Error(t, err)
}

func TestStubGateway(t *testing.T) {
	var g StubGateway
	sess, err := g.CreateCheckoutSession(context.Background(), checkoutReq())
	require.NoError(t, err)
	assert.Contains(t, sess.URL, "q-1")

	url, err := g.CreatePaymentLink(context.Background(), checkoutReq())
	require.NoError(t, err)
	assert.Contains(t, url, "q-1")

	bad := checkoutReq()
	bad.Amount = decimal.NewFromInt(-5)
	_, err = g.CreateCheckoutSession(context.Background(), bad)
	require.Error(t, err)
}

package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

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

func TestHTTPNotifierSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		var p sendPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.Equal(t, "quote_ready", p.Template)
		assert.Equal(t, "customer-42", p.Recipient)
		assert.Equal(t, "170.00", p.Vars["total"])
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewHTTPNotifier(Options{BaseURL: srv.URL, Retry: fastRetry()})
	err := n.Send(context.Background(), "quote_ready", "customer-42", map[string]string{"total": "170.00"})
	require.NoError(t, err)
}

func TestHTTPNotifierRetriesGatewayOutage(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewHTTPNotifier(Options{BaseURL: srv.URL, Retry: fastRetry()})
	err := n.Send(context.Background(), "quote_in_review", "customer-1", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPNotifierRejectsBadRequestWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewHTTPNotifier(Options{BaseURL: srv.URL, Retry: fastRetry()})
	err := n.Send(context.Background(), "quote_ready", "customer-1", nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPNotifierValidatesInput(t *testing.T) {
	n := NewHTTPNotifier(Options{BaseURL: "http://unused"})
	require.Error(t, n.Send(context.Background(), "", "customer-1", nil))
	require.Error(t, n.Send(context.Background(), "quote_ready", "", nil))
}

func TestLogNotifierAlwaysSucceeds(t *testing.T) {
	var n LogNotifier
	require.NoError(t, n.Send(context.Background(), "quote_ready", "customer-1", nil))
}

// Package notify delivers customer-facing notifications (quote ready, quote
// under review, payment received) through an external messaging gateway.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lingua-desk/quoteflow/internal/resilience"
)

// HTTPNotifier posts templated notifications to the messaging gateway.
type HTTPNotifier struct {
	http    *http.Client
	baseURL string
	apiKey  string
	retry   resilience.RetryConfig
}

// Options configures the HTTP notifier.
type Options struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Retry   resilience.RetryConfig
}

// NewHTTPNotifier creates a gateway-backed notifier.
func NewHTTPNotifier(opts Options) *HTTPNotifier {
	if opts.Timeout == 0 {
		opts.Timeout = 15 * time.Second
	}
	return &HTTPNotifier{
		http:    &http.Client{Timeout: opts.Timeout},
		baseURL: opts.BaseURL,
		apiKey:  opts.APIKey,
		retry:   opts.Retry,
	}
}

type sendPayload struct {
	Template  string            `json:"template"`
	Recipient string            `json:"recipient"`
	Vars      map[string]string `json:"vars,omitempty"`
}

// Send delivers one notification. Callers treat failures as non-fatal.
func (n *HTTPNotifier) Send(ctx context.Context, template, recipient string, vars map[string]string) error {
	if template == "" || recipient == "" {
		return eris.New("notify: template and recipient are required")
	}
	body, err := json.Marshal(sendPayload{Template: template, Recipient: recipient, Vars: vars})
	if err != nil {
		return eris.Wrap(err, "notify: marshal payload")
	}

	cfg := n.retry
	cfg.OnRetry = resilience.RetryLogger("notify", template)
	return resilience.Do(ctx, cfg, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/v1/messages", bytes.NewReader(body))
		if err != nil {
			return eris.Wrap(err, "notify: build request")
		}
		req.Header.Set("Content-Type", "application/json")
		if n.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+n.apiKey)
		}

		resp, err := n.http.Do(req)
		if err != nil {
			return resilience.NewTransientError(eris.Wrap(err, "notify: send failed"), 0)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			err := eris.Errorf("notify: gateway returned %d: %s", resp.StatusCode, string(data))
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return resilience.NewTransientError(err, resp.StatusCode)
			}
			return err
		}
		return nil
	})
}

// LogNotifier logs notifications instead of sending them. Used in local
// development and as the fallback when no gateway is configured.
type LogNotifier struct{}

// Send logs the notification at info level and always succeeds.
func (LogNotifier) Send(_ context.Context, template, recipient string, vars map[string]string) error {
	zap.L().Info("notification (log only)",
		zap.String("template", template),
		zap.String("recipient", recipient),
		zap.Any("vars", vars),
	)
	return nil
}

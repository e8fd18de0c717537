package sla

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertReviewOverdue AlertType = "review_overdue"
	AlertQueueDepth    AlertType = "queue_depth"
	AlertUrgentBacklog AlertType = "urgent_backlog"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Thresholds configure when queue conditions raise alerts.
type Thresholds struct {
	// MaxQueueDepth is the open review count above which the queue alert
	// fires. Zero disables the check.
	MaxQueueDepth int
	// MaxUrgent is the urgent-priority backlog limit. Zero disables.
	MaxUrgent int
}

// Alerter evaluates a Snapshot against thresholds and sends alerts via
// webhook when they are breached.
type Alerter struct {
	webhookURL string
	thresholds Thresholds
	client     *http.Client
}

// NewAlerter creates an Alerter. An empty webhook URL means alerts are
// logged but not delivered.
func NewAlerter(webhookURL string, thresholds Thresholds) *Alerter {
	return &Alerter{
		webhookURL: webhookURL,
		thresholds: thresholds,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if snap.ReviewsOverdue > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertReviewOverdue,
			Severity: "high",
			Message:  fmt.Sprintf("%d open reviews past their SLA deadline", snap.ReviewsOverdue),
			Details: map[string]any{
				"overdue":        snap.ReviewsOverdue,
				"oldest_overdue": snap.OldestOverdue.String(),
			},
			Timestamp: now,
		})
	}

	open := snap.ReviewsPending + snap.ReviewsInReview
	if a.thresholds.MaxQueueDepth > 0 && open > a.thresholds.MaxQueueDepth {
		alerts = append(alerts, Alert{
			Type:     AlertQueueDepth,
			Severity: "medium",
			Message:  fmt.Sprintf("review queue depth %d exceeds limit %d", open, a.thresholds.MaxQueueDepth),
			Details: map[string]any{
				"pending":   snap.ReviewsPending,
				"in_review": snap.ReviewsInReview,
			},
			Timestamp: now,
		})
	}

	if a.thresholds.MaxUrgent > 0 && snap.ReviewsUrgent > a.thresholds.MaxUrgent {
		alerts = append(alerts, Alert{
			Type:     AlertUrgentBacklog,
			Severity: "high",
			Message:   fmt.Sprintf("%d urgent reviews waiting (limit %d)", snap.ReviewsUrgent, a.thresholds.MaxUrgent),
			Details:   map[string]any{"urgent": snap.ReviewsUrgent},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the webhook and returns how many succeeded.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	sent := 0
	for _, alert := range alerts {
		if err := a.send(ctx, alert); err != nil {
			zap.L().Error("sla: alert delivery failed",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		sent++
	}
	return sent
}

func (a *Alerter) send(ctx context.Context, alert Alert) error {
	if a.webhookURL == "" {
		zap.L().Warn("sla alert",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
			zap.String("message", alert.Message),
		)
		return nil
	}

	body, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "sla: marshal alert")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.webhookURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "sla: build alert request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "sla: post alert")
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= 300 {
		return eris.Errorf("sla: alert webhook returned %d", resp.StatusCode)
	}
	return nil
}

// Package watchdog polls the external analysis pipeline with a hard attempt
// cap and escalates stuck or suspicious quotes into human review. The poll
// loop is an explicit state machine (Idle -> Polling -> Stopped) advanced by
// Tick, so the cap and cancellation logic test without real timers.
package watchdog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lingua-desk/quoteflow/internal/model"
	"github.com/lingua-desk/quoteflow/internal/store"
	"github.com/lingua-desk/quoteflow/internal/workflow"
)

// State is the poller lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StatePolling State = "polling"
	StateStopped State = "stopped"
)

// StatusSource reads analysis status from the external pipeline.
type StatusSource interface {
	GetStatus(ctx context.Context, quoteID string) ([]model.PendingAnalysis, error)
}

// Outcome reports what a Tick did.
type Outcome string

const (
	OutcomeWaiting   Outcome = "waiting"   // still processing, under the cap
	OutcomeComplete  Outcome = "complete"  // analysis finished, handed to pricing
	OutcomeEscalated Outcome = "escalated" // review opened (trigger or timeout)
	OutcomeStopped   Outcome = "stopped"   // poller no longer active
)

// Config controls polling cadence and limits.
type Config struct {
	Interval    time.Duration
	MaxAttempts int
	Triggers    TriggerConfig
}

// DefaultConfig returns the default watchdog configuration: 10s interval,
// 9 attempts (about 90 seconds wall-clock).
func DefaultConfig() Config {
	return Config{
		Interval:    10 * time.Second,
		MaxAttempts: 9,
		Triggers:    DefaultTriggerConfig(),
	}
}

// Watchdog supervises analysis polling for one quote.
type Watchdog struct {
	cfg      Config
	source   StatusSource
	store    store.Store
	service  *workflow.Service
	notifier workflow.Notifier

	mu      sync.Mutex
	state   State
	attempt int
	quoteID string
}

// New builds a watchdog for one quote.
func New(cfg Config, src StatusSource, st store.Store, svc *workflow.Service, notifier workflow.Notifier, quoteID string) *Watchdog {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &Watchdog{
		cfg:      cfg,
		source:   src,
		store:    st,
		service:  svc,
		notifier: notifier,
		state:    StateIdle,
		quoteID:  quoteID,
	}
}

// State returns the current poller state.
func (w *Watchdog) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Attempts returns how many polls have run.
func (w *Watchdog) Attempts() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.attempt
}

// Start moves the poller to Polling. Starting an already-polling watchdog is
// rejected; a poll cycle must never overlap another for the same quote.
func (w *Watchdog) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.state {
	case StatePolling:
		return eris.Errorf("watchdog: quote %s already polling", w.quoteID)
	case StateStopped:
		return eris.Errorf("watchdog: quote %s poller is stopped", w.quoteID)
	}
	w.state = StatePolling
	w.attempt = 0
	return nil
}

// Stop cancels polling. A stopped watchdog fires no further side effects.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = StateStopped
}

// beginTick atomically checks state and increments the attempt counter.
func (w *Watchdog) beginTick() (int, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StatePolling {
		return 0, false
	}
	w.attempt++
	return w.attempt, true
}

// Tick runs one poll attempt and advances the state machine. Callers drive it
// from a ticker in production (see Run) or directly in tests.
func (w *Watchdog) Tick(ctx context.Context) (Outcome, error) {
	attempt, ok := w.beginTick()
	if !ok {
		return OutcomeStopped, nil
	}

	results, err := w.source.GetStatus(ctx, w.quoteID)
	if err != nil {
		// Transport failures burn the attempt but do not escalate by
		// themselves; only the cap does.
		zap.L().Warn("analysis status fetch failed",
			zap.String("quote_id", w.quoteID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt >= w.cfg.MaxAttempts {
			return w.escalateTimeout(ctx, results)
		}
		return OutcomeWaiting, nil
	}

	if !anyProcessing(results) {
		w.Stop()
		return w.handleComplete(ctx, results)
	}

	if attempt >= w.cfg.MaxAttempts {
		return w.escalateTimeout(ctx, results)
	}
	return OutcomeWaiting, nil
}

// Run drives Tick on the configured interval until the poller stops or the
// context ends. Teardown cancels the ticker; no zombie timers mutate state
// afterwards.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-ticker.C:
			outcome, err := w.Tick(ctx)
			if err != nil {
				zap.L().Error("watchdog tick failed",
					zap.String("quote_id", w.quoteID),
					zap.Error(err),
				)
			}
			if outcome != OutcomeWaiting {
				return
			}
		}
	}
}

func anyProcessing(results []model.PendingAnalysis) bool {
	for _, r := range results {
		if r.Status == model.AnalysisProcessing || r.Status == model.AnalysisPending {
			return true
		}
	}
	return false
}

// handleComplete evaluates review triggers on finished analysis; when none
// fire, pricing is recalculated and the quote proceeds.
func (w *Watchdog) handleComplete(ctx context.Context, results []model.PendingAnalysis) (Outcome, error) {
	quote, err := w.store.GetQuote(ctx, w.quoteID)
	if err != nil {
		return OutcomeStopped, eris.Wrapf(err, "watchdog: load quote %s", w.quoteID)
	}
	docs, err := w.store.GetDocuments(ctx, w.quoteID)
	if err != nil {
		return OutcomeStopped, eris.Wrapf(err, "watchdog: load documents %s", w.quoteID)
	}
	totalPages := 0
	for _, d := range docs {
		totalPages += d.PageCount
	}

	reasons := Evaluate(w.cfg.Triggers, results, quote.Total, totalPages, false)
	if len(reasons) > 0 {
		return w.openReview(ctx, reasons)
	}

	if _, _, err := w.service.Recalculate(ctx, w.quoteID); err != nil {
		return OutcomeStopped, eris.Wrapf(err, "watchdog: price quote %s", w.quoteID)
	}
	return OutcomeComplete, nil
}

// escalateTimeout handles the attempt cap: mark stuck documents failed, open
// the review, move the quote to hitl_pending, notify, stop.
func (w *Watchdog) escalateTimeout(ctx context.Context, results []model.PendingAnalysis) (Outcome, error) {
	w.Stop()

	// A failed PATCH here must not block the review creation that follows.
	for _, r := range results {
		if r.Status != model.AnalysisProcessing && r.Status != model.AnalysisPending {
			continue
		}
		if err := w.store.UpdateDocumentAnalysis(ctx, r.DocumentID, model.AnalysisFailed, "analysis timed out"); err != nil {
			zap.L().Warn("failed to mark document as failed",
				zap.String("document_id", r.DocumentID),
				zap.Error(err),
			)
		}
	}

	return w.openReview(ctx, []model.TriggerReason{model.TriggerTimeout})
}

// openReview idempotently creates the HITL review, transitions the quote, and
// notifies the customer.
func (w *Watchdog) openReview(ctx context.Context, reasons []model.TriggerReason) (Outcome, error) {
	w.Stop()

	now := time.Now().UTC()
	review := &model.HITLReview{
		ID:             uuid.New().String(),
		QuoteID:        w.quoteID,
		Status:         model.ReviewStatusPending,
		TriggerReasons: reasons,
		Priority:       priorityFor(reasons),
		SLADeadline:    now.Add(24 * time.Hour),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	created, existing, err := w.store.CreateReviewIfAbsent(ctx, review)
	if err != nil {
		return OutcomeStopped, eris.Wrapf(err, "watchdog: create review for %s", w.quoteID)
	}
	if !created {
		zap.L().Debug("review already open",
			zap.String("quote_id", w.quoteID),
			zap.String("review_id", existing.ID),
		)
		return OutcomeEscalated, nil
	}

	quote, err := w.store.GetQuote(ctx, w.quoteID)
	if err != nil {
		return OutcomeStopped, eris.Wrapf(err, "watchdog: load quote %s", w.quoteID)
	}
	if quote.Status == model.QuoteStatusDraft {
		next, err := workflow.NextQuoteStatus(quote.Status, workflow.EventOpenReview)
		if err != nil {
			return OutcomeStopped, err
		}
		if err := w.store.UpdateQuoteStatus(ctx, w.quoteID, next); err != nil {
			return OutcomeStopped, eris.Wrapf(err, "watchdog: transition quote %s", w.quoteID)
		}
	}

	if w.notifier != nil {
		if err := w.notifier.Send(ctx, "quote_in_review", quote.CustomerRef, map[string]string{
			"quote_id": w.quoteID,
		}); err != nil {
			zap.L().Warn("review notification failed",
				zap.String("quote_id", w.quoteID),
				zap.Error(err),
			)
		}
	}

	zap.L().Info("quote escalated to human review",
		zap.String("quote_id", w.quoteID),
		zap.String("review_id", review.ID),
		zap.Any("reasons", reasons),
	)
	return OutcomeEscalated, nil
}

func priorityFor(reasons []model.TriggerReason) model.ReviewPriority {
	for _, r := range reasons {
		switch r {
		case model.TriggerHighValueOrder, model.TriggerTimeout:
			return model.PriorityHigh
		}
	}
	return model.PriorityNormal
}

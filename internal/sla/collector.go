// Package sla watches the review queue against its service-level deadlines
// and pushes webhook alerts when cases go overdue or the backlog grows.
package sla

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/lingua-desk/quoteflow/internal/model"
	"github.com/lingua-desk/quoteflow/internal/store"
)

// Snapshot holds a point-in-time view of the review queue.
type Snapshot struct {
	ReviewsPending  int `json:"reviews_pending"`
	ReviewsInReview int `json:"reviews_in_review"`
	ReviewsOverdue  int `json:"reviews_overdue"`
	ReviewsUrgent   int `json:"reviews_urgent"`

	// OldestOverdue is how long the most-breached open review has been past
	// its deadline. Zero when nothing is overdue.
	OldestOverdue time.Duration `json:"oldest_overdue_ns"`

	QuotesAwaitingPayment int `json:"quotes_awaiting_payment"`

	CollectedAt time.Time `json:"collected_at"`
}

// Collector gathers queue metrics from the store.
type Collector struct {
	store store.Store
}

func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect builds a snapshot of the open review queue.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	now := time.Now().UTC()
	snap := &Snapshot{CollectedAt: now}

	for _, status := range []model.ReviewStatus{model.ReviewStatusPending, model.ReviewStatusInReview} {
		reviews, err := c.store.ListReviews(ctx, store.ReviewFilter{Status: status})
		if err != nil {
			return nil, eris.Wrapf(err, "sla: list %s reviews", status)
		}
		for i := range reviews {
			r := &reviews[i]
			switch status {
			case model.ReviewStatusPending:
				snap.ReviewsPending++
			case model.ReviewStatusInReview:
				snap.ReviewsInReview++
			}
			if r.Priority == model.PriorityUrgent {
				snap.ReviewsUrgent++
			}
			if !r.SLADeadline.IsZero() && r.SLADeadline.Before(now) {
				snap.ReviewsOverdue++
				if age := now.Sub(r.SLADeadline); age > snap.OldestOverdue {
					snap.OldestOverdue = age
				}
			}
		}
	}

	awaiting, err := c.store.ListQuotes(ctx, store.QuoteFilter{Status: model.QuoteStatusAwaitingPayment})
	if err != nil {
		return nil, eris.Wrap(err, "sla: list awaiting-payment quotes")
	}
	snap.QuotesAwaitingPayment = len(awaiting)

	return snap, nil
}

// Package server exposes the quoting platform over HTTP. Routing is chi;
// staff identity arrives in headers from the fronting auth proxy.
package server

import (
	"context"
	"sync"
	"time"

	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/lingua-desk/quoteflow/internal/analysis"
	"github.com/lingua-desk/quoteflow/internal/export"
	"github.com/lingua-desk/quoteflow/internal/model"
	"github.com/lingua-desk/quoteflow/internal/payment"
	"github.com/lingua-desk/quoteflow/internal/store"
	"github.com/lingua-desk/quoteflow/internal/turnaround"
	"github.com/lingua-desk/quoteflow/internal/watchdog"
	"github.com/lingua-desk/quoteflow/internal/workflow"
)

// AnalysisAPI is the slice of the analysis client the server drives.
type AnalysisAPI interface {
	Submit(ctx context.Context, req analysis.SubmitRequest) (*analysis.SubmitResponse, error)
	GetStatus(ctx context.Context, quoteID string) ([]model.PendingAnalysis, error)
}

// Options wires the server's collaborators.
type Options struct {
	Store          store.Store
	Service        *workflow.Service
	Analysis       AnalysisAPI
	Payment        payment.Gateway
	Notifier       workflow.Notifier
	Watchdog       watchdog.Config
	Turnaround     TurnaroundOptions
	AllowedOrigins []string
	Currency       string
}

// TurnaroundOptions carries the scheduling tables the availability endpoint
// consults. Zero values degrade to standard-only service in UTC.
type TurnaroundOptions struct {
	Location      *time.Location
	Table         *turnaround.EligibilityTable
	Calendar      turnaround.Calendar
	RushCutoff    turnaround.Cutoff
	SameDayCutoff turnaround.Cutoff
	RushDays      int
}

// Server is the HTTP API.
type Server struct {
	store    store.Store
	service  *workflow.Service
	analysis AnalysisAPI
	payment  payment.Gateway
	notifier workflow.Notifier
	exporter *export.Exporter

	watchdogCfg watchdog.Config
	schedule    TurnaroundOptions
	currency    string
	origins     []string

	mu        sync.Mutex
	watchdogs map[string]*watchdog.Watchdog

	// baseCtx outlives individual requests; watchdog goroutines run on it.
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// New builds a server. Call Close on shutdown to cancel watchdog polling.
func New(opts Options) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	currency := opts.Currency
	if currency == "" {
		currency = "USD"
	}
	schedule := opts.Turnaround
	if schedule.Location == nil {
		schedule.Location = time.UTC
	}
	if schedule.Table == nil {
		schedule.Table = turnaround.NewEligibilityTable(nil)
	}
	if schedule.Calendar == nil {
		schedule.Calendar = turnaround.Calendar{}
	}
	if schedule.RushDays <= 0 {
		schedule.RushDays = 1
	}
	return &Server{
		store:       opts.Store,
		service:     opts.Service,
		analysis:    opts.Analysis,
		payment:     opts.Payment,
		notifier:    opts.Notifier,
		exporter:    export.New(opts.Store),
		watchdogCfg: opts.Watchdog,
		schedule:    schedule,
		currency:    currency,
		origins:     opts.AllowedOrigins,
		watchdogs:   map[string]*watchdog.Watchdog{},
		baseCtx:     ctx,
		cancelBase:  cancel,
	}
}

// Close stops all watchdog polling.
func (s *Server) Close() {
	s.cancelBase()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.watchdogs {
		w.Stop()
	}
}

// Router assembles the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Staff-ID", "X-Staff-Role"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/quotes", func(r chi.Router) {
			r.Post("/", s.handleCreateQuote)
			r.Get("/", s.handleListQuotes)
			r.Get("/export", s.handleExportLedger)

			r.Route("/{quoteID}", func(r chi.Router) {
				r.Get("/", s.handleGetQuote)
				r.Get("/audit", s.handleQuoteAudit)
				r.Get("/turnaround", s.handleTurnaroundAvailability)
				r.Post("/checkout", s.handleCheckout)
				r.Post("/payments", s.handleMarkPaid)

				// Staff operations
				r.Group(func(r chi.Router) {
					r.Use(requireStaff)
					r.Post("/recalculate", s.handleRecalculate)
					r.Post("/turnaround", s.handleSetTurnaround)
					r.Post("/corrections", s.handleCorrections)
					r.Post("/send", s.handleSendToCustomer)
					r.Post("/reject", s.handleRejectQuote)
					r.Route("/groups", func(r chi.Router) {
						r.Get("/", s.handleListGroups)
						r.Post("/", s.handleCreateGroup)
						r.Post("/assign", s.handleAssignPage)
						r.Post("/split", s.handleSplitPages)
						r.Post("/combine", s.handleCombinePages)
						r.Delete("/{groupID}", s.handleDeleteGroup)
					})
				})
			})
		})

		r.Route("/reviews", func(r chi.Router) {
			r.Use(requireStaff)
			r.Get("/", s.handleListReviews)
			r.Route("/{reviewID}", func(r chi.Router) {
				r.Get("/", s.handleGetReview)
				r.Post("/claim", s.handleClaimReview)
				r.Post("/override", s.handleOverrideClaim)
				r.Post("/approve", s.handleApproveReview)
				r.Post("/reject", s.handleRejectReview)
				r.Post("/escalate", s.handleEscalateReview)
			})
		})

		r.Post("/webhooks/analysis", s.handleAnalysisWebhook)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// startWatchdog launches polling for a freshly submitted quote. At most one
// poller per quote runs at a time.
func (s *Server) startWatchdog(quoteID string) {
	s.mu.Lock()
	if _, running := s.watchdogs[quoteID]; running {
		s.mu.Unlock()
		return
	}
	w := watchdog.New(s.watchdogCfg, s.analysis, s.store, s.service, s.notifier, quoteID)
	s.watchdogs[quoteID] = w
	s.mu.Unlock()

	if err := w.Start(); err != nil {
		zap.L().Warn("watchdog start rejected", zap.String("quote_id", quoteID), zap.Error(err))
		return
	}
	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.watchdogs, quoteID)
			s.mu.Unlock()
		}()
		// First tick runs immediately so a webhook-completed quote finalizes
		// without waiting a full interval.
		outcome, err := w.Tick(s.baseCtx)
		if err != nil {
			zap.L().Error("watchdog tick failed", zap.String("quote_id", quoteID), zap.Error(err))
		}
		if outcome != watchdog.OutcomeWaiting {
			return
		}
		w.Run(s.baseCtx)
	}()
}

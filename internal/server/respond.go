package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lingua-desk/quoteflow/internal/grouping"
	"github.com/lingua-desk/quoteflow/internal/pricing"
	"github.com/lingua-desk/quoteflow/internal/store"
	"github.com/lingua-desk/quoteflow/internal/workflow"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			zap.L().Warn("response encode failed", zap.Error(err))
		}
	}
}

// writeError maps domain errors onto HTTP statuses. Conflicts surface as 409
// so clients re-read and retry deliberately rather than blindly.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case eris.Is(err, store.ErrNotFound),
		eris.Is(err, grouping.ErrUnknownGroup),
		eris.Is(err, grouping.ErrUnknownPage):
		status = http.StatusNotFound
	case eris.Is(err, workflow.ErrAlreadyClaimed),
		eris.Is(err, workflow.ErrStaleClaim),
		eris.Is(err, workflow.ErrTerminalState),
		eris.Is(err, workflow.ErrInvalidTransition),
		eris.Is(err, grouping.ErrPageAssigned),
		eris.Is(err, grouping.ErrGroupDeleted):
		status = http.StatusConflict
	case eris.Is(err, workflow.ErrForbiddenOverride),
		eris.Is(err, workflow.ErrNotClaimant):
		status = http.StatusForbidden
	case eris.Is(err, pricing.ErrInvalidInput),
		eris.Is(err, grouping.ErrCoverageBroken):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		zap.L().Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: eris.Cause(err).Error()})
}

func parseMoney(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, eris.Errorf("negative amount %s", raw)
	}
	return d, nil
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "invalid request body")
		return false
	}
	return true
}

// requestLogger logs one line per request with latency.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

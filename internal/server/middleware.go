package server

import (
	"context"
	"net/http"

	"github.com/lingua-desk/quoteflow/internal/model"
)

type contextKey string

const staffKey contextKey = "staff"

// requireStaff extracts the staff identity set by the auth proxy. Requests
// without both headers are rejected before any handler runs.
func requireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Staff-ID")
		role := r.Header.Get("X-Staff-Role")
		if id == "" || role == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "staff identity required"})
			return
		}
		staff := model.StaffContext{StaffID: id, Role: model.StaffRole(role)}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), staffKey, staff)))
	})
}

func staffFrom(r *http.Request) model.StaffContext {
	staff, _ := r.Context().Value(staffKey).(model.StaffContext)
	return staff
}

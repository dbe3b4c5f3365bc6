package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"sessiond/cmd/internal/db"
)

// Gate reports whether the database is usable, connecting it if needed.
// *db.Manager implements it.
type Gate interface {
	EnsureConnected(ctx context.Context, wait time.Duration) error
}

const unavailableMsg = "Database connection unavailable. Please try again later."

// requireDB wraps next so it only runs once the database is connected.
func (h *Handler) requireDB(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.gate == nil {
			next(w, r)
			return
		}
		if err := h.gate.EnsureConnected(r.Context(), h.cfg.DBWait); err != nil {
			if !errors.Is(err, db.ErrUnavailable) {
				h.log.Error("auth.db_gate.fail", slog.Any("err", err))
			}
			writeError(w, http.StatusServiceUnavailable, "service_unavailable", unavailableMsg)
			return
		}
		next(w, r)
	}
}

package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// NewHealthHandler returns GET /health handler. With a pinger, an unreachable
// store is reported as degraded but still answers 200.
func NewHealthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]string{"status": "ok"}
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				resp["status"] = "degraded"
				resp["database"] = "unreachable"
			} else {
				resp["database"] = "ok"
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

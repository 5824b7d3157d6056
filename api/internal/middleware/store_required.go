package middleware

import (
	"net/http"

	"cafeteria-menu-system/core/eventlog"
	"cafeteria-menu-system/shared/httpx"
)

// StoreRequiredMiddleware answers 503 while no event log is wired.
type StoreRequiredMiddleware struct {
	Log  eventlog.Log
	Skip func(*http.Request) bool
}

func (m StoreRequiredMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skip != nil && m.Skip(r) {
			next.ServeHTTP(w, r)
			return
		}
		if m.Log == nil {
			httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION", "event store not configured", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

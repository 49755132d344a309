// Package requesttime pins a single "now" per request so every decision made
// while serving it agrees on the time.
package requesttime

import (
	"net/http"
	"time"

	"consoleauth/pkg/requestcontext"
)

// Middleware stores now() in the request context. A nil now uses time.Now.
func Middleware(now func() time.Time) func(http.Handler) http.Handler {
	if now == nil {
		now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestcontext.WithTime(r.Context(), now())))
		})
	}
}

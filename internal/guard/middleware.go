package guard

import (
	"log/slog"
	"net/http"
	"time"

	"consoleauth/internal/platform/metrics"
	"consoleauth/internal/session/models"
	"consoleauth/internal/session/token"
	"consoleauth/pkg/requestcontext"
)

// protect is the HTTP mount shared by every navigation guard.
type protect struct {
	name    string
	source  SessionSource
	decider Decider
	grace   time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func (p protect) handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()
		snap := p.awaitResolved(req)
		decision := p.decider.Decide(ctx, snap, req.URL.RequestURI())
		p.metrics.IncrementGuardDecision(p.name, decision.Outcome.String())

		switch decision.Outcome {
		case Allow:
			if snap.User != nil {
				ctx = requestcontext.WithUserID(ctx, snap.User.ID)
			}
			if claims := token.Decode(snap.AccessToken); claims != nil && claims.SessionID != "" {
				ctx = requestcontext.WithSessionID(ctx, claims.SessionID)
			}
			next.ServeHTTP(w, req.WithContext(ctx))
		case RedirectLogin, RedirectUnauthorized:
			p.logger.DebugContext(ctx, "navigation redirected",
				"guard", p.name,
				"path", req.URL.Path,
				"location", decision.Location,
				"reason", decision.Reason,
				"request_id", requestcontext.RequestID(ctx),
			)
			http.Redirect(w, req, decision.Location, http.StatusFound)
		default:
			w.Header().Set("Retry-After", "1")
			http.Error(w, "session is loading", http.StatusServiceUnavailable)
		}
	})
}

// awaitResolved gives hydration a short grace period so a reload does not
// flash a login redirect.
func (p protect) awaitResolved(req *http.Request) models.Snapshot {
	snap := p.source.Snapshot()
	if snap.Status.Resolved() || p.grace <= 0 {
		return snap
	}
	timer := time.NewTimer(p.grace)
	defer timer.Stop()
	select {
	case <-p.source.Ready():
	case <-timer.C:
	case <-req.Context().Done():
	}
	return p.source.Snapshot()
}

// Middleware mounts the route guard on a chi router or any http.Handler chain.
func (r *Route) Middleware(source SessionSource) func(http.Handler) http.Handler {
	return protect{
		name:    "route",
		source:  source,
		decider: r,
		grace:   r.graceDelay,
		metrics: r.metrics,
		logger:  r.logger,
	}.handler
}

package guard

import (
	"context"
	"log/slog"
	"time"

	"consoleauth/internal/permission"
	"consoleauth/internal/platform/logger"
	"consoleauth/internal/platform/metrics"
	"consoleauth/internal/session/models"
)

const DefaultGraceDelay = 100 * time.Millisecond

// Route protects a navigation target with an authentication requirement and/or
// a permission check.
type Route struct {
	check            permission.CheckOptions
	requireAuth      bool
	redirectTo       string
	loginPath        string
	unauthorizedPath string
	graceDelay       time.Duration
	metrics          *metrics.Metrics
	logger           *slog.Logger
}

// RouteOption configures a Route.
type RouteOption func(*Route)

// RequirePermissions needs any of codes, or all with RequireAll.
func RequirePermissions(codes ...string) RouteOption {
	return func(r *Route) { r.check.Permissions = append(r.check.Permissions, codes...) }
}

// RequireRoles needs any one of names.
func RequireRoles(names ...string) RouteOption {
	return func(r *Route) { r.check.Roles = append(r.check.Roles, names...) }
}

// RequireAll makes permission requirements conjunctive.
func RequireAll() RouteOption {
	return func(r *Route) { r.check.RequireAll = true }
}

// WithCustomCheck replaces the role and permission gates.
func WithCustomCheck(fn func(models.Snapshot) bool) RouteOption {
	return func(r *Route) { r.check.CustomCheck = fn }
}

// WithSuperAdminBypass toggles the SUPER_ADMIN bypass (on by default).
func WithSuperAdminBypass(enabled bool) RouteOption {
	return func(r *Route) { r.check.SkipSuperAdmin = permission.Bool(enabled) }
}

// Public lets unauthenticated sessions through when no other requirement is
// set.
func Public() RouteOption {
	return func(r *Route) { r.requireAuth = false }
}

// WithRedirectTo overrides where denied users are sent.
func WithRedirectTo(path string) RouteOption {
	return func(r *Route) { r.redirectTo = path }
}

func WithLoginPath(path string) RouteOption {
	return func(r *Route) {
		if path != "" {
			r.loginPath = path
		}
	}
}

func WithUnauthorizedPath(path string) RouteOption {
	return func(r *Route) {
		if path != "" {
			r.unauthorizedPath = path
		}
	}
}

// WithGraceDelay sets how long a request waits for hydration before the
// guard gives up with 503.
func WithGraceDelay(d time.Duration) RouteOption {
	return func(r *Route) {
		if d >= 0 {
			r.graceDelay = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) RouteOption {
	return func(r *Route) { r.metrics = m }
}

func WithLogger(l *slog.Logger) RouteOption {
	return func(r *Route) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRoute returns a guard that requires authentication unless Public is
// given.
func NewRoute(opts ...RouteOption) *Route {
	r := &Route{
		requireAuth:      true,
		loginPath:        DefaultLoginPath,
		unauthorizedPath: DefaultUnauthorizedPath,
		graceDelay:       DefaultGraceDelay,
		logger:           logger.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Route) hasRequirements() bool {
	return len(r.check.Permissions) > 0 || len(r.check.Roles) > 0 || r.check.CustomCheck != nil
}

// Check decides a navigation to from for session s.
func (r *Route) Check(s models.Snapshot, from string) Decision {
	if !s.Status.Resolved() {
		return pending()
	}
	if r.requireAuth && !s.IsAuthenticated {
		return toLogin(r.loginPath, from)
	}
	if !r.hasRequirements() {
		return allow()
	}
	res := permission.Evaluate(s, r.check)
	if !res.Allowed {
		target := r.unauthorizedPath
		if r.redirectTo != "" {
			target = r.redirectTo
		}
		return toUnauthorized(target, res.Reason)
	}
	return allow()
}

// Decide implements Decider.
func (r *Route) Decide(_ context.Context, s models.Snapshot, from string) Decision {
	return r.Check(s, from)
}

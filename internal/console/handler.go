// Package console serves the console's screens over HTTP. Every screen sits
// behind a guard fed by the live session; the handlers only present.
package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"consoleauth/internal/guard"
	"consoleauth/internal/permission"
	"consoleauth/internal/platform/logger"
	"consoleauth/internal/platform/metrics"
	"consoleauth/internal/platform/middleware"
	"consoleauth/internal/session/models"
	"consoleauth/internal/session/token"
	dErrors "consoleauth/pkg/domain-errors"
	"consoleauth/pkg/platform/httputil"
	"consoleauth/pkg/platform/middleware/metadata"
	"consoleauth/pkg/platform/middleware/requesttime"
	"consoleauth/pkg/requestcontext"
)

// Permission codes and cache keys used by the built-in screens.
const (
	PermUserRead   = "user.read"
	PermUserDelete = "user.delete"
	PermRoleRead   = "role.read"
	PermReportView = "report.view"

	reportsCacheKey = "screen:reports"
)

// Activity receives a signal for every request a signed-in user makes.
type Activity interface {
	Touch()
}

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Handler wires the screens to a session source.
type Handler struct {
	source      guard.SessionSource
	cache       *permission.Cache[bool]
	metrics     *metrics.Metrics
	logger      *slog.Logger
	activity    Activity
	health      HealthChecker
	reportCheck guard.AsyncCheck
	cacheFor    time.Duration
	now         func() time.Time

	loginPath        string
	unauthorizedPath string
	graceDelay       time.Duration
}

type Option func(*Handler)

func WithCache(c *permission.Cache[bool]) Option {
	return func(h *Handler) { h.cache = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithActivity forwards request activity, typically to an inactivity monitor.
func WithActivity(a Activity) Option {
	return func(h *Handler) { h.activity = a }
}

func WithHealthCheck(c HealthChecker) Option {
	return func(h *Handler) { h.health = c }
}

// WithReportCheck replaces the check guarding /reports. The answer is cached
// for the cache TTL.
func WithReportCheck(check guard.AsyncCheck) Option {
	return func(h *Handler) {
		if check != nil {
			h.reportCheck = check
		}
	}
}

func WithCacheTTL(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.cacheFor = d
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// WithPaths moves the login and access-denied pages. Empty values keep the
// guard defaults.
func WithPaths(login, unauthorized string) Option {
	return func(h *Handler) {
		if login != "" {
			h.loginPath = login
		}
		if unauthorized != "" {
			h.unauthorizedPath = unauthorized
		}
	}
}

// WithGraceDelay bounds how long a request waits for session hydration.
func WithGraceDelay(d time.Duration) Option {
	return func(h *Handler) {
		if d >= 0 {
			h.graceDelay = d
		}
	}
}

func NewHandler(source guard.SessionSource, opts ...Option) (*Handler, error) {
	if source == nil {
		return nil, errors.New("session source is required")
	}
	h := &Handler{
		source:   source,
		logger:   logger.Discard(),
		cacheFor: permission.DefaultTTL,
		now:      time.Now,

		loginPath:        guard.DefaultLoginPath,
		unauthorizedPath: guard.DefaultUnauthorizedPath,
		graceDelay:       guard.DefaultGraceDelay,
		reportCheck: func(_ context.Context, s models.Snapshot) (bool, error) {
			return permission.HasPermission(s, PermReportView), nil
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.cache == nil {
		h.cache = permission.NewCache[bool]()
	}
	return h, nil
}

// Menu is the console navigation before filtering.
func Menu() []guard.MenuItem {
	return []guard.MenuItem{
		{Label: "Dashboard", Path: "/"},
		{Label: "Users", Path: "/users", Require: &permission.CheckOptions{Permissions: []string{PermUserRead}}},
		{Label: "Reports", Path: "/reports", Require: &permission.CheckOptions{Permissions: []string{PermReportView}}},
		{Label: "System", Children: []guard.MenuItem{
			{Label: "Roles", Path: "/system/roles", Require: &permission.CheckOptions{Roles: []string{models.AdminRole}}},
		}},
		{Label: "Security", Path: "/settings/security"},
	}
}

// Router mounts every screen.
func (h *Handler) Router() (http.Handler, error) {
	reports, err := guard.NewLazy(h.reportCheck,
		guard.CacheAs(h.cache, reportsCacheKey, h.cacheFor),
		guard.LazyLoginPath(h.loginPath),
		guard.LazyUnauthorizedPath(h.unauthorizedPath),
		guard.LazyGraceDelay(h.graceDelay),
		guard.LazyMetrics(h.metrics),
		guard.LazyLogger(h.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("reports guard: %w", err)
	}
	security := guard.NewMultiCondition(guard.And, []guard.Condition{
		{Name: "account_enabled", Check: syncCheck(func(s models.Snapshot) bool { return s.User.IsEnabled })},
		{Name: "two_factor", Check: syncCheck(func(s models.Snapshot) bool { return s.User.TwoFactorEnabled }), FallbackPath: "/settings/two-factor"},
	},
		guard.MultiLoginPath(h.loginPath),
		guard.MultiUnauthorizedPath(h.unauthorizedPath),
		guard.MultiGraceDelay(h.graceDelay),
		guard.MultiMetrics(h.metrics),
		guard.MultiLogger(h.logger),
	)

	authed := h.route()
	users := h.route(guard.RequirePermissions(PermUserRead))
	roles := h.route(guard.RequireRoles(models.AdminRole))

	r := chi.NewRouter()
	r.Use(metadata.ClientMetadata)
	r.Use(middleware.RequestID)
	r.Use(requesttime.Middleware(h.now))
	r.Use(middleware.AccessLog(h.logger))

	r.Get("/healthz", h.handleHealth)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.metrics.Registry, promhttp.HandlerOpts{}))
	}
	r.Get(h.loginPath, h.handleLogin)
	r.Get(h.unauthorizedPath, h.handleUnauthorized)

	r.Group(func(r chi.Router) {
		r.Use(h.touch)
		r.With(authed.Middleware(h.source)).Get("/", h.handleDashboard)
		r.With(authed.Middleware(h.source)).Get("/api/session", h.handleSession)
		r.With(authed.Middleware(h.source)).Get("/settings/two-factor", h.handleTwoFactor)
		r.With(users.Middleware(h.source)).Get("/users", h.handleUsers)
		r.With(roles.Middleware(h.source)).Get("/system/roles", h.handleRoles)
		r.With(reports.Middleware(h.source)).Get("/reports", h.handleReports)
		r.With(security.Middleware(h.source)).Get("/settings/security", h.handleSecurity)
	})
	return r, nil
}

func (h *Handler) route(opts ...guard.RouteOption) *guard.Route {
	return guard.NewRoute(append(opts,
		guard.WithLoginPath(h.loginPath),
		guard.WithUnauthorizedPath(h.unauthorizedPath),
		guard.WithGraceDelay(h.graceDelay),
		guard.WithMetrics(h.metrics),
		guard.WithLogger(h.logger),
	)...)
}

func syncCheck(fn func(models.Snapshot) bool) guard.AsyncCheck {
	return func(_ context.Context, s models.Snapshot) (bool, error) {
		return s.User != nil && fn(s), nil
	}
}

func (h *Handler) touch(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.activity != nil && h.source.Snapshot().IsAuthenticated {
			h.activity.Touch()
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Health(r.Context()); err != nil {
			h.logger.WarnContext(r.Context(), "health check failed", "error", err)
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "token store unreachable"))
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"session": h.source.Snapshot().Status.String(),
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	text(w, http.StatusUnauthorized, "Sign in with `consoleauth login`")
	if from := r.URL.Query().Get("from"); from != "" {
		fmt.Fprintf(w, ", then open %s again", from)
	}
	fmt.Fprintln(w, ".")
}

func (h *Handler) handleUnauthorized(w http.ResponseWriter, r *http.Request) {
	text(w, http.StatusForbidden, "Access denied")
	if reason := r.URL.Query().Get("reason"); reason != "" {
		fmt.Fprintf(w, ": %s", reason)
	}
	fmt.Fprintln(w)
}

// current re-reads the session for rendering. The guard already let the
// request through, but a logout may have landed since.
func (h *Handler) current(w http.ResponseWriter, r *http.Request) (models.Snapshot, bool) {
	snap := h.source.Snapshot()
	if snap.User == nil {
		http.Redirect(w, r, h.loginPath, http.StatusFound)
		return snap, false
	}
	return snap, true
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.current(w, r)
	if !ok {
		return
	}
	text(w, http.StatusOK, "Welcome, "+snap.User.DisplayName()+"\n\n")
	h.render(w, guard.RenderMenu(guard.FilterMenu(snap, Menu())))
}

func (h *Handler) handleUsers(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.current(w, r)
	if !ok {
		return
	}
	text(w, http.StatusOK, "Users\n\n")
	h.render(w, guard.Group(
		guard.RenderButton("Delete user", guard.Button(snap, guard.ButtonConfig{
			CheckOptions: permission.CheckOptions{Permissions: []string{PermUserDelete}},
		})),
		guard.Text("\n"),
		guard.Permission(snap, guard.PermissionConfig{
			CheckOptions: permission.CheckOptions{Permissions: []string{PermRoleRead}},
			Fallback:     guard.Text("Role assignments are hidden.\n"),
		}, guard.Text("Role assignments are visible.\n")),
	))
}

func (h *Handler) handleRoles(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.current(w, r)
	if !ok {
		return
	}
	text(w, http.StatusOK, "Roles\n\n")
	h.render(w, guard.Tooltip(snap, permission.CheckOptions{Roles: []string{models.SuperAdminRole}, SkipSuperAdmin: permission.Bool(false)},
		guard.Text("[Edit system roles]")))
	fmt.Fprintln(w)
}

func (h *Handler) handleReports(w http.ResponseWriter, _ *http.Request) {
	text(w, http.StatusOK, "Reports\n")
}

func (h *Handler) handleSecurity(w http.ResponseWriter, _ *http.Request) {
	text(w, http.StatusOK, "Security settings\n")
}

func (h *Handler) handleTwoFactor(w http.ResponseWriter, _ *http.Request) {
	text(w, http.StatusOK, "Enable two-factor authentication with `consoleauth 2fa enable` to continue.\n")
}

type sessionView struct {
	Status           string     `json:"status"`
	UserID           string     `json:"user_id"`
	SessionID        string     `json:"session_id,omitempty"`
	Username         string     `json:"username"`
	Roles            []string   `json:"roles"`
	Permissions      []string   `json:"permissions"`
	AccessExpiresAt  *time.Time `json:"access_expires_at,omitempty"`
	AccessRemainingS int64      `json:"access_remaining_seconds"`
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap, ok := h.current(w, r)
	if !ok {
		return
	}
	tokens := token.NewClock(func() time.Time { return requestcontext.Now(ctx) })

	view := sessionView{
		Status:           snap.Status.String(),
		UserID:           requestcontext.UserID(ctx),
		SessionID:        requestcontext.SessionID(ctx),
		Username:         snap.User.Username,
		Roles:            snap.RoleNames(),
		Permissions:      snap.Permissions,
		AccessRemainingS: tokens.RemainingSeconds(snap.AccessToken),
	}
	if exp, ok := tokens.ExpiresAt(snap.AccessToken); ok {
		view.AccessExpiresAt = &exp
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) render(w http.ResponseWriter, r guard.Renderer) {
	if err := r.Render(w); err != nil {
		h.logger.Warn("render failed", "error", err)
	}
}

func text(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = fmt.Fprint(w, body)
}

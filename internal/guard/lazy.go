package guard

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"consoleauth/internal/permission"
	"consoleauth/internal/platform/logger"
	"consoleauth/internal/platform/metrics"
	"consoleauth/internal/session/models"
)

const reasonCheckFailed = "authorization check failed"

// AsyncCheck is an authorization predicate that may need a round trip.
type AsyncCheck func(ctx context.Context, s models.Snapshot) (bool, error)

// Lazy guards a route with an async check whose answer can be cached.
type Lazy struct {
	check            AsyncCheck
	cache            *permission.Cache[bool]
	cacheKey         string
	cacheFor         time.Duration
	loginPath        string
	unauthorizedPath string
	graceDelay       time.Duration
	metrics          *metrics.Metrics
	logger           *slog.Logger
}

type LazyOption func(*Lazy)

// CacheAs stores the boolean answer in cache under key for ttl. The key is
// the caller's: distinct checks must use distinct keys.
func CacheAs(cache *permission.Cache[bool], key string, ttl time.Duration) LazyOption {
	return func(g *Lazy) {
		g.cache = cache
		g.cacheKey = key
		g.cacheFor = ttl
	}
}

func LazyLoginPath(path string) LazyOption {
	return func(g *Lazy) {
		if path != "" {
			g.loginPath = path
		}
	}
}

func LazyUnauthorizedPath(path string) LazyOption {
	return func(g *Lazy) {
		if path != "" {
			g.unauthorizedPath = path
		}
	}
}

func LazyGraceDelay(d time.Duration) LazyOption {
	return func(g *Lazy) {
		if d >= 0 {
			g.graceDelay = d
		}
	}
}

func LazyMetrics(m *metrics.Metrics) LazyOption {
	return func(g *Lazy) { g.metrics = m }
}

func LazyLogger(l *slog.Logger) LazyOption {
	return func(g *Lazy) {
		if l != nil {
			g.logger = l
		}
	}
}

func NewLazy(check AsyncCheck, opts ...LazyOption) (*Lazy, error) {
	if check == nil {
		return nil, errors.New("lazy guard needs a check")
	}
	g := &Lazy{
		check:            check,
		loginPath:        DefaultLoginPath,
		unauthorizedPath: DefaultUnauthorizedPath,
		graceDelay:       DefaultGraceDelay,
		logger:           logger.Discard(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Decide runs the check, or answers from cache. A failing check denies and is
// not cached.
func (g *Lazy) Decide(ctx context.Context, s models.Snapshot, from string) Decision {
	if !s.Status.Resolved() {
		return pending()
	}
	if !s.IsAuthenticated {
		return toLogin(g.loginPath, from)
	}

	cached := g.cache != nil && g.cacheKey != ""
	if cached {
		if ok, hit := g.cache.Get(g.cacheKey); hit {
			return g.decision(ok)
		}
	}

	ok, err := g.check(ctx, s)
	if err != nil {
		g.logger.WarnContext(ctx, "async authorization check failed", "error", err)
		return toUnauthorized(g.unauthorizedPath, reasonCheckFailed)
	}
	if cached {
		g.cache.Set(g.cacheKey, ok, g.cacheFor)
	}
	return g.decision(ok)
}

func (g *Lazy) decision(ok bool) Decision {
	if ok {
		return allow()
	}
	return toUnauthorized(g.unauthorizedPath, "access denied")
}

func (g *Lazy) Middleware(source SessionSource) func(http.Handler) http.Handler {
	return protect{
		name:    "lazy",
		source:  source,
		decider: g,
		grace:   g.graceDelay,
		metrics: g.metrics,
		logger:  g.logger,
	}.handler
}

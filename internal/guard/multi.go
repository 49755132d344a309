package guard

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"consoleauth/internal/platform/logger"
	"consoleauth/internal/platform/metrics"
	"consoleauth/internal/session/models"
)

// Mode combines conditions.
type Mode int

const (
	// And stops at the first failing condition.
	And Mode = iota
	// Or stops at the first passing condition.
	Or
)

// Condition is one step of a multi-condition guard. An error counts as a
// failure.
type Condition struct {
	Name         string
	Check        AsyncCheck
	FallbackPath string
}

// MultiCondition evaluates conditions in order with short-circuiting.
type MultiCondition struct {
	mode             Mode
	conditions       []Condition
	loginPath        string
	unauthorizedPath string
	graceDelay       time.Duration
	metrics          *metrics.Metrics
	logger           *slog.Logger
}

type MultiOption func(*MultiCondition)

func MultiLoginPath(path string) MultiOption {
	return func(g *MultiCondition) {
		if path != "" {
			g.loginPath = path
		}
	}
}

// MultiUnauthorizedPath is used when the deciding condition has no fallback.
func MultiUnauthorizedPath(path string) MultiOption {
	return func(g *MultiCondition) {
		if path != "" {
			g.unauthorizedPath = path
		}
	}
}

func MultiGraceDelay(d time.Duration) MultiOption {
	return func(g *MultiCondition) {
		if d >= 0 {
			g.graceDelay = d
		}
	}
}

func MultiMetrics(m *metrics.Metrics) MultiOption {
	return func(g *MultiCondition) { g.metrics = m }
}

func MultiLogger(l *slog.Logger) MultiOption {
	return func(g *MultiCondition) {
		if l != nil {
			g.logger = l
		}
	}
}

func NewMultiCondition(mode Mode, conditions []Condition, opts ...MultiOption) *MultiCondition {
	g := &MultiCondition{
		mode:             mode,
		conditions:       conditions,
		loginPath:        DefaultLoginPath,
		unauthorizedPath: DefaultUnauthorizedPath,
		graceDelay:       DefaultGraceDelay,
		logger:           logger.Discard(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Decide evaluates the conditions. With And, a denial redirects to the
// failing condition's fallback; with Or, to the last condition's fallback.
// An empty And allows and an empty Or denies.
func (g *MultiCondition) Decide(ctx context.Context, s models.Snapshot, from string) Decision {
	if !s.Status.Resolved() {
		return pending()
	}
	if !s.IsAuthenticated {
		return toLogin(g.loginPath, from)
	}

	var last *Condition
	for i := range g.conditions {
		c := &g.conditions[i]
		last = c
		ok := g.run(ctx, s, c)
		switch {
		case g.mode == And && !ok:
			return g.deny(c)
		case g.mode == Or && ok:
			return allow()
		}
	}
	if g.mode == And {
		return allow()
	}
	return g.deny(last)
}

func (g *MultiCondition) run(ctx context.Context, s models.Snapshot, c *Condition) bool {
	if c.Check == nil {
		return false
	}
	ok, err := c.Check(ctx, s)
	if err != nil {
		g.logger.WarnContext(ctx, "guard condition failed", "condition", c.Name, "error", err)
		return false
	}
	return ok
}

func (g *MultiCondition) deny(c *Condition) Decision {
	path := g.unauthorizedPath
	reason := "no condition passed"
	if c != nil {
		if c.FallbackPath != "" {
			path = c.FallbackPath
		}
		reason = "condition " + c.Name + " not met"
	}
	return toUnauthorized(path, reason)
}

func (g *MultiCondition) Middleware(source SessionSource) func(http.Handler) http.Handler {
	return protect{
		name:    "multi",
		source:  source,
		decider: g,
		grace:   g.graceDelay,
		metrics: g.metrics,
		logger:  g.logger,
	}.handler
}

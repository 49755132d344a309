// Package session owns the authenticated session of a console: it hydrates
// persisted credentials, logs in and out, refreshes tokens, and tells
// subscribers about every transition.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"consoleauth/internal/platform/clock"
	"consoleauth/internal/platform/logger"
	"consoleauth/internal/platform/metrics"
	"consoleauth/internal/session/apiclient"
	"consoleauth/internal/session/models"
	"consoleauth/internal/session/token"
	dErrors "consoleauth/pkg/domain-errors"
	"consoleauth/pkg/platform/sentinel"
	pstrings "consoleauth/pkg/platform/strings"
)

const (
	defaultCheckInterval    = time.Minute
	defaultRefreshThreshold = 5

	msgSessionExpired = "session expired, please log in again"
)

var (
	ErrNotAuthenticated    = dErrors.New(dErrors.CodeUnauthorized, "not authenticated")
	ErrRefreshTokenExpired = fmt.Errorf("refresh token missing or %w", sentinel.ErrExpired)
	ErrRefreshFailed       = errors.New("token refresh failed")

	// ErrSessionChanged marks work that finished after its session was
	// logged out or replaced. Its result was discarded.
	ErrSessionChanged = fmt.Errorf("session changed while the call was in flight: %w", sentinel.ErrInvalidState)
)

// Manager is the single writer of session state. Everything else reads
// snapshots.
type Manager struct {
	api        AuthAPI
	store      token.Store
	logger     *slog.Logger
	cache      Invalidator
	clock      clock.Clock
	tokens     token.Clock
	metrics    *metrics.Metrics
	redirector LoginRedirector

	checkInterval    time.Duration
	refreshThreshold int

	mu    sync.RWMutex
	state models.Snapshot
	seq   uint64
	// epoch identifies the credentials in state. It changes on every login
	// and clear, written with both commitMu and mu held.
	epoch uint64

	// commitMu pairs store writes with the matching state change, so a late
	// refresh or profile load cannot land after a login or clear.
	commitMu  sync.Mutex
	published atomic.Uint64

	subsMu sync.Mutex
	subs   []subscriber

	refreshGroup singleflight.Group

	loopMu     sync.Mutex
	loopCancel context.CancelFunc
	loopDone   chan struct{}
	closed     bool

	ready     chan struct{}
	readyOnce sync.Once
}

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithCache registers the cache to invalidate on login and logout.
func WithCache(c Invalidator) Option {
	return func(m *Manager) { m.cache = c }
}

func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithCheckInterval sets how often the background loop looks at token expiry.
func WithCheckInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.checkInterval = d
		}
	}
}

// WithRefreshThreshold sets how many minutes before expiry the access token is
// refreshed proactively.
func WithRefreshThreshold(minutes int) Option {
	return func(m *Manager) {
		if minutes > 0 {
			m.refreshThreshold = minutes
		}
	}
}

func WithLoginRedirector(r LoginRedirector) Option {
	return func(m *Manager) { m.redirector = r }
}

// New builds a manager around api and store. When api is an
// *apiclient.Client, the client is bound to the manager's token and recovery
// hook.
func New(api AuthAPI, store token.Store, opts ...Option) (*Manager, error) {
	if api == nil {
		return nil, errors.New("auth API is required")
	}
	if store == nil {
		return nil, errors.New("token store is required")
	}
	m := &Manager{
		api:              api,
		store:            store,
		logger:           logger.Discard(),
		clock:            clock.Real(),
		checkInterval:    defaultCheckInterval,
		refreshThreshold: defaultRefreshThreshold,
		state:            models.Snapshot{Status: models.StatusUnknown},
		ready:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.tokens = token.NewClock(m.clock.Now)

	if c, ok := api.(*apiclient.Client); ok {
		c.Bind(m.AccessToken, m.HandleAuthFailure)
	}
	return m, nil
}

// Initialize hydrates the session from the store. It always leaves the
// session resolved; failures while hydrating end unauthenticated with the
// store cleared. The returned error is non-nil only when ctx ends first.
func (m *Manager) Initialize(ctx context.Context) error {
	m.update(func(s *models.Snapshot) {
		s.Status = models.StatusHydrating
		s.Loading = true
	})

	err := m.hydrate(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		m.update(func(s *models.Snapshot) {
			*s = models.Snapshot{Status: models.StatusUnauthenticated}
		})
		return ctxErr
	}
	if err != nil {
		m.logger.WarnContext(ctx, "session hydration failed, starting unauthenticated", "error", err)
		m.clear(ctx, "")
	}

	m.update(func(s *models.Snapshot) {
		s.Status = models.StatusAuthenticated
		s.Loading = false
	})
	m.logger.InfoContext(ctx, "session hydrated", "status", m.Status().String())
	return nil
}

func (m *Manager) hydrate(ctx context.Context) error {
	access, err := m.store.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("read access token: %w", err)
	}
	refresh, err := m.store.RefreshToken(ctx)
	if err != nil {
		return fmt.Errorf("read refresh token: %w", err)
	}
	cached, err := m.store.User(ctx)
	if err != nil {
		return fmt.Errorf("read cached user: %w", err)
	}

	switch {
	case access != "" && !m.tokens.IsExpired(access):
		m.update(func(s *models.Snapshot) {
			s.AccessToken = access
			s.RefreshToken = refresh
			s.User = cached
		})
		err := m.loadProfile(ctx)
		if err == nil {
			return nil
		}
		if !dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			if cached == nil {
				return fmt.Errorf("load profile without cached user: %w", err)
			}
			m.logger.WarnContext(ctx, "profile unavailable, keeping cached user", "error", err)
			return nil
		}
		if _, err := m.Refresh(ctx); err != nil {
			return err
		}
		return m.loadProfileOrKeep(ctx)

	case refresh != "" && !m.tokens.IsExpired(refresh):
		m.update(func(s *models.Snapshot) {
			s.RefreshToken = refresh
			s.User = cached
		})
		if _, err := m.Refresh(ctx); err != nil {
			return err
		}
		return m.loadProfileOrKeep(ctx)

	default:
		m.clear(ctx, "")
		return nil
	}
}

// loadProfileOrKeep tolerates a profile failure as long as a user is known.
func (m *Manager) loadProfileOrKeep(ctx context.Context) error {
	err := m.loadProfile(ctx)
	if err == nil {
		return nil
	}
	if m.Snapshot().User == nil {
		return fmt.Errorf("load profile: %w", err)
	}
	m.logger.WarnContext(ctx, "profile unavailable after refresh, keeping cached user", "error", err)
	return nil
}

func (m *Manager) loadProfile(ctx context.Context) error {
	epoch := m.currentEpoch()
	profile, err := m.api.Profile(ctx)
	if err != nil {
		return err
	}
	applied := m.commitIf(epoch, func() {
		if profile.User == nil {
			return
		}
		if err := m.store.SetUser(ctx, profile.User); err != nil {
			m.logger.WarnContext(ctx, "failed to cache user", "error", err)
		}
	}, func(s *models.Snapshot) {
		if profile.User != nil {
			s.User = profile.User
		}
		s.Roles = profile.Roles
		s.Permissions = pstrings.DedupeAndTrim(profile.Permissions)
	})
	if !applied {
		return fmt.Errorf("load profile: %w", ErrSessionChanged)
	}
	return nil
}

// Login exchanges credentials for a session. On failure the session keeps its
// previous state with Error set, and the backend error is returned wrapped.
func (m *Manager) Login(ctx context.Context, creds models.Credentials) error {
	m.update(func(s *models.Snapshot) {
		s.Loading = true
		s.Error = ""
	})

	res, err := m.api.Login(ctx, creds)
	if err == nil && (res == nil || res.AccessToken == "" || res.User == nil) {
		err = dErrors.New(dErrors.CodeInternal, "login response is missing tokens or user")
	}
	if err != nil {
		m.metrics.IncrementLogin(metrics.OutcomeFailure)
		m.update(func(s *models.Snapshot) {
			s.Loading = false
			s.Error = userMessage(err)
		})
		m.logger.InfoContext(ctx, "login failed", "username", creds.Username, "error", err)
		return fmt.Errorf("login: %w", err)
	}

	m.commitMu.Lock()
	if m.cache != nil {
		m.cache.Clear()
	}
	if err := token.SavePair(ctx, m.store, res.TokenPair); err != nil {
		m.logger.WarnContext(ctx, "failed to persist tokens", "error", err)
	}
	if err := m.store.SetUser(ctx, res.User); err != nil {
		m.logger.WarnContext(ctx, "failed to cache user", "error", err)
	}
	snap := m.apply(func(s *models.Snapshot) {
		m.epoch++
		*s = models.Snapshot{
			Status:       models.StatusAuthenticated,
			User:         res.User,
			AccessToken:  res.AccessToken,
			RefreshToken: res.RefreshToken,
			Loading:      true,
		}
	})
	m.commitMu.Unlock()
	m.publish(snap)

	if err := m.loadProfile(ctx); err != nil {
		m.logger.WarnContext(ctx, "profile unavailable after login", "error", err)
	}
	m.update(func(s *models.Snapshot) { s.Loading = false })

	m.metrics.IncrementLogin(metrics.OutcomeSuccess)
	m.logger.InfoContext(ctx, "user logged in", "user_id", res.User.ID)
	return nil
}

// Logout revokes the session server-side on a best-effort basis and always
// clears local state. It is safe to call repeatedly.
func (m *Manager) Logout(ctx context.Context) {
	refresh := m.Snapshot().RefreshToken
	if refresh == "" {
		if stored, err := m.store.RefreshToken(ctx); err == nil {
			refresh = stored
		}
	}
	if refresh != "" {
		if err := m.api.Logout(ctx, refresh); err != nil {
			m.logger.WarnContext(ctx, "backend logout failed", "error", err)
		}
	}
	m.clear(ctx, "")
	m.metrics.IncrementLogout()
	m.logger.InfoContext(ctx, "user logged out")
}

// clear drops credentials everywhere. reason ends up in Snapshot.Error.
func (m *Manager) clear(ctx context.Context, reason string) {
	m.commitMu.Lock()
	if err := m.store.Clear(ctx); err != nil {
		m.logger.WarnContext(ctx, "failed to clear token store", "error", err)
	}
	if m.cache != nil {
		m.cache.Clear()
	}
	snap := m.apply(func(s *models.Snapshot) {
		m.epoch++
		status := models.StatusUnauthenticated
		if s.Status == models.StatusHydrating {
			status = models.StatusHydrating
		}
		*s = models.Snapshot{Status: status, Error: reason}
	})
	m.commitMu.Unlock()
	m.publish(snap)
}

// expire ends a session that can no longer be refreshed.
func (m *Manager) expire(ctx context.Context, reason string) {
	m.logger.InfoContext(ctx, "session expired", "reason", reason)
	m.clear(ctx, msgSessionExpired)
	m.metrics.IncrementLogout()
}

// Snapshot returns a copy of the current session.
func (m *Manager) Snapshot() models.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Clone()
}

func (m *Manager) Status() models.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Status
}

// Ready is closed once the session has resolved for the first time.
func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

// AccessToken is the bearer for backend calls.
func (m *Manager) AccessToken(context.Context) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.AccessToken
}

// Close stops background work. It is idempotent.
func (m *Manager) Close() {
	m.loopMu.Lock()
	m.closed = true
	done := m.stopLoopLocked()
	m.loopMu.Unlock()
	if done != nil {
		<-done
	}
}

// update applies fn under the state lock, then publishes outside it.
func (m *Manager) update(fn func(*models.Snapshot)) {
	m.publish(m.apply(fn))
}

// apply runs fn under the state lock and stamps the result with the next Seq.
func (m *Manager) apply(fn func(*models.Snapshot)) models.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.state)
	m.state = m.state.Normalize()
	m.seq++
	m.state.Seq = m.seq
	if m.state.Status.Resolved() {
		m.readyOnce.Do(func() { close(m.ready) })
	}
	return m.state.Clone()
}

// publish reconciles the background loop and notifies subscribers, unless a
// newer snapshot has already gone out.
func (m *Manager) publish(snap models.Snapshot) {
	for {
		last := m.published.Load()
		if snap.Seq <= last {
			return
		}
		if m.published.CompareAndSwap(last, snap.Seq) {
			break
		}
	}
	m.reconcileLoop()
	m.notify(snap)
}

func (m *Manager) currentEpoch() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.epoch
}

// commitIf runs persist and applies fn only while the session is still the
// one identified by epoch. It reports whether the change was made.
func (m *Manager) commitIf(epoch uint64, persist func(), fn func(*models.Snapshot)) bool {
	m.commitMu.Lock()
	if m.currentEpoch() != epoch {
		m.commitMu.Unlock()
		return false
	}
	persist()
	snap := m.apply(fn)
	m.commitMu.Unlock()
	m.publish(snap)
	return true
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "request cancelled"
	case dErrors.HasCode(err, dErrors.CodeUnavailable):
		return "backend unreachable, try again"
	default:
		return dErrors.Message(err)
	}
}

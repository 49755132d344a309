package session

import (
	"context"
	"errors"
	"fmt"

	"consoleauth/internal/platform/metrics"
	"consoleauth/internal/session/models"
	dErrors "consoleauth/pkg/domain-errors"
	"consoleauth/pkg/platform/sentinel"
)

const refreshKey = "refresh"

// Refresh exchanges the refresh token for a new pair and returns the new
// access token. Concurrent callers share one round trip and get the same
// result. The shared call is detached from the first caller's cancellation;
// each caller still returns as soon as its own ctx is done.
//
// A missing or expired refresh token fails with ErrRefreshTokenExpired
// without contacting the backend. Refresh never logs out; see RefreshOrLogout.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	detached := context.WithoutCancel(ctx)
	ch := m.refreshGroup.DoChan(refreshKey, func() (any, error) {
		return m.refresh(detached)
	})

	select {
	case res := <-ch:
		if res.Shared {
			m.metrics.IncrementRefreshCoalesced()
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	m.mu.RLock()
	current, epoch := m.state.RefreshToken, m.epoch
	m.mu.RUnlock()
	if current == "" {
		stored, err := m.store.RefreshToken(ctx)
		if err != nil {
			return "", fmt.Errorf("read refresh token: %w", err)
		}
		current = stored
	}
	if current == "" || m.tokens.IsExpired(current) {
		m.metrics.ObserveRefresh(metrics.OutcomeSkipped, 0)
		return "", ErrRefreshTokenExpired
	}

	start := m.clock.Now()
	pair, err := m.api.Refresh(ctx, current)
	elapsed := m.clock.Now().Sub(start).Seconds()
	if err != nil {
		m.metrics.ObserveRefresh(metrics.OutcomeFailure, elapsed)
		m.logger.WarnContext(ctx, "token refresh failed", "error", err)
		return "", fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	if pair == nil || pair.AccessToken == "" {
		m.metrics.ObserveRefresh(metrics.OutcomeFailure, elapsed)
		return "", fmt.Errorf("%w: %w", ErrRefreshFailed,
			dErrors.New(dErrors.CodeInternal, "refresh response is missing an access token"))
	}
	if pair.RefreshToken == "" {
		pair.RefreshToken = current
	}
	m.metrics.ObserveRefresh(metrics.OutcomeSuccess, elapsed)

	applied := m.commitIf(epoch, func() {
		if err := m.store.SetAccessToken(ctx, pair.AccessToken); err != nil {
			m.logger.WarnContext(ctx, "failed to persist access token", "error", err)
		}
		if err := m.store.SetRefreshToken(ctx, pair.RefreshToken); err != nil {
			m.logger.WarnContext(ctx, "failed to persist refresh token", "error", err)
		}
	}, func(s *models.Snapshot) {
		s.AccessToken = pair.AccessToken
		s.RefreshToken = pair.RefreshToken
		s.Error = ""
	})
	if !applied {
		m.logger.InfoContext(ctx, "discarding refreshed tokens of a session that has ended")
		return "", fmt.Errorf("%w: %w", ErrRefreshFailed, ErrSessionChanged)
	}
	m.logger.DebugContext(ctx, "token refreshed", "remaining_seconds", m.tokens.RemainingSeconds(pair.AccessToken))
	return pair.AccessToken, nil
}

// RefreshOrLogout refreshes and clears the session when that fails for any
// reason other than a transient one.
func (m *Manager) RefreshOrLogout(ctx context.Context) (string, error) {
	tok, err := m.Refresh(ctx)
	if err != nil && !isTransient(err) {
		m.expire(ctx, err.Error())
	}
	return tok, err
}

// HandleAuthFailure is the backend client's 401 hook: it refreshes once and
// hands back the new token so the request can be replayed. When the session
// cannot be recovered it is cleared and the user is sent to login.
func (m *Manager) HandleAuthFailure(ctx context.Context) (string, error) {
	tok, err := m.RefreshOrLogout(ctx)
	if err != nil {
		if !isTransient(err) && m.redirector != nil {
			m.redirector.RedirectToLogin(ctx, msgSessionExpired)
		}
		return "", err
	}
	return tok, nil
}

// isTransient separates "try again later" from "this session is dead". A
// superseded call counts as transient: the session now in place is not its to
// end.
func isTransient(err error) bool {
	return errors.Is(err, ErrSessionChanged) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, sentinel.ErrUnavailable) ||
		dErrors.HasCode(err, dErrors.CodeUnavailable)
}

// isRejected reports a refresh the backend will never accept again.
func isRejected(err error) bool {
	return errors.Is(err, ErrRefreshTokenExpired) ||
		dErrors.HasCode(err, dErrors.CodeUnauthorized) ||
		dErrors.HasCode(err, dErrors.CodeForbidden)
}

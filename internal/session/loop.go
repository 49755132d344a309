package session

import (
	"context"

	"consoleauth/internal/session/models"
)

// reconcileLoop runs the expiry checker exactly while the session is
// authenticated. It reads the live status, so a late publish cannot restart a
// loop a newer transition stopped.
func (m *Manager) reconcileLoop() {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()

	if m.Status() == models.StatusAuthenticated {
		if m.loopCancel == nil && !m.closed {
			m.startLoopLocked()
		}
		return
	}
	m.stopLoopLocked()
}

func (m *Manager) startLoopLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.loopCancel = cancel
	m.loopDone = done

	go func() {
		defer close(done)
		ticker := m.clock.NewTicker(m.checkInterval)
		defer ticker.Stop()

		m.checkExpiry(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.checkExpiry(ctx)
			}
		}
	}()
}

// stopLoopLocked cancels the loop without waiting for it, since the loop
// itself may be the caller. It returns the channel closed on exit.
func (m *Manager) stopLoopLocked() <-chan struct{} {
	if m.loopCancel == nil {
		return nil
	}
	m.loopCancel()
	done := m.loopDone
	m.loopCancel = nil
	m.loopDone = nil
	return done
}

func (m *Manager) checkExpiry(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	access := m.AccessToken(ctx)
	if access == "" || !m.tokens.IsExpiringSoon(access, m.refreshThreshold) {
		return
	}

	m.logger.DebugContext(ctx, "access token expiring soon, refreshing",
		"remaining_seconds", m.tokens.RemainingSeconds(access),
	)
	if _, err := m.Refresh(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		if isRejected(err) {
			m.expire(ctx, err.Error())
			return
		}
		m.logger.WarnContext(ctx, "background refresh failed", "error", err)
	}
}

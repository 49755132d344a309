package session

import (
	"context"
	"fmt"

	"consoleauth/internal/session/models"
)

// UpdateProfile saves patch and replaces the session's user with the result.
func (m *Manager) UpdateProfile(ctx context.Context, patch models.ProfilePatch) (*models.User, error) {
	if !m.Snapshot().IsAuthenticated {
		return nil, ErrNotAuthenticated
	}
	epoch := m.currentEpoch()
	var user *models.User
	err := m.transient(ctx, "update profile", func() error {
		u, err := m.api.UpdateProfile(ctx, patch)
		user = u
		return err
	})
	if err != nil {
		return nil, err
	}
	if user != nil {
		m.replaceUser(ctx, epoch, user)
	}
	return user.Clone(), nil
}

// ChangePassword only touches Loading and Error.
func (m *Manager) ChangePassword(ctx context.Context, change models.PasswordChange) error {
	if !m.Snapshot().IsAuthenticated {
		return ErrNotAuthenticated
	}
	return m.transient(ctx, "change password", func() error {
		return m.api.ChangePassword(ctx, change)
	})
}

// Register, SendCode and ResetPassword are account lifecycle calls that never
// touch the session.
func (m *Manager) Register(ctx context.Context, reg models.Registration) (*models.User, error) {
	user, err := m.api.Register(ctx, reg)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	return user, nil
}

func (m *Manager) SendCode(ctx context.Context, req models.CodeRequest) error {
	if err := m.api.SendCode(ctx, req); err != nil {
		return fmt.Errorf("send code: %w", err)
	}
	return nil
}

func (m *Manager) ResetPassword(ctx context.Context, reset models.PasswordReset) error {
	if err := m.api.ResetPassword(ctx, reset); err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	return nil
}

// EnableTwoFactor starts enrolment. The user's flag flips once the code is
// verified.
func (m *Manager) EnableTwoFactor(ctx context.Context) (*models.TwoFactorSetup, error) {
	if !m.Snapshot().IsAuthenticated {
		return nil, ErrNotAuthenticated
	}
	var setup *models.TwoFactorSetup
	err := m.transient(ctx, "enable two-factor", func() error {
		s, err := m.api.EnableTwoFactor(ctx)
		setup = s
		return err
	})
	if err != nil {
		return nil, err
	}
	return setup, nil
}

func (m *Manager) VerifyTwoFactor(ctx context.Context, code string) error {
	return m.setTwoFactor(ctx, "verify two-factor", true, func() error {
		return m.api.VerifyTwoFactor(ctx, code)
	})
}

func (m *Manager) DisableTwoFactor(ctx context.Context, code string) error {
	return m.setTwoFactor(ctx, "disable two-factor", false, func() error {
		return m.api.DisableTwoFactor(ctx, code)
	})
}

func (m *Manager) setTwoFactor(ctx context.Context, op string, enabled bool, call func() error) error {
	m.mu.RLock()
	snap, epoch := m.state.Clone(), m.epoch
	m.mu.RUnlock()
	if !snap.IsAuthenticated {
		return ErrNotAuthenticated
	}
	if err := m.transient(ctx, op, call); err != nil {
		return err
	}
	user := snap.User.Clone()
	user.TwoFactorEnabled = enabled
	m.replaceUser(ctx, epoch, user)
	return nil
}

// replaceUser is dropped when the session changed since epoch was taken.
func (m *Manager) replaceUser(ctx context.Context, epoch uint64, user *models.User) {
	applied := m.commitIf(epoch, func() {
		if err := m.store.SetUser(ctx, user); err != nil {
			m.logger.WarnContext(ctx, "failed to cache user", "error", err)
		}
	}, func(s *models.Snapshot) {
		if s.User != nil {
			s.User = user
		}
	})
	if !applied {
		m.logger.DebugContext(ctx, "session changed, user update not applied", "user_id", user.ID)
	}
}

// transient wraps a call that only shows progress: Loading while in flight and
// Error on failure.
func (m *Manager) transient(ctx context.Context, op string, call func() error) error {
	m.update(func(s *models.Snapshot) {
		s.Loading = true
		s.Error = ""
	})
	err := call()
	m.update(func(s *models.Snapshot) {
		s.Loading = false
		if err != nil {
			s.Error = userMessage(err)
		}
	})
	if err != nil {
		m.logger.InfoContext(ctx, op+" failed", "error", err)
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

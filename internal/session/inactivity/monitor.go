// Package inactivity logs a session out after a period without user activity.
package inactivity

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"consoleauth/internal/platform/clock"
	"consoleauth/internal/platform/logger"
	"consoleauth/internal/session/models"
)

// Session is the part of session.Manager the monitor needs.
type Session interface {
	Subscribe(fn func(models.Snapshot)) (unsubscribe func())
	Snapshot() models.Snapshot
	Logout(ctx context.Context)
}

// Monitor arms an idle timer while the session is authenticated. Touch
// records activity; when the timer runs out the session is logged out.
type Monitor struct {
	session Session
	timeout time.Duration
	clock   clock.Clock
	logger  *slog.Logger

	mu           sync.Mutex
	ctx          context.Context
	timer        *clock.Timer
	armed        bool
	started      bool
	stopped      bool
	lastActivity time.Time
	lastSeq      uint64
	unsubscribe  func()
}

type Option func(*Monitor)

func WithClock(c clock.Clock) Option {
	return func(m *Monitor) {
		if c != nil {
			m.clock = c
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// New returns a monitor that logs session out after timeout of inactivity.
func New(session Session, timeout time.Duration, opts ...Option) (*Monitor, error) {
	if session == nil {
		return nil, errors.New("session is required")
	}
	if timeout <= 0 {
		return nil, errors.New("idle timeout must be positive")
	}
	m := &Monitor{
		session: session,
		timeout: timeout,
		clock:   clock.Real(),
		logger:  logger.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Start subscribes to the session and arms the timer if it is already
// authenticated. The monitor stops when ctx is done or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started || m.stopped {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.ctx = context.WithoutCancel(ctx)
	m.mu.Unlock()

	unsubscribe := m.session.Subscribe(m.observe)
	m.mu.Lock()
	m.unsubscribe = unsubscribe
	m.mu.Unlock()
	m.observe(m.session.Snapshot())

	go func() {
		<-ctx.Done()
		m.Stop()
	}()
}

// Touch records user activity and pushes the deadline back.
func (m *Monitor) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastActivity = m.clock.Now()
	if m.armed {
		m.timer.Reset(m.timeout)
	}
}

// LastActivity is the time of the last Touch or arming.
func (m *Monitor) LastActivity() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActivity
}

// Armed reports whether the idle timer is running.
func (m *Monitor) Armed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armed
}

// Stop disarms the timer and unsubscribes. It is idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.disarmLocked()
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (m *Monitor) observe(snap models.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped || snap.Seq < m.lastSeq {
		return
	}
	m.lastSeq = snap.Seq
	switch {
	case snap.Status == models.StatusAuthenticated && !m.armed:
		m.lastActivity = m.clock.Now()
		m.armed = true
		if m.timer == nil {
			m.timer = m.clock.AfterFunc(m.timeout, m.expire)
		} else {
			m.timer.Reset(m.timeout)
		}
	case snap.Status != models.StatusAuthenticated && m.armed:
		m.disarmLocked()
	}
}

func (m *Monitor) disarmLocked() {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.armed = false
}

func (m *Monitor) expire() {
	m.mu.Lock()
	if m.stopped || !m.armed {
		m.mu.Unlock()
		return
	}
	idle := m.clock.Now().Sub(m.lastActivity)
	if idle < m.timeout {
		m.timer.Reset(m.timeout - idle)
		m.mu.Unlock()
		return
	}
	m.armed = false
	ctx := m.ctx
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "idle timeout reached, logging out", "idle", idle.String())
	m.session.Logout(ctx)
}

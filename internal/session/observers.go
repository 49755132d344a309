package session

import (
	"github.com/google/uuid"

	"consoleauth/internal/session/models"
)

type subscriber struct {
	id string
	fn func(models.Snapshot)
}

// Subscribe registers fn to receive every snapshot published after a
// transition. fn runs synchronously on the goroutine that caused the
// transition and must not block. The returned func unsubscribes and is safe to
// call more than once.
func (m *Manager) Subscribe(fn func(models.Snapshot)) (unsubscribe func()) {
	id := uuid.NewString()
	m.subsMu.Lock()
	m.subs = append(m.subs, subscriber{id: id, fn: fn})
	m.subsMu.Unlock()

	return func() {
		m.subsMu.Lock()
		defer m.subsMu.Unlock()
		for i, s := range m.subs {
			if s.id == id {
				m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
				return
			}
		}
	}
}

func (m *Manager) notify(snap models.Snapshot) {
	m.subsMu.Lock()
	subs := make([]subscriber, len(m.subs))
	copy(subs, m.subs)
	m.subsMu.Unlock()

	for _, s := range subs {
		s.fn(snap.Clone())
	}
}

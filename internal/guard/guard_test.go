package guard

import (
	"sync"

	"consoleauth/internal/session/models"
)

// fakeSource is a hand-driven SessionSource.
type fakeSource struct {
	mu        sync.Mutex
	snap      models.Snapshot
	subs      map[int]func(models.Snapshot)
	next      int
	ready     chan struct{}
	readyOnce sync.Once
}

func newFakeSource(snap models.Snapshot) *fakeSource {
	f := &fakeSource{snap: snap, subs: map[int]func(models.Snapshot){}, ready: make(chan struct{})}
	if snap.Status.Resolved() {
		close(f.ready)
		f.readyOnce.Do(func() {})
	}
	return f
}

func (f *fakeSource) Snapshot() models.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeSource) Ready() <-chan struct{} { return f.ready }

func (f *fakeSource) Subscribe(fn func(models.Snapshot)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

func (f *fakeSource) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeSource) publish(snap models.Snapshot) {
	f.mu.Lock()
	f.snap = snap
	subs := make([]func(models.Snapshot), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	if snap.Status.Resolved() {
		f.readyOnce.Do(func() { close(f.ready) })
	}
	for _, fn := range subs {
		fn(snap)
	}
}

func hydrating() models.Snapshot {
	return models.Snapshot{Status: models.StatusHydrating, Loading: true}
}

func signedIn(roles []string, perms ...string) models.Snapshot {
	s := models.Snapshot{
		Status:      models.StatusAuthenticated,
		User:        &models.User{ID: "u1", Username: "alice"},
		AccessToken: "tok",
		Permissions: perms,
	}
	for _, r := range roles {
		s.Roles = append(s.Roles, models.Role{Name: r, IsEnabled: true})
	}
	return s.Normalize()
}

package token

import (
	"context"
	"sync"

	"consoleauth/internal/session/models"
)

// MemoryStore keeps credentials in process memory for tests and ephemeral
// sessions.
type MemoryStore struct {
	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	user         *models.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) AccessToken(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken, nil
}

func (s *MemoryStore) SetAccessToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = token
	return nil
}

func (s *MemoryStore) RemoveAccessToken(ctx context.Context) error {
	return s.SetAccessToken(ctx, "")
}

func (s *MemoryStore) RefreshToken(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken, nil
}

func (s *MemoryStore) SetRefreshToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshToken = token
	return nil
}

func (s *MemoryStore) RemoveRefreshToken(ctx context.Context) error {
	return s.SetRefreshToken(ctx, "")
}

func (s *MemoryStore) User(_ context.Context) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.Clone(), nil
}

func (s *MemoryStore) SetUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user.Clone()
	return nil
}

func (s *MemoryStore) RemoveUser(ctx context.Context) error {
	return s.SetUser(ctx, nil)
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken, s.refreshToken, s.user = "", "", nil
	return nil
}

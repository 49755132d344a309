// Package token persists the session's credentials and decodes bearer tokens
// locally.
//
// Store implementations are pure storage: they never judge whether a token is
// usable. Expiry decisions live in Clock.
package token

import (
	"context"

	"consoleauth/internal/session/models"
)

// Store persists the access token, refresh token and cached user snapshot.
//
// Error Contract:
//   - Absent keys return the zero value and a nil error.
//   - Clear removes all three keys in one operation.
//   - Infrastructure failures are returned wrapped with context.
type Store interface {
	AccessToken(ctx context.Context) (string, error)
	SetAccessToken(ctx context.Context, token string) error
	RemoveAccessToken(ctx context.Context) error

	RefreshToken(ctx context.Context) (string, error)
	SetRefreshToken(ctx context.Context, token string) error
	RemoveRefreshToken(ctx context.Context) error

	User(ctx context.Context) (*models.User, error)
	SetUser(ctx context.Context, user *models.User) error
	RemoveUser(ctx context.Context) error

	Clear(ctx context.Context) error
}

// SavePair stores both tokens of a pair.
func SavePair(ctx context.Context, s Store, pair models.TokenPair) error {
	if err := s.SetAccessToken(ctx, pair.AccessToken); err != nil {
		return err
	}
	return s.SetRefreshToken(ctx, pair.RefreshToken)
}

package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"consoleauth/internal/session/models"
	"consoleauth/pkg/platform/sentinel"
)

const (
	defaultRedisPrefix = "consoleauth:session:"

	accessTokenKey  = "access_token"
	refreshTokenKey = "refresh_token"
	userKey         = "user"
)

// RedisStore keeps credentials in Redis so several console processes on one
// workstation or kiosk share a session. Keys never expire on their own; the
// session layer decides when to clear them.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithPrefix namespaces the three keys.
func WithPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewRedisStore wraps an existing client. The client lifecycle stays with the
// caller.
func NewRedisStore(client redis.UniversalClient, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{client: client, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *RedisStore) key(name string) string {
	return s.prefix + name
}

func (s *RedisStore) getString(ctx context.Context, name string) (string, error) {
	val, err := s.client.Get(ctx, s.key(name)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w: %w", name, sentinel.ErrUnavailable, err)
	}
	return val, nil
}

func (s *RedisStore) setString(ctx context.Context, name, value string) error {
	if value == "" {
		return s.del(ctx, name)
	}
	if err := s.client.Set(ctx, s.key(name), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w: %w", name, sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) del(ctx context.Context, names ...string) error {
	keys := make([]string, 0, len(names))
	for _, n := range names {
		keys = append(keys, s.key(n))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) AccessToken(ctx context.Context) (string, error) {
	return s.getString(ctx, accessTokenKey)
}

func (s *RedisStore) SetAccessToken(ctx context.Context, token string) error {
	return s.setString(ctx, accessTokenKey, token)
}

func (s *RedisStore) RemoveAccessToken(ctx context.Context) error {
	return s.del(ctx, accessTokenKey)
}

func (s *RedisStore) RefreshToken(ctx context.Context) (string, error) {
	return s.getString(ctx, refreshTokenKey)
}

func (s *RedisStore) SetRefreshToken(ctx context.Context, token string) error {
	return s.setString(ctx, refreshTokenKey, token)
}

func (s *RedisStore) RemoveRefreshToken(ctx context.Context) error {
	return s.del(ctx, refreshTokenKey)
}

func (s *RedisStore) User(ctx context.Context) (*models.User, error) {
	raw, err := s.getString(ctx, userKey)
	if err != nil || raw == "" {
		return nil, err
	}
	var user models.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, fmt.Errorf("decode cached user: %w: %w", sentinel.ErrMalformed, err)
	}
	return &user, nil
}

func (s *RedisStore) SetUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return s.del(ctx, userKey)
	}
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode cached user: %w", err)
	}
	return s.setString(ctx, userKey, string(data))
}

func (s *RedisStore) RemoveUser(ctx context.Context) error {
	return s.del(ctx, userKey)
}

// Clear deletes all three keys with a single DEL, which Redis applies
// atomically.
func (s *RedisStore) Clear(ctx context.Context) error {
	return s.del(ctx, accessTokenKey, refreshTokenKey, userKey)
}

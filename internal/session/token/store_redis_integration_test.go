//go:build integration

package token_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"consoleauth/internal/session/models"
	"consoleauth/internal/session/token"
	"consoleauth/pkg/testutil/containers"
)

const testPrefix = "test:session:"

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.Redis
	store *token.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.StartRedis(s.T())
	s.store = token.NewRedisStore(s.redis.Client, token.WithPrefix(testPrefix))
}

func (s *RedisStoreSuite) SetupTest() {
	s.redis.Reset(s.T())
}

func (s *RedisStoreSuite) TestRoundTripAndClear() {
	ctx := context.Background()
	s.Require().NoError(token.SavePair(ctx, s.store, models.TokenPair{AccessToken: "at", RefreshToken: "rt"}))
	s.Require().NoError(s.store.SetUser(ctx, &models.User{ID: "u-1", Email: "a@example.com"}))

	user, err := s.store.User(ctx)
	s.Require().NoError(err)
	s.Equal("a@example.com", user.Email)

	s.Len(s.redis.Keys(s.T(), testPrefix), 3)

	s.Require().NoError(s.store.Clear(ctx))
	s.Empty(s.redis.Keys(s.T(), testPrefix))
}

func (s *RedisStoreSuite) TestEmptyValueDeletesKey() {
	ctx := context.Background()
	s.Require().NoError(s.store.SetAccessToken(ctx, "at"))
	s.Require().NoError(s.store.SetAccessToken(ctx, ""))

	n, err := s.redis.Client.Exists(ctx, testPrefix+"access_token").Result()
	s.Require().NoError(err)
	s.Zero(n)
}

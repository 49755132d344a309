//go:build integration

// Package containers starts throwaway backends for integration tests.
package containers

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

const redisImage = "redis:7-alpine"

// Redis is a running container plus a connected client. Both are torn down
// by t.Cleanup.
type Redis struct {
	URL    string
	Client *redis.Client
}

// StartRedis fails the test if the container cannot start or answer a ping.
func StartRedis(t *testing.T) *Redis {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, redisImage)
	if err != nil {
		t.Fatalf("start %s: %v", redisImage, err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("redis connection string: %v", err)
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse %q: %v", url, err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("ping redis: %v", err)
	}
	return &Redis{URL: url, Client: client}
}

// Keys lists keys under prefix, failing the test on error.
func (r *Redis) Keys(t *testing.T, prefix string) []string {
	t.Helper()
	keys, err := r.Client.Keys(context.Background(), prefix+"*").Result()
	if err != nil {
		t.Fatalf("list keys %q: %v", prefix, err)
	}
	return keys
}

// Reset drops every key so tests sharing a container start empty.
func (r *Redis) Reset(t *testing.T) {
	t.Helper()
	if err := r.Client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("flush redis: %v", err)
	}
}

package config

import (
	"os"
	"strconv"
	"time"
)

// Token store backends.
const (
	StoreFile   = "file"
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config captures console-level configuration.
type Config struct {
	APIBaseURL  string
	HTTPTimeout time.Duration

	// TokenStore selects the credential backend: file, memory or redis.
	TokenStore string
	// Home is the directory holding the file-backed session.
	Home string

	Redis RedisConfig

	CheckInterval           time.Duration
	RefreshThresholdMinutes int
	// IdleTimeout logs the user out after inactivity. Zero disables it.
	IdleTimeout time.Duration

	// Addr is where `serve` listens.
	Addr string

	LogLevel  string
	LogFormat string
}

// RedisConfig configures the shared-session backend.
type RedisConfig struct {
	URL          string
	Prefix       string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PermissionCacheTTL bounds how long async authorization answers are reused.
var PermissionCacheTTL = 5 * time.Minute

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		APIBaseURL:              envString("CONSOLEAUTH_API_URL", "http://localhost:8080/api/v1"),
		HTTPTimeout:             envDuration("CONSOLEAUTH_HTTP_TIMEOUT", 30*time.Second),
		TokenStore:              envString("CONSOLEAUTH_TOKEN_STORE", StoreFile),
		Home:                    os.Getenv("CONSOLEAUTH_HOME"),
		CheckInterval:           envDuration("CONSOLEAUTH_CHECK_INTERVAL", time.Minute),
		RefreshThresholdMinutes: envInt("CONSOLEAUTH_REFRESH_THRESHOLD_MINUTES", 5),
		IdleTimeout:             envDuration("CONSOLEAUTH_IDLE_TIMEOUT", 0),
		Addr:                    envString("CONSOLEAUTH_ADDR", ":8090"),
		LogLevel:                envString("CONSOLEAUTH_LOG_LEVEL", "info"),
		LogFormat:               envString("CONSOLEAUTH_LOG_FORMAT", "text"),
		Redis: RedisConfig{
			URL:          os.Getenv("CONSOLEAUTH_REDIS_URL"),
			Prefix:       envString("CONSOLEAUTH_REDIS_PREFIX", "consoleauth:session:"),
			PoolSize:     envInt("CONSOLEAUTH_REDIS_POOL_SIZE", 4),
			MinIdleConns: envInt("CONSOLEAUTH_REDIS_MIN_IDLE_CONNS", 0),
			DialTimeout:  envDuration("CONSOLEAUTH_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("CONSOLEAUTH_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("CONSOLEAUTH_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// Package session holds per-user session records for the SSO flow. A record
// is an opaque byte value keyed by the session id carried in the browser
// cookie; the sso package owns its shape.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var ErrNotFound = errors.New("session: not found")

// Store is an atomic per-key read/write store. Implementations must be safe
// for concurrent use; no cross-key transactions are provided.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Clear(ctx context.Context, key string) error
}

type Config struct {
	Driver        string // memory | redis
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Prefix        string
	CookieSecure  bool
}

// ConfigFromEnv reads the session store settings.
func ConfigFromEnv() Config {
	cfg := Config{
		Driver:        strings.ToLower(strings.TrimSpace(os.Getenv("SESSION_STORE"))),
		TTL:           24 * time.Hour,
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		Prefix:        "esi-sso:session",
		CookieSecure:  os.Getenv("SESSION_COOKIE_SECURE") == "1",
	}
	if cfg.Driver == "" {
		cfg.Driver = "memory"
	}
	if v := os.Getenv("SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.TTL = d
		}
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RedisDB = n
		}
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	return cfg
}

// New builds the store selected by cfg.Driver.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "memory", "":
		return NewMemoryStore(cfg.TTL), nil
	case "redis":
		return NewRedisStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("session: unknown store driver %q", cfg.Driver)
	}
}

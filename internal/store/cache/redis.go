package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"levelcore/internal/model"
)

// RedisConfig configures the Redis-backed verdict cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

const keyPrefix = "levelcore:verdict:"

// Redis is a model.VerdictCache backed by go-redis, for deployments
// running more than one scheduler process against a shared cache.
// Grounded on the teacher's internal/store/redis.Writer connection
// setup (client construction + startup ping), repurposed from candle
// writes to verdict GET/SETEX.
type Redis struct {
	client *goredis.Client
}

// NewRedis dials addr and pings it before returning, matching the
// teacher's fail-fast-on-construction Redis writer.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	client := goredis.NewClient(&goredis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: redis ping %s: %w", cfg.Addr, err)
	}
	slog.Info("connected to redis verdict cache", "addr", cfg.Addr)
	return &Redis{client: client}, nil
}

// Get fetches and decodes the verdict stored under key, if any.
func (r *Redis) Get(key string) (*model.VerdictSnapshot, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if err != goredis.Nil {
			slog.Warn("cache: redis get failed", "key", key, "error", err)
		}
		return nil, false
	}

	var v model.VerdictSnapshot
	if err := json.Unmarshal(raw, &v); err != nil {
		slog.Warn("cache: redis value decode failed", "key", key, "error", err)
		return nil, false
	}
	return &v, true
}

// Set encodes v and stores it under key with an expiry of ttl.
func (r *Redis) Set(key string, v *model.VerdictSnapshot, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		slog.Warn("cache: redis value encode failed", "key", key, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.client.Set(ctx, keyPrefix+key, raw, ttl).Err(); err != nil {
		slog.Warn("cache: redis set failed", "key", key, "error", err)
	}
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Ping reports whether the connection is alive, for the health endpoint.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

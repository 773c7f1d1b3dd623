package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Store shared across processes. Values are JSON encoded and expire
// through the server's native TTL, so a read after expiry is a miss.
type Redis[T any] struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
	Logger *slog.Logger
}

// RedisOptions configures the shared client.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// ConnectRedis opens a client and pings it.
func ConnectRedis(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		Protocol: 2,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return client, nil
}

func (r *Redis[T]) key(k string) string {
	return r.Prefix + k
}

func (r *Redis[T]) Get(ctx context.Context, key string) (T, bool) {
	var zero T
	raw, err := r.Client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger().Warn("cache read failed", "key", r.key(key), "err", err)
		}
		return zero, false
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		r.logger().Warn("cache decode failed", "key", r.key(key), "err", err)
		return zero, false
	}
	return v, true
}

func (r *Redis[T]) Set(ctx context.Context, key string, value T) {
	if r.TTL <= 0 {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		r.logger().Warn("cache encode failed", "key", r.key(key), "err", err)
		return
	}
	if err := r.Client.Set(ctx, r.key(key), raw, r.TTL).Err(); err != nil {
		r.logger().Warn("cache write failed", "key", r.key(key), "err", err)
	}
}

func (r *Redis[T]) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// New returns a Redis-backed store when client is non-nil, else an in-process TTL store.
func New[T any](client *redis.Client, prefix string, ttl time.Duration) Store[T] {
	if client != nil {
		return &Redis[T]{Client: client, Prefix: prefix, TTL: ttl}
	}
	return NewTTL[T](ttl)
}

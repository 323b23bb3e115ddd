package keystore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/halcyonsec/sentinel/internal/models"
)

// RedisStore implements Store on top of Redis. INCR gives the atomic
// increment, EXPIRE on first increment gives the fixed window.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a RedisStore. All keys are namespaced under prefix.
func NewRedisStore(addr, password string, db int, prefix string) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisStore{client: client, prefix: prefix}
}

// NewRedisStoreWithClient wraps an existing client, for callers that manage
// their own connection (cluster setups, tests against miniredis).
func NewRedisStoreWithClient(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

// unavailable marks a failed command as infrastructure trouble so callers
// can tell a store outage from domain errors.
func unavailable(op, key string, err error) error {
	return fmt.Errorf("redis %s %q: %w: %w", op, key, models.ErrStoreUnavailable, err)
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrKeyMissing
	}
	if err != nil {
		return "", unavailable("get", key, err)
	}
	return val, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return unavailable("set", key, err)
	}
	return nil
}

func (s *RedisStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	k := s.key(key)
	count, err := s.client.Incr(ctx, k).Result()
	if err != nil {
		return 0, unavailable("incr", key, err)
	}
	// First hit creates the key: pin the window. NX keeps a racing second
	// hit from resetting it.
	if count == 1 {
		if err := s.client.ExpireNX(ctx, k, ttl).Err(); err != nil {
			return count, unavailable("expire", key, err)
		}
	}
	return count, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return unavailable("del", key, err)
	}
	return nil
}

func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.client.TTL(ctx, s.key(key)).Result()
	if err != nil {
		return 0, unavailable("ttl", key, err)
	}
	// -2: key missing; -1: no expiry set.
	if ttl < 0 {
		return 0, ErrKeyMissing
	}
	return ttl, nil
}

// Ping checks connectivity, for startup health checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

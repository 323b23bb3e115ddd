package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/halcyonsec/sentinel/internal/keystore"
)

// RateLimiter is a generic keyed counter with a fixed decay window. Counters
// live in the store under the caller's key; the window is pinned when the
// counter is created and the counter vanishes on TTL. No sliding windows and
// no token-bucket refill: callers needing smoother behavior choose key
// granularity accordingly.
type RateLimiter struct {
	store  keystore.Store
	logger *slog.Logger
}

// NewRateLimiter creates a RateLimiter over the given store.
func NewRateLimiter(store keystore.Store, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		store:  store,
		logger: logger,
	}
}

// Hit atomically increments the counter for key, creating it with the given
// TTL if absent, and returns the new count.
func (l *RateLimiter) Hit(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.store.Increment(ctx, key, ttl)
	if err != nil {
		return 0, fmt.Errorf("hit %q: %w", key, err)
	}
	return count, nil
}

// Attempts returns the current count for key; zero when the counter does not
// exist or has expired.
func (l *RateLimiter) Attempts(ctx context.Context, key string) (int64, error) {
	val, err := l.store.Get(ctx, key)
	if errors.Is(err, keystore.ErrKeyMissing) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("attempts %q: %w", key, err)
	}

	var count int64
	if _, err := fmt.Sscan(val, &count); err != nil {
		l.logger.Warn("non-numeric rate counter", slog.String("key", key), slog.String("value", val))
		return 0, nil
	}
	return count, nil
}

// TooManyAttempts reports whether key has reached max hits in its window.
func (l *RateLimiter) TooManyAttempts(ctx context.Context, key string, max int64) (bool, error) {
	count, err := l.Attempts(ctx, key)
	if err != nil {
		return false, err
	}
	return count >= max, nil
}

// Remaining returns how many hits are left before max; never negative.
func (l *RateLimiter) Remaining(ctx context.Context, key string, max int64) (int64, error) {
	count, err := l.Attempts(ctx, key)
	if err != nil {
		return 0, err
	}
	remaining := max - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// AvailableIn returns the time until the counter for key resets; zero when
// no counter exists.
func (l *RateLimiter) AvailableIn(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := l.store.TTL(ctx, key)
	if errors.Is(err, keystore.ErrKeyMissing) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("available in %q: %w", key, err)
	}
	return ttl, nil
}

// Clear removes the counter for key, used after a qualifying success to
// reset early.
func (l *RateLimiter) Clear(ctx context.Context, key string) error {
	if err := l.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("clear %q: %w", key, err)
	}
	return nil
}

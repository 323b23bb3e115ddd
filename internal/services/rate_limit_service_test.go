package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonsec/sentinel/internal/keystore"
	"github.com/halcyonsec/sentinel/internal/services"
)

func TestRateLimiterHit_CountsMonotonically(t *testing.T) {
	clock := keystore.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	limiter := services.NewRateLimiter(keystore.NewMemoryStore(clock), testLogger())
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		count, err := limiter.Hit(ctx, "api:tenant-1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, count)
	}

	attempts, err := limiter.Attempts(ctx, "api:tenant-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), attempts)
}

func TestRateLimiterHit_WindowExpiryResetsCounter(t *testing.T) {
	clock := keystore.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	limiter := services.NewRateLimiter(keystore.NewMemoryStore(clock), testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := limiter.Hit(ctx, "api:tenant-1", time.Minute)
		require.NoError(t, err)
	}

	// The window is pinned at creation; later hits do not extend it.
	clock.Advance(30 * time.Second)
	_, err := limiter.Hit(ctx, "api:tenant-1", time.Minute)
	require.NoError(t, err)

	clock.Advance(31 * time.Second)
	count, err := limiter.Hit(ctx, "api:tenant-1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "expired counter should restart at one")
}

func TestRateLimiterTooManyAttempts(t *testing.T) {
	clock := keystore.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	limiter := services.NewRateLimiter(keystore.NewMemoryStore(clock), testLogger())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := limiter.Hit(ctx, "auth:alice", time.Minute)
		require.NoError(t, err)
	}

	tooMany, err := limiter.TooManyAttempts(ctx, "auth:alice", 5)
	require.NoError(t, err)
	assert.False(t, tooMany)

	_, err = limiter.Hit(ctx, "auth:alice", time.Minute)
	require.NoError(t, err)

	tooMany, err = limiter.TooManyAttempts(ctx, "auth:alice", 5)
	require.NoError(t, err)
	assert.True(t, tooMany)

	remaining, err := limiter.Remaining(ctx, "auth:alice", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(0), remaining)
}

func TestRateLimiterClear_ResetsImmediately(t *testing.T) {
	clock := keystore.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	limiter := services.NewRateLimiter(keystore.NewMemoryStore(clock), testLogger())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := limiter.Hit(ctx, "auth:alice", time.Minute)
		require.NoError(t, err)
	}

	require.NoError(t, limiter.Clear(ctx, "auth:alice"))

	attempts, err := limiter.Attempts(ctx, "auth:alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), attempts)

	availableIn, err := limiter.AvailableIn(ctx, "auth:alice")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), availableIn)
}

func TestRateLimiterAvailableIn_TracksWindow(t *testing.T) {
	clock := keystore.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	limiter := services.NewRateLimiter(keystore.NewMemoryStore(clock), testLogger())
	ctx := context.Background()

	_, err := limiter.Hit(ctx, "op:export", 10*time.Minute)
	require.NoError(t, err)

	clock.Advance(4 * time.Minute)

	availableIn, err := limiter.AvailableIn(ctx, "op:export")
	require.NoError(t, err)
	assert.Equal(t, 6*time.Minute, availableIn)
}

func TestRateLimiterHit_ConcurrentHitsLoseNoIncrement(t *testing.T) {
	clock := keystore.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	limiter := services.NewRateLimiter(keystore.NewMemoryStore(clock), testLogger())
	ctx := context.Background()

	const workers = 100
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := limiter.Hit(ctx, "api:tenant-1", time.Minute)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	attempts, err := limiter.Attempts(ctx, "api:tenant-1")
	require.NoError(t, err)
	assert.Equal(t, int64(workers), attempts)
}

func TestRateLimiterAttempts_MissingKeyIsZero(t *testing.T) {
	clock := keystore.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	limiter := services.NewRateLimiter(keystore.NewMemoryStore(clock), testLogger())

	attempts, err := limiter.Attempts(context.Background(), "never-hit")
	require.NoError(t, err)
	assert.Equal(t, int64(0), attempts)
}

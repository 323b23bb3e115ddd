// Package keystore defines the counter/blob store every stateful component
// depends on, plus the clock abstraction. Expiry is the store's business:
// counters and challenge blobs disappear on TTL, no in-process sweeping.
package keystore

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrKeyMissing is returned by Get and TTL when the key does not exist or
// has expired.
var ErrKeyMissing = errors.New("key not found")

// Store is a key-value counter/blob store with atomic increment and expiry.
// Increment must be atomic at the store level: two concurrent increments on
// the same key never lose a count. Implementations report backend failures
// wrapped in models.ErrStoreUnavailable so callers can apply their own
// fail-open or fail-closed policy.
type Store interface {
	// Get returns the value at key, or ErrKeyMissing.
	Get(ctx context.Context, key string) (string, error)
	// Set writes value at key with the given TTL, replacing any prior value.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Increment atomically increments the counter at key, creating it with
	// the given TTL if absent, and returns the new count. The TTL is fixed
	// at creation; later increments do not extend it.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// TTL returns the remaining lifetime of key, or ErrKeyMissing.
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// Clock is the injected time source. Components never call time.Now
// directly, which keeps window arithmetic testable.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FakeClock is a manually advanced Clock for tests.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a FakeClock pinned at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

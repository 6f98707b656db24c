// Package cache provides the Redis-backed hot path for conversation context
// and rate-limit counters.
//
// The package exposes a small Store abstraction over the handful of commands
// the gateway needs (GET, SET EX, DEL, INCR, EXPIRE, TTL) so that services
// and middleware can run against an in-memory implementation in tests. The
// production implementation wraps go-redis; see redis.go.
//
// Conversation context documents live in context.go together with their
// schema validation and the cache-key convention.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Store.Get when the key does not exist.
var ErrMiss = errors.New("cache: miss")

// Store is the minimal command surface the gateway uses. Implementations
// must be safe for concurrent use.
type Store interface {
	// Get returns the string value at key, or ErrMiss.
	Get(ctx context.Context, key string) (string, error)

	// SetEX stores value at key with the given TTL.
	SetEX(ctx context.Context, key, value string, ttl time.Duration) error

	// Del removes the given keys. Missing keys are not an error.
	Del(ctx context.Context, keys ...string) error

	// Incr atomically increments the integer at key, creating it at 0
	// first when absent, and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)

	// Expire sets the TTL of an existing key. It reports whether the key
	// existed.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// TTL returns the remaining lifetime of key. Keys without an expiry
	// report a negative duration.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Ping verifies connectivity for health checks.
	Ping(ctx context.Context) error
}

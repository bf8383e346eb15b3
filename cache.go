package blazeorm

import (
	"context"
	"fmt"
	"time"
)

// Cache is the second-level cache consulted by sessions. It stores serialized
// field values, never live instances. Implementations must tolerate one
// writer per key at a time; package cache provides an in-memory backend.
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns nil, nil if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with an optional TTL.
	// If ttl is 0, the value should not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes all values with the given prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Clear removes all values from the cache.
	Clear(ctx context.Context) error
}

// CacheKey identifies the cached row of one instance.
type CacheKey struct {
	Entity string
	PK     any
}

// String returns the string representation of the cache key.
func (k CacheKey) String() string {
	return fmt.Sprintf("%s:%v", k.Entity, k.PK)
}

// Prefix returns the key prefix shared by every instance of the entity.
func (k CacheKey) Prefix() string {
	return k.Entity + ":"
}

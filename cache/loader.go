package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/KipianiNikoloz/blazeorm"
)

// LoadFunc loads the value of a missing key. It returns nil when the key
// has no value, which is not stored.
type LoadFunc func(ctx context.Context) ([]byte, error)

// Loader reads through a cache and collapses concurrent loads of the same
// key into one call.
type Loader struct {
	cache blazeorm.Cache
	ttl   time.Duration
	group singleflight.Group
}

// NewLoader returns a Loader storing loaded values in c for ttl.
func NewLoader(c blazeorm.Cache, ttl time.Duration) *Loader {
	return &Loader{cache: c, ttl: ttl}
}

// Load returns the cached value of key, calling fn on a miss. Cache read
// and write failures fall back to fn and are otherwise ignored.
func (l *Loader) Load(ctx context.Context, key string, fn LoadFunc) ([]byte, error) {
	if data, err := l.cache.Get(ctx, key); err == nil && data != nil {
		return data, nil
	}
	v, err, _ := l.group.Do(key, func() (any, error) {
		data, err := fn(ctx)
		if err != nil || data == nil {
			return data, err
		}
		_ = l.cache.Set(ctx, key, data, l.ttl)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	data, _ := v.([]byte)
	return data, nil
}

// Forget removes key from the cache.
func (l *Loader) Forget(ctx context.Context, key string) error {
	l.group.Forget(key)
	return l.cache.Delete(ctx, key)
}

// ForgetPrefix removes every key starting with prefix from the cache.
func (l *Loader) ForgetPrefix(ctx context.Context, prefix string) error {
	return l.cache.DeletePrefix(ctx, prefix)
}

// Cache returns the underlying cache.
func (l *Loader) Cache() blazeorm.Cache { return l.cache }

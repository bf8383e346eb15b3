// Package cache provides second-level cache backends for sessions and the
// codec used to store instance field values in them.
//
// A session never stores live instances in a cache. It stores the encoded
// field values of a row under blazeorm.CacheKey and decodes a fresh copy
// on every hit:
//
//	c := cache.NewMemory()
//	s, err := session.New(drv, reg, session.WithCache(c), session.WithCacheTTL(time.Minute))
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/KipianiNikoloz/blazeorm"
)

// Memory is an in-memory blazeorm.Cache. It is safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	items map[string]item
	now   func() time.Time
	max   int
}

type item struct {
	data    []byte
	expires time.Time // zero means never
}

// MemoryOption configures a Memory cache.
type MemoryOption func(*Memory)

// WithClock sets the clock used for expiration.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// WithMaxEntries bounds the number of entries. When the bound is reached,
// expired entries are evicted first, then an arbitrary entry.
func WithMaxEntries(n int) MemoryOption {
	return func(m *Memory) {
		m.max = n
	}
}

// NewMemory returns an empty in-memory cache.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{items: make(map[string]item), now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns a copy of the value stored under key, or nil if the key is
// absent or expired.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	it, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if m.expired(it) {
		m.mu.Lock()
		if cur, ok := m.items[key]; ok && m.expired(cur) {
			delete(m.items, key)
		}
		m.mu.Unlock()
		return nil, nil
	}
	return append([]byte(nil), it.data...), nil
}

// Set stores a copy of value under key. A zero ttl never expires.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	it := item{data: append([]byte(nil), value...)}
	if ttl > 0 {
		it.expires = m.now().Add(ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[key]; !ok && m.max > 0 && len(m.items) >= m.max {
		m.evict()
	}
	m.items[key] = it
	return nil
}

// Delete removes key.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

// DeletePrefix removes every key starting with prefix.
func (m *Memory) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.items {
		if strings.HasPrefix(k, prefix) {
			delete(m.items, k)
		}
	}
	return nil
}

// Clear removes every key.
func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	m.items = make(map[string]item)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *Memory) expired(it item) bool {
	return !it.expires.IsZero() && !m.now().Before(it.expires)
}

// evict must be called with mu held.
func (m *Memory) evict() {
	for k, it := range m.items {
		if m.expired(it) {
			delete(m.items, k)
		}
	}
	if len(m.items) < m.max {
		return
	}
	for k := range m.items {
		delete(m.items, k)
		return
	}
}

// Noop is a cache that stores nothing.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, error) { return nil, nil }
func (Noop) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (Noop) Delete(context.Context, string) error { return nil }
func (Noop) DeletePrefix(context.Context, string) error { return nil }
func (Noop) Clear(context.Context) error { return nil }

var (
	_ blazeorm.Cache = (*Memory)(nil)
	_ blazeorm.Cache = Noop{}
)

package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(WithClock(func() time.Time { return now }))

	data, err := m.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, data)

	value := []byte("v1")
	require.NoError(t, m.Set(ctx, "Author:1", value, time.Minute))
	value[0] = 'x'
	data, err = m.Get(ctx, "Author:1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), data, "values are copied on set")

	data[0] = 'y'
	data, _ = m.Get(ctx, "Author:1")
	assert.Equal(t, []byte("v1"), data, "values are copied on get")

	now = now.Add(time.Minute)
	data, err = m.Get(ctx, "Author:1")
	require.NoError(t, err)
	assert.Nil(t, data, "expired")
	assert.Zero(t, m.Len())

	require.NoError(t, m.Set(ctx, "Author:1", []byte("a"), 0))
	require.NoError(t, m.Set(ctx, "Author:2", []byte("b"), 0))
	require.NoError(t, m.Set(ctx, "Book:1", []byte("c"), 0))
	now = now.Add(24 * time.Hour)
	data, _ = m.Get(ctx, "Author:1")
	assert.Equal(t, []byte("a"), data, "zero ttl never expires")

	require.NoError(t, m.DeletePrefix(ctx, "Author:"))
	assert.Equal(t, 1, m.Len())
	require.NoError(t, m.Delete(ctx, "Book:1"))
	assert.Zero(t, m.Len())

	require.NoError(t, m.Set(ctx, "k", []byte("v"), 0))
	require.NoError(t, m.Clear(ctx))
	assert.Zero(t, m.Len())
}

func TestMemoryMaxEntries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory(WithMaxEntries(2))
	require.NoError(t, m.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, m.Set(ctx, "b", []byte("2"), 0))
	require.NoError(t, m.Set(ctx, "b", []byte("3"), 0))
	assert.Equal(t, 2, m.Len(), "overwrite does not evict")
	require.NoError(t, m.Set(ctx, "c", []byte("4"), 0))
	assert.Equal(t, 2, m.Len())
	data, _ := m.Get(ctx, "c")
	assert.Equal(t, []byte("4"), data)
}

func TestNoop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	var c Noop
	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	data, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestValuesCodec(t *testing.T) {
	t.Parallel()
	created := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	values := map[string]any{
		"id":         int64(7),
		"name":       "Ada",
		"score":      1.5,
		"active":     true,
		"created_at": created,
		"age":        nil,
	}
	data, err := EncodeValues(MsgPack, values)
	require.NoError(t, err)

	again, err := EncodeValues(MsgPack, values)
	require.NoError(t, err)
	assert.Equal(t, data, again, "map keys are sorted")

	got, err := DecodeValues(MsgPack, data)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got["id"])
	assert.Equal(t, "Ada", got["name"])
	assert.Equal(t, 1.5, got["score"])
	assert.Equal(t, true, got["active"])
	assert.True(t, created.Equal(got["created_at"].(time.Time)))
	v, ok := got["age"]
	assert.True(t, ok)
	assert.Nil(t, v)

	_, err = DecodeValues(MsgPack, []byte{0xc1})
	require.Error(t, err)
}

func TestLoader(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()
	l := NewLoader(m, time.Minute)

	var calls atomic.Int32
	load := func(context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte("row"), nil
	}
	data, err := l.Load(ctx, "Author:1", load)
	require.NoError(t, err)
	assert.Equal(t, []byte("row"), data)
	data, err = l.Load(ctx, "Author:1", load)
	require.NoError(t, err)
	assert.Equal(t, []byte("row"), data)
	assert.EqualValues(t, 1, calls.Load(), "second load is a cache hit")

	require.NoError(t, l.Forget(ctx, "Author:1"))
	_, err = l.Load(ctx, "Author:1", load)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())

	t.Run("missing values are not stored", func(t *testing.T) {
		data, err := l.Load(ctx, "Author:2", func(context.Context) ([]byte, error) { return nil, nil })
		require.NoError(t, err)
		assert.Nil(t, data)
		cached, _ := m.Get(ctx, "Author:2")
		assert.Nil(t, cached)
	})

	t.Run("errors propagate", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := l.Load(ctx, "Author:3", func(context.Context) ([]byte, error) { return nil, boom })
		require.ErrorIs(t, err, boom)
	})

	t.Run("prefix", func(t *testing.T) {
		require.NoError(t, l.ForgetPrefix(ctx, "Author:"))
		cached, _ := l.Cache().Get(ctx, "Author:1")
		assert.Nil(t, cached)
	})
}

func TestLoaderCollapsesConcurrentLoads(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := NewLoader(NewMemory(), 0)
	var (
		calls   atomic.Int32
		release = make(chan struct{})
		wg      sync.WaitGroup
	)
	load := func(context.Context) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("row"), nil
	}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := l.Load(ctx, "Book:1", load)
			assert.NoError(t, err)
			assert.Equal(t, []byte("row"), data)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.EqualValues(t, 1, calls.Load())
}

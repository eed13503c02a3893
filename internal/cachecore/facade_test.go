package cachecore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisbackend "github.com/blueberrycongee/aicore/caches/redis"
)

func newTestFacade(t *testing.T, withRemote bool) *Facade {
	t.Helper()
	cfg := Config{
		MemoryCacheSize:      100,
		DefaultTTL:           time.Hour,
		CompressionLevel:     6,
		CompressionThreshold: 4,
		TextHashThreshold:    1000,
	}

	if withRemote {
		mr := miniredis.RunT(t)
		backend, err := redisbackend.New(redisbackend.Config{
			Addr:         mr.Addr(),
			Namespace:    "test",
			DefaultTTL:   time.Hour,
			DialTimeout:  time.Second,
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		})
		require.NoError(t, err)
		cfg.Remote = backend
	}

	f, err := New(cfg, nil)
	require.NoError(t, err)
	return f
}

func TestFacadeCacheRoundTrip(t *testing.T) {
	f := newTestFacade(t, false)
	ctx := context.Background()

	value := []byte(`{"result":"ok"}`)
	f.Set(ctx, "k", value, time.Minute)

	got, ok := f.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, value, got)
}

func TestFacadeCacheRoundTripWithRemote(t *testing.T) {
	f := newTestFacade(t, true)
	ctx := context.Background()

	value := []byte(`{"result":"ok-remote"}`)
	f.Set(ctx, "k", value, time.Minute)

	// Force an L1 miss to exercise the remote promotion path.
	f.l1.delete("k")

	got, ok := f.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, value, got)
	assert.Equal(t, int64(1), f.Stats().HitsRemote)
}

func TestFacadeTTLExpiry(t *testing.T) {
	f := newTestFacade(t, false)
	ctx := context.Background()

	f.Set(ctx, "x", []byte("v"), 30*time.Millisecond)
	time.Sleep(60 * time.Millisecond)

	_, ok := f.Get(ctx, "x")
	assert.False(t, ok)
	assert.Equal(t, int64(1), f.Stats().EvictionsTTL)
}

func TestFacadeEncryptionAtRest(t *testing.T) {
	keyStr, err := GenerateFernetKey()
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	backend, err := redisbackend.New(redisbackend.Config{
		Addr:         mr.Addr(),
		Namespace:    "test",
		DefaultTTL:   time.Hour,
		DialTimeout:  time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	require.NoError(t, err)

	f, err := New(Config{
		MemoryCacheSize:      10,
		DefaultTTL:           time.Hour,
		TextHashThreshold:    1000,
		FernetKey:            keyStr,
		Remote:               backend,
	}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	secretText := "this text must never appear in the raw remote payload xyz"
	payload := fmt.Sprintf(`{"text":%q}`, secretText)
	f.Set(ctx, "secure-key", []byte(payload), time.Minute)

	raw, err := backend.Get(ctx, "secure-key")
	require.NoError(t, err)
	require.NotNil(t, raw)
	assert.NotContains(t, string(raw), secretText)
	assert.NotContains(t, string(raw), payload)

	got, ok := f.Get(ctx, "secure-key")
	require.True(t, ok)
	assert.Equal(t, payload, string(got))
}

func TestFacadeSingleFlight(t *testing.T) {
	f := newTestFacade(t, false)
	ctx := context.Background()

	var calls int64
	producer := func(ctx context.Context) ([]byte, error) {
		atomic.AddInt64(&calls, 1)
		time.Sleep(50 * time.Millisecond)
		return []byte("42"), nil
	}

	var wg sync.WaitGroup
	results := make([][]byte, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			v, err := f.GetOrCompute(ctx, "shared-key", time.Minute, producer)
			assert.NoError(t, err)
			results[idx] = v
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
	for _, v := range results {
		assert.Equal(t, []byte("42"), v)
	}
	assert.Equal(t, int64(1), f.Stats().Misses)
}

func TestFacadeSingleFlightPropagatesError(t *testing.T) {
	f := newTestFacade(t, false)
	ctx := context.Background()

	wantErr := assert.AnError
	_, err := f.GetOrCompute(ctx, "err-key", time.Minute, func(ctx context.Context) ([]byte, error) {
		return nil, wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	_, ok := f.Get(ctx, "err-key")
	assert.False(t, ok, "a failing producer must not populate the cache")
}

func TestFacadeInvalidateGlob(t *testing.T) {
	f := newTestFacade(t, false)
	ctx := context.Background()

	f.Set(ctx, "v1|summarize|a||", []byte("1"), time.Minute)
	f.Set(ctx, "v1|summarize|b||", []byte("2"), time.Minute)
	f.Set(ctx, "v1|sentiment|a||", []byte("3"), time.Minute)

	removed := f.Invalidate(ctx, "v1|summarize|*")
	assert.Equal(t, 2, removed)

	_, ok := f.Get(ctx, "v1|sentiment|a||")
	assert.True(t, ok)
}

package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"armor-gateway/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(fetch fetchFunc) *TokenCache {
	return &TokenCache{fetch: fetch, now: time.Now}
}

func TestTokenReusedInsideBufferWindow(t *testing.T) {
	var calls int32
	cache := newTestCache(func(ctx context.Context) (entity.Credential, error) {
		atomic.AddInt32(&calls, 1)
		return entity.Credential{Token: "tok-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
	})

	tok, err := cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	// Second call inside the 55-minute window must not exchange again.
	tok, err = cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTokenRefreshedPastBufferWindow(t *testing.T) {
	var calls int32
	now := time.Now()
	cache := newTestCache(func(ctx context.Context) (entity.Credential, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return entity.Credential{Token: "tok-1", ExpiresAt: now.Add(time.Hour)}, nil
		}
		return entity.Credential{Token: "tok-2", ExpiresAt: now.Add(2 * time.Hour)}, nil
	})

	_, err := cache.Token(context.Background())
	require.NoError(t, err)

	// Jump to 4 minutes before expiry: inside the buffer, so one refresh.
	cache.now = func() time.Time { return now.Add(56 * time.Minute) }

	tok, err := cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)

	_, err = cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "exactly one refresh expected")
}

func TestTokenConcurrentRefreshCollapses(t *testing.T) {
	var calls int32
	cache := newTestCache(func(ctx context.Context) (entity.Credential, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		return entity.Credential{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := cache.Token(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "tok", tok)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "concurrent callers must share one exchange")
}

func TestTokenExchangeFailure(t *testing.T) {
	cache := newTestCache(func(ctx context.Context) (entity.Credential, error) {
		return entity.Credential{}, entity.ErrAuth
	})

	_, err := cache.Token(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, entity.ErrAuth))

	// A failed exchange must not poison the slot: a later success works.
	cache.fetch = func(ctx context.Context) (entity.Credential, error) {
		return entity.Credential{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}
	tok, err := cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)
}

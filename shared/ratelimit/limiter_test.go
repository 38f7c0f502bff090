package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, limit int) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewLimiter(client, "test", Config{Limit: limit, Window: time.Minute}), mr
}

func TestLimiter_Allow(t *testing.T) {
	limiter, mr := newTestLimiter(t, 2)
	ctx := context.Background()

	require.NoError(t, limiter.Allow(ctx, "1.2.3.4"))
	require.NoError(t, limiter.Allow(ctx, "1.2.3.4"))
	assert.ErrorIs(t, limiter.Allow(ctx, "1.2.3.4"), ErrRateLimited)

	// Other keys have their own window.
	require.NoError(t, limiter.Allow(ctx, "5.6.7.8"))

	mr.FastForward(time.Minute + time.Second)
	assert.NoError(t, limiter.Allow(ctx, "1.2.3.4"))
}

func TestLimiter_AllowSetsWindowExpiry(t *testing.T) {
	limiter, mr := newTestLimiter(t, 5)
	ctx := context.Background()

	require.NoError(t, limiter.Allow(ctx, "1.2.3.4"))
	assert.Equal(t, time.Minute, mr.TTL("test:1.2.3.4"))

	// Later hits keep the window opened by the first one.
	mr.FastForward(30 * time.Second)
	require.NoError(t, limiter.Allow(ctx, "1.2.3.4"))
	assert.Equal(t, 30*time.Second, mr.TTL("test:1.2.3.4"))

	got, err := mr.Get("test:1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, "2", got)
}

func TestLimiter_MiddlewareIgnoresForwardedHeaders(t *testing.T) {
	limiter, _ := newTestLimiter(t, 2)
	logger := zerolog.Nop()

	h := limiter.Middleware(&logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	limited := 0
	for i := range 20 {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "203.0.113.7:4321"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		req.Header.Set("X-Real-IP", fmt.Sprintf("10.1.0.%d", i))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}

	assert.Equal(t, 18, limited)
}

func TestLimiter_Unavailable(t *testing.T) {
	limiter, mr := newTestLimiter(t, 2)
	mr.Close()

	err := limiter.Allow(context.Background(), "1.2.3.4")
	assert.ErrorIs(t, err, ErrLimiterUnavailable)
}

func TestLimiter_Middleware(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1)
	logger := zerolog.Nop()

	h := limiter.Middleware(&logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, do().Code)

	limited := do()
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "60", limited.Header().Get("Retry-After"))

	// Fails open once Redis is gone.
	mr.Close()
	assert.Equal(t, http.StatusOK, do().Code)
}

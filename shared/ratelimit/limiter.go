// Package ratelimit provides a Redis-backed fixed-window request limiter
// and an HTTP middleware that applies it per client address.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vasapolrittideah/secure-auth-api/shared/utilities"
)

var (
	ErrRateLimited        = errors.New("rate limited")
	ErrLimiterUnavailable = errors.New("rate limiter unavailable")
)

// Config controls the fixed window.
type Config struct {
	Limit  int           `env:"RATE_LIMIT_REQUESTS" envDefault:"30"`
	Window time.Duration `env:"RATE_LIMIT_WINDOW"   envDefault:"1m"`
}

// Limiter counts requests per key in fixed windows stored in Redis.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
	config Config
}

// NewLimiter creates a new Limiter. Keys are namespaced with prefix.
func NewLimiter(client redis.UniversalClient, prefix string, cfg Config) *Limiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &Limiter{
		redis:  client,
		prefix: prefix,
		config: cfg,
	}
}

// Allow records one request for key. It returns ErrRateLimited once the
// window's limit is exceeded, and ErrLimiterUnavailable when Redis fails.
// The window is opened with its expiry in the same transaction as the
// increment, so a counter never outlives its window.
func (l *Limiter) Allow(ctx context.Context, key string) error {
	redisKey := l.prefix + ":" + key

	var count *redis.IntCmd
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, redisKey, 0, l.config.Window)
		count = pipe.Incr(ctx, redisKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}

	if count.Val() > int64(l.config.Limit) {
		return ErrRateLimited
	}

	return nil
}

// Middleware limits requests per r.RemoteAddr. Put a trusted-proxy aware
// resolver such as utilities.ClientIPResolver in front of it when the
// service runs behind a reverse proxy. When Redis is unreachable the
// request is let through and a warning is logged.
func (l *Limiter) Middleware(logger *zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := l.Allow(r.Context(), utilities.RemoteIP(r))
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, ErrRateLimited):
				w.Header().Set("Retry-After", strconv.Itoa(int(l.config.Window.Seconds())))
				utilities.WriteJSON(w, http.StatusTooManyRequests, map[string]string{
					"error": "Too many requests. Please try again later.",
				})
			default:
				logger.Warn().Err(err).Msg("rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
			}
		})
	}
}

package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/repository"
	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/tokenstore"
)

// TokenCleanup periodically purges expired single-use tokens.
type TokenCleanup struct {
	store  repository.Store
	tokens []*tokenstore.Store
	logger *zerolog.Logger
}

func NewTokenCleanup(store repository.Store, logger *zerolog.Logger, tokens ...*tokenstore.Store) *TokenCleanup {
	return &TokenCleanup{
		store:  store,
		tokens: tokens,
		logger: logger,
	}
}

// RunOnce deletes expired tokens of every kind and returns how many were removed.
func (c *TokenCleanup) RunOnce(ctx context.Context) (int64, error) {
	var total int64
	for _, tokens := range c.tokens {
		deleted, err := tokens.DeleteExpired(ctx, c.store)
		if err != nil {
			return total, err
		}
		total += deleted
	}

	return total, nil
}

// Run calls RunOnce every interval until ctx is cancelled.
func (c *TokenCleanup) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := c.RunOnce(ctx)
			if err != nil {
				c.logger.Error().Err(err).Msg("failed to delete expired tokens")
				continue
			}
			if deleted > 0 {
				c.logger.Info().Int64("deleted", deleted).Msg("deleted expired tokens")
			}
		}
	}
}

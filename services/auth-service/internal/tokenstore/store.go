package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/model"
	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/repository"
	"github.com/vasapolrittideah/secure-auth-api/shared/security"
)

const (
	VerificationTokenTTL  = 24 * time.Hour
	PasswordResetTokenTTL = time.Hour

	// ReissueCooldown is the minimum interval between two tokens sent to the same identifier.
	ReissueCooldown = time.Minute
)

var (
	ErrTokenNotFound    = errors.New("token not found")
	ErrTokenExpired     = errors.New("token has expired")
	ErrReissueThrottled = errors.New("token was issued too recently")
)

// Store issues and redeems single-use tokens of one kind. Every operation
// works on the repository.Store it is given, so callers can run several
// of them inside one transaction.
type Store struct {
	kind model.TokenKind
	ttl  time.Duration
	now  func() time.Time
}

// New creates a Store for the given token kind and lifetime.
func New(kind model.TokenKind, ttl time.Duration) *Store {
	return &Store{
		kind: kind,
		ttl:  ttl,
		now:  time.Now,
	}
}

// Kind returns the token kind this store manages.
func (s *Store) Kind() model.TokenKind {
	return s.kind
}

// Issue replaces every token held by identifier with a fresh one.
func (s *Store) Issue(ctx context.Context, st repository.Store, identifier, userID string) (*model.Token, error) {
	value, err := security.GenerateRandomToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s token: %w", s.kind, err)
	}

	tokens := st.Tokens(s.kind)
	if _, err := tokens.DeleteTokensByIdentifier(ctx, identifier); err != nil {
		return nil, fmt.Errorf("failed to delete previous %s tokens: %w", s.kind, err)
	}

	now := s.now()
	token, err := tokens.CreateToken(ctx, &model.Token{
		ID:         uuid.NewString(),
		Token:      value,
		Identifier: identifier,
		UserID:     userID,
		ExpiresAt:  now.Add(s.ttl),
		CreatedAt:  now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s token: %w", s.kind, err)
	}

	return token, nil
}

// Consume looks up a token for redemption. An expired token is removed and
// reported as ErrTokenExpired. A valid token is returned untouched; the
// caller deletes it together with the change it authorises.
func (s *Store) Consume(ctx context.Context, st repository.Store, value string) (*model.Token, error) {
	tokens := st.Tokens(s.kind)

	token, err := tokens.GetToken(ctx, value)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get %s token: %w", s.kind, err)
	}

	if token.Expired(s.now()) {
		if err := tokens.DeleteToken(ctx, token.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("failed to delete expired %s token: %w", s.kind, err)
		}
		return nil, ErrTokenExpired
	}

	return token, nil
}

// Redeem deletes a token returned by Consume. It must run in the same
// transaction as the change the token authorises: when a concurrent
// redemption removed the row first it returns ErrTokenNotFound, which rolls
// that change back.
func (s *Store) Redeem(ctx context.Context, tx repository.Store, tokenID string) error {
	if err := tx.Tokens(s.kind).DeleteToken(ctx, tokenID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTokenNotFound
		}
		return fmt.Errorf("failed to delete %s token: %w", s.kind, err)
	}

	return nil
}

// CheckCooldown returns ErrReissueThrottled when the latest token for
// identifier was issued less than cooldown ago.
func (s *Store) CheckCooldown(ctx context.Context, st repository.Store, identifier string, cooldown time.Duration) error {
	latest, err := st.Tokens(s.kind).GetLatestTokenByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to get latest %s token: %w", s.kind, err)
	}

	if s.now().Sub(s.issuedAt(latest)) < cooldown {
		return ErrReissueThrottled
	}

	return nil
}

// DeleteExpired purges tokens whose expiry has passed.
func (s *Store) DeleteExpired(ctx context.Context, st repository.Store) (int64, error) {
	deleted, err := st.Tokens(s.kind).DeleteExpiredTokens(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired %s tokens: %w", s.kind, err)
	}

	return deleted, nil
}

// issuedAt falls back to deriving the issue time from the expiry for rows
// written without a creation timestamp.
func (s *Store) issuedAt(token *model.Token) time.Time {
	if !token.CreatedAt.IsZero() {
		return token.CreatedAt
	}
	return token.ExpiresAt.Add(-s.ttl)
}

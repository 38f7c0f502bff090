package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/account"
	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/tokenstore"
	"github.com/vasapolrittideah/secure-auth-api/shared/auth"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountNotVerified = errors.New("account not verified")
	ErrUserNotFound       = errors.New("user not found")
	ErrUnauthenticated    = errors.New("missing session")

	// Errors raised by the layers below, re-exported for the transport.
	ErrUserAlreadyExists = account.ErrAccountConflict
	ErrTooManyRequests   = tokenstore.ErrReissueThrottled
	ErrTokenNotFound     = tokenstore.ErrTokenNotFound
	ErrTokenExpired      = tokenstore.ErrTokenExpired
	ErrInvalidSession    = auth.ErrInvalidSession
)

// PasswordHasher hashes and checks passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(encodedHash, password string) bool
}

// SessionSigner issues and verifies session tokens.
type SessionSigner interface {
	Sign(payload auth.SessionPayload) (string, error)
	Verify(token string) (*auth.SessionPayload, error)
}

// loggerFrom prefers the request-scoped logger stored in ctx.
func loggerFrom(ctx context.Context, fallback *zerolog.Logger) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return fallback
}

// sendBestEffort delivers an email after the state change it announces has
// been committed. Failures are logged and never reach the caller.
func sendBestEffort(
	ctx context.Context,
	logger *zerolog.Logger,
	sender EmailSender,
	to, subject, htmlBody string,
) {
	if err := sender.SendHTML(ctx, []string{to}, subject, htmlBody); err != nil {
		loggerFrom(ctx, logger).Error().Err(err).Str("subject", subject).Msg("failed to send email")
	}
}

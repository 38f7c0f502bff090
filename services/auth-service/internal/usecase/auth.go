package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/account"
	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/config"
	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/model"
	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/repository"
	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/tokenstore"
	"github.com/vasapolrittideah/secure-auth-api/shared/auth"
)

// AuthUsecase defines the interface for authentication-related use cases.
type AuthUsecase interface {
	// Register creates an unverified account, or refreshes the password and
	// verification token of an existing unverified one.
	Register(ctx context.Context, params RegisterParams) (*RegisterResult, error)

	// Login checks the credentials of a verified account and issues a session token.
	Login(ctx context.Context, params LoginParams) (*LoginResult, error)

	// Me resolves a session token to the current user.
	Me(ctx context.Context, sessionToken string) (*model.User, error)
}

// RegisterParams defines the parameters for user registration.
type RegisterParams struct {
	Email    string
	Password string
}

// RegisterResult reports the account a registration produced.
// Created is false when an unverified account was refreshed.
type RegisterResult struct {
	User    *model.User
	Created bool
}

// LoginParams defines the parameters for user login.
type LoginParams struct {
	Email    string
	Password string
}

// LoginResult holds the signed session token and the authenticated user.
type LoginResult struct {
	SessionToken string
	User         *model.User
}

type authUsecase struct {
	store              repository.Store
	accounts           *account.Accounts
	verificationTokens *tokenstore.Store
	hasher             PasswordHasher
	sessions           SessionSigner
	mailer             EmailSender
	authServiceCfg     *config.AuthServiceConfig
	logger             *zerolog.Logger

	decoyOnce sync.Once
	decoyHash string
}

func NewAuthUsecase(
	store repository.Store,
	accounts *account.Accounts,
	verificationTokens *tokenstore.Store,
	hasher PasswordHasher,
	sessions SessionSigner,
	mailer EmailSender,
	authServiceCfg *config.AuthServiceConfig,
	logger *zerolog.Logger,
) AuthUsecase {
	return &authUsecase{
		store:              store,
		accounts:           accounts,
		verificationTokens: verificationTokens,
		hasher:             hasher,
		sessions:           sessions,
		mailer:             mailer,
		authServiceCfg:     authServiceCfg,
		logger:             logger,
	}
}

func (u *authUsecase) Register(ctx context.Context, params RegisterParams) (*RegisterResult, error) {
	existing, err := u.accounts.FindByEmail(ctx, u.store, params.Email)
	switch {
	case err == nil && existing.Verified:
		return nil, ErrUserAlreadyExists
	case err == nil:
		err = u.verificationTokens.CheckCooldown(ctx, u.store, params.Email, tokenstore.ReissueCooldown)
		if err != nil {
			return nil, err
		}
	case !errors.Is(err, account.ErrAccountNotFound):
		return nil, err
	}

	passwordHash, err := u.hasher.Hash(params.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var (
		result = &RegisterResult{}
		token  *model.Token
	)
	err = u.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		user, created, err := u.accounts.CreateUnverified(ctx, tx, params.Email, passwordHash)
		if err != nil {
			return err
		}

		token, err = u.verificationTokens.Issue(ctx, tx, user.Email, user.ID)
		if err != nil {
			return err
		}

		result.User = user
		result.Created = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	link := verificationLink(u.authServiceCfg.AppURL, token.Token)
	sendBestEffort(ctx, u.logger, u.mailer, result.User.Email, verificationEmailSubject,
		verificationEmailBody(link, u.authServiceCfg.Token.VerificationTokenExpiresIn))

	return result, nil
}

func (u *authUsecase) Login(ctx context.Context, params LoginParams) (*LoginResult, error) {
	user, err := u.accounts.FindByEmail(ctx, u.store, params.Email)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			// Spend the same Argon2 work as a real check so timing does not
			// reveal whether the account exists.
			u.hasher.Verify(u.decoy(), params.Password)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !u.hasher.Verify(user.PasswordHash, params.Password) {
		return nil, ErrInvalidCredentials
	}

	if !user.Verified {
		return nil, ErrAccountNotVerified
	}

	sessionToken, err := u.sessions.Sign(auth.SessionPayload{
		UserID: user.ID,
		Email:  user.Email,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	return &LoginResult{
		SessionToken: sessionToken,
		User:         user,
	}, nil
}

// decoy returns a hash produced with the configured parameters that no
// submitted password is expected to match.
func (u *authUsecase) decoy() string {
	u.decoyOnce.Do(func() {
		hash, err := u.hasher.Hash("decoy-password-for-unknown-accounts")
		if err != nil {
			u.logger.Error().Err(err).Msg("failed to prepare decoy password hash")
			return
		}
		u.decoyHash = hash
	})
	return u.decoyHash
}

func (u *authUsecase) Me(ctx context.Context, sessionToken string) (*model.User, error) {
	if sessionToken == "" {
		return nil, ErrUnauthenticated
	}

	payload, err := u.sessions.Verify(sessionToken)
	if err != nil {
		return nil, ErrInvalidSession
	}

	user, err := u.accounts.Get(ctx, u.store, payload.UserID)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return user, nil
}

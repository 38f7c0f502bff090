package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/account"
	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/config"
	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/model"
	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/repository"
	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/tokenstore"
)

// PasswordResetUsecase defines the business logic for password reset token operations.
type PasswordResetUsecase interface {
	// RequestPasswordReset sends a reset link when an account exists for email.
	// It succeeds either way so callers cannot probe for accounts.
	RequestPasswordReset(ctx context.Context, email string) error

	// ResetPassword redeems a reset token and replaces the account's password.
	ResetPassword(ctx context.Context, token, newPassword string) error
}

type passwordResetUsecase struct {
	store          repository.Store
	accounts       *account.Accounts
	resetTokens    *tokenstore.Store
	hasher         PasswordHasher
	mailer         EmailSender
	authServiceCfg *config.AuthServiceConfig
	logger         *zerolog.Logger
}

// NewPasswordResetUsecase creates a new instance of PasswordResetUsecase.
func NewPasswordResetUsecase(
	store repository.Store,
	accounts *account.Accounts,
	resetTokens *tokenstore.Store,
	hasher PasswordHasher,
	mailer EmailSender,
	authServiceCfg *config.AuthServiceConfig,
	logger *zerolog.Logger,
) PasswordResetUsecase {
	return &passwordResetUsecase{
		store:          store,
		accounts:       accounts,
		resetTokens:    resetTokens,
		hasher:         hasher,
		mailer:         mailer,
		authServiceCfg: authServiceCfg,
		logger:         logger,
	}
}

func (u *passwordResetUsecase) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := u.accounts.FindByEmail(ctx, u.store, email)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			return nil
		}
		return err
	}

	var token *model.Token
	err = u.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		token, err = u.resetTokens.Issue(ctx, tx, user.Email, user.ID)
		return err
	})
	if err != nil {
		return err
	}

	link := passwordResetLink(u.authServiceCfg.AppURL, token.Token)
	sendBestEffort(ctx, u.logger, u.mailer, user.Email, passwordResetEmailSubject,
		passwordResetEmailBody(link, u.authServiceCfg.Token.PasswordResetTokenExpiresIn))

	return nil
}

func (u *passwordResetUsecase) ResetPassword(ctx context.Context, value, newPassword string) error {
	token, err := u.resetTokens.Consume(ctx, u.store, value)
	if err != nil {
		return err
	}

	user, err := u.accounts.FindByEmail(ctx, u.store, token.Identifier)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	passwordHash, err := u.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	return u.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		if err := u.resetTokens.Redeem(ctx, tx, token.ID); err != nil {
			return err
		}
		_, err := u.accounts.UpdatePassword(ctx, tx, user.ID, passwordHash)
		return err
	})
}

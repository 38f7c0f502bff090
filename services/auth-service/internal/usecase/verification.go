package usecase

import (
	"context"
	"errors"

	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/account"
	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/repository"
	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/tokenstore"
)

// VerificationUsecase confirms ownership of an email address.
type VerificationUsecase interface {
	// VerifyEmail redeems a verification token and marks its account verified.
	VerifyEmail(ctx context.Context, token string) error
}

type verificationUsecase struct {
	store              repository.Store
	accounts           *account.Accounts
	verificationTokens *tokenstore.Store
}

func NewVerificationUsecase(
	store repository.Store,
	accounts *account.Accounts,
	verificationTokens *tokenstore.Store,
) VerificationUsecase {
	return &verificationUsecase{
		store:              store,
		accounts:           accounts,
		verificationTokens: verificationTokens,
	}
}

func (u *verificationUsecase) VerifyEmail(ctx context.Context, value string) error {
	token, err := u.verificationTokens.Consume(ctx, u.store, value)
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

	return u.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		if err := u.verificationTokens.Redeem(ctx, tx, token.ID); err != nil {
			return err
		}
		_, err := u.accounts.MarkVerified(ctx, tx, user.ID)
		return err
	})
}

package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/model"
	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/repository"
)

var (
	ErrAccountConflict = errors.New("a verified account with this email already exists")
	ErrAccountNotFound = errors.New("account not found")
)

// Accounts owns every change to a user record. An account starts
// unverified and becomes verified exactly once.
type Accounts struct{}

// New creates an Accounts.
func New() *Accounts {
	return &Accounts{}
}

// CreateUnverified creates an unverified account for email, or overwrites
// the password hash of an existing unverified one. created reports whether
// a new account was made.
func (a *Accounts) CreateUnverified(
	ctx context.Context,
	st repository.Store,
	email, passwordHash string,
) (user *model.User, created bool, err error) {
	users := st.Users()

	existing, err := users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Verified {
			return nil, false, ErrAccountConflict
		}

		user, err = users.UpdateUser(ctx, existing.ID, repository.UpdateUserParams{PasswordHash: &passwordHash})
		if err != nil {
			return nil, false, fmt.Errorf("failed to update unverified account: %w", err)
		}
		return user, false, nil

	case !errors.Is(err, repository.ErrNotFound):
		return nil, false, fmt.Errorf("failed to get account by email: %w", err)
	}

	user, err = users.CreateUser(ctx, &model.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, false, ErrAccountConflict
		}
		return nil, false, fmt.Errorf("failed to create account: %w", err)
	}

	return user, true, nil
}

// MarkVerified flags the account as verified. Verifying twice is a no-op.
func (a *Accounts) MarkVerified(ctx context.Context, st repository.Store, userID string) (*model.User, error) {
	verified := true
	return a.update(ctx, st, userID, repository.UpdateUserParams{Verified: &verified})
}

// UpdatePassword replaces the password hash regardless of account state.
func (a *Accounts) UpdatePassword(ctx context.Context, st repository.Store, userID, passwordHash string) (*model.User, error) {
	return a.update(ctx, st, userID, repository.UpdateUserParams{PasswordHash: &passwordHash})
}

func (a *Accounts) Get(ctx context.Context, st repository.Store, userID string) (*model.User, error) {
	user, err := st.Users().GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return user, nil
}

func (a *Accounts) FindByEmail(ctx context.Context, st repository.Store, email string) (*model.User, error) {
	user, err := st.Users().GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account by email: %w", err)
	}

	return user, nil
}

func (a *Accounts) update(
	ctx context.Context,
	st repository.Store,
	userID string,
	params repository.UpdateUserParams,
) (*model.User, error) {
	user, err := st.Users().UpdateUser(ctx, userID, params)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to update account: %w", err)
	}

	return user, nil
}

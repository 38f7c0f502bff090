package repository

import (
	"context"
	"errors"
	"time"

	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/model"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")

	errNoUserFieldsToUpdate = errors.New("no user fields to update")
)

// UserRepository defines the interface for user-related database operations.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) (*model.User, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateUser(ctx context.Context, id string, params UpdateUserParams) (*model.User, error)
}

// UpdateUserParams defines the optional parameters for updating a user.
// Only the fields that are not nil will be updated.
type UpdateUserParams struct {
	PasswordHash *string
	Verified     *bool
}

func (p UpdateUserParams) empty() bool {
	return p.PasswordHash == nil && p.Verified == nil
}

// TokenRepository defines the operations on one kind of single-use token.
type TokenRepository interface {
	// CreateToken stores a new token.
	CreateToken(ctx context.Context, token *model.Token) (*model.Token, error)

	// GetToken retrieves a token by its secret value.
	GetToken(ctx context.Context, token string) (*model.Token, error)

	// GetLatestTokenByIdentifier retrieves the most recently created token for an identifier.
	GetLatestTokenByIdentifier(ctx context.Context, identifier string) (*model.Token, error)

	// DeleteToken removes a token by id.
	DeleteToken(ctx context.Context, id string) error

	// DeleteTokensByIdentifier removes every token issued for an identifier.
	DeleteTokensByIdentifier(ctx context.Context, identifier string) (int64, error)

	// DeleteExpiredTokens removes tokens that expired before now.
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

// Store gives access to all repositories and runs work atomically.
type Store interface {
	Users() UserRepository
	Tokens(kind model.TokenKind) TokenRepository

	// WithTx runs fn inside a transaction. Repositories obtained from the
	// Store passed to fn take part in it; the transaction commits when fn
	// returns nil and rolls back otherwise. Calling WithTx on a
	// transactional Store runs fn in the existing transaction.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

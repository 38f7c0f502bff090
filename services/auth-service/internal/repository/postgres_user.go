package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/model"
)

type userPostgresRepository struct {
	db DBTX
}

func (r *userPostgresRepository) CreateUser(ctx context.Context, user *model.User) (*model.User, error) {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	query :=
		`INSERT INTO users (id, email, password_hash, verified, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.Verified, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *userPostgresRepository) GetUser(ctx context.Context, id string) (*model.User, error) {
	// Ids come from session tokens; anything that is not a uuid cannot exist.
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	query :=
		`SELECT id, email, password_hash, verified, created_at, updated_at FROM users
		 WHERE id = $1`

	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *userPostgresRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	query :=
		`SELECT id, email, password_hash, verified, created_at, updated_at FROM users
		 WHERE email = $1`

	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *userPostgresRepository) UpdateUser(ctx context.Context, id string, params UpdateUserParams) (*model.User, error) {
	if params.empty() {
		return nil, errNoUserFieldsToUpdate
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	var passwordHash, verified any
	if params.PasswordHash != nil {
		passwordHash = *params.PasswordHash
	}
	if params.Verified != nil {
		verified = *params.Verified
	}

	query :=
		`UPDATE users
		 SET password_hash = COALESCE($2, password_hash),
		     verified = COALESCE($3, verified),
		     updated_at = $4
		 WHERE id = $1
		 RETURNING id, email, password_hash, verified, created_at, updated_at`

	return scanUser(r.db.QueryRowContext(ctx, query, id, passwordHash, verified, time.Now().UTC()))
}

func scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Verified, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

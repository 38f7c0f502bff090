package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/model"
)

// tokenPostgresRepository serves one token table. The table name comes from
// tokenCollections and is never user supplied.
type tokenPostgresRepository struct {
	db    DBTX
	table string
}

const tokenColumns = "id, token, identifier, user_id, expires_at, created_at"

func (r *tokenPostgresRepository) CreateToken(ctx context.Context, token *model.Token) (*model.Token, error) {
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (%s)
		 VALUES ($1, $2, $3, $4, $5, $6)`, r.table, tokenColumns)

	_, err := r.db.ExecContext(ctx, query,
		token.ID, token.Token, token.Identifier, token.UserID, token.ExpiresAt, token.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return token, nil
}

func (r *tokenPostgresRepository) GetToken(ctx context.Context, value string) (*model.Token, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM %s
		 WHERE token = $1`, tokenColumns, r.table)

	return scanToken(r.db.QueryRowContext(ctx, query, value))
}

func (r *tokenPostgresRepository) GetLatestTokenByIdentifier(ctx context.Context, identifier string) (*model.Token, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM %s
		 WHERE identifier = $1
		 ORDER BY created_at DESC
		 LIMIT 1`, tokenColumns, r.table)

	return scanToken(r.db.QueryRowContext(ctx, query, identifier))
}

func (r *tokenPostgresRepository) DeleteToken(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.table)

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *tokenPostgresRepository) DeleteTokensByIdentifier(ctx context.Context, identifier string) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE identifier = $1`, r.table)

	return r.deleteMany(ctx, query, identifier)
}

func (r *tokenPostgresRepository) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE expires_at < $1`, r.table)

	return r.deleteMany(ctx, query, now)
}

func (r *tokenPostgresRepository) deleteMany(ctx context.Context, query string, arg any) (int64, error) {
	result, err := r.db.ExecContext(ctx, query, arg)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return affected, nil
}

func scanToken(row *sql.Row) (*model.Token, error) {
	token := &model.Token{}
	err := row.Scan(&token.ID, &token.Token, &token.Identifier, &token.UserID, &token.ExpiresAt, &token.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return token, nil
}

package repository

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/model"
)

// MongoStore is a Store backed by MongoDB. Transactions require the
// deployment to be a replica set or sharded cluster.
type MongoStore struct {
	db *mongo.Database
}

// NewMongoStore creates the collection indexes and returns a MongoStore.
func NewMongoStore(ctx context.Context, logger *zerolog.Logger, db *mongo.Database) *MongoStore {
	ensureUserIndexes(ctx, logger, db)
	ensureTokenIndexes(ctx, logger, db)

	return &MongoStore{db: db}
}

func (s *MongoStore) Users() UserRepository {
	return newUserMongoRepository(s.db)
}

func (s *MongoStore) Tokens(kind model.TokenKind) TokenRepository {
	return newTokenMongoRepository(s.db, kind)
}

func (s *MongoStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	// Operations issued with a session-bearing context already join its transaction.
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx, s)
	}

	session, err := s.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start mongo session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(txCtx context.Context) (any, error) {
		return nil, fn(txCtx, s)
	})

	return err
}

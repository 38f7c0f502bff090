package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/model"
)

// expiredTokenRetention keeps expired tokens around long enough for a
// late redemption to be reported as expired rather than unknown.
const expiredTokenRetention = 24 * time.Hour

var tokenCollections = map[model.TokenKind]string{
	model.TokenKindVerification:  "verification_tokens",
	model.TokenKindPasswordReset: "password_reset_tokens",
}

type tokenMongoRepository struct {
	db         *mongo.Database
	collection string
}

func newTokenMongoRepository(db *mongo.Database, kind model.TokenKind) TokenRepository {
	return &tokenMongoRepository{
		db:         db,
		collection: tokenCollections[kind],
	}
}

func ensureTokenIndexes(ctx context.Context, logger *zerolog.Logger, db *mongo.Database) {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "identifier", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(expiredTokenRetention.Seconds())), // TTL index
		},
	}

	for _, collection := range tokenCollections {
		if _, err := db.Collection(collection).Indexes().CreateMany(ctx, indexes); err != nil {
			logger.Fatal().Err(err).Str("collection", collection).Msg("failed to create token indexes")
		}
	}
}

func (r *tokenMongoRepository) CreateToken(ctx context.Context, token *model.Token) (*model.Token, error) {
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}

	if _, err := r.db.Collection(r.collection).InsertOne(ctx, token); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}

	return token, nil
}

func (r *tokenMongoRepository) GetToken(ctx context.Context, value string) (*model.Token, error) {
	return r.findOne(ctx, bson.M{"token": value}, options.FindOne())
}

func (r *tokenMongoRepository) GetLatestTokenByIdentifier(ctx context.Context, identifier string) (*model.Token, error) {
	return r.findOne(
		ctx,
		bson.M{"identifier": identifier},
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	)
}

func (r *tokenMongoRepository) findOne(
	ctx context.Context,
	filter bson.M,
	opts *options.FindOneOptionsBuilder,
) (*model.Token, error) {
	var token model.Token
	err := r.db.Collection(r.collection).FindOne(ctx, filter, opts).Decode(&token)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &token, nil
}

func (r *tokenMongoRepository) DeleteToken(ctx context.Context, id string) error {
	result, err := r.db.Collection(r.collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *tokenMongoRepository) DeleteTokensByIdentifier(ctx context.Context, identifier string) (int64, error) {
	result, err := r.db.Collection(r.collection).DeleteMany(ctx, bson.M{"identifier": identifier})
	if err != nil {
		return 0, err
	}

	return result.DeletedCount, nil
}

func (r *tokenMongoRepository) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	filter := bson.M{
		"expires_at": bson.M{"$lt": now},
	}

	result, err := r.db.Collection(r.collection).DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}

	return result.DeletedCount, nil
}

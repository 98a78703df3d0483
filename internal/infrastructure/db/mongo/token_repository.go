package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/stackpoint/account-service/internal/core/domain"
)

const collectionRefreshTokens = "refresh_tokens"

type TokenRepository struct {
	col *mongo.Collection
}

func NewTokenRepository(db *mongo.Database) *TokenRepository {
	return &TokenRepository{col: db.Collection(collectionRefreshTokens)}
}

type refreshTokenDoc struct {
	ID            string `bson:"_id"`
	TokenHash     string `bson:"token_hash"`
	AccountID     string `bson:"account_id"`
	CreatedAt     int64  `bson:"created_at"`
	ExpiresAt     int64  `bson:"expires_at"`
	IsUsed        bool   `bson:"is_used"`
	IsInvalidated bool   `bson:"is_invalidated"`
	IsPersistent  bool   `bson:"is_persistent"`
}

func (d refreshTokenDoc) toDomain() *domain.RefreshToken {
	return &domain.RefreshToken{
		ID:            d.ID,
		TokenHash:     d.TokenHash,
		AccountID:     d.AccountID,
		CreatedAt:     time.Unix(d.CreatedAt, 0).UTC(),
		ExpiresAt:     time.Unix(d.ExpiresAt, 0).UTC(),
		IsUsed:        d.IsUsed,
		IsInvalidated: d.IsInvalidated,
		IsPersistent:  d.IsPersistent,
	}
}

func (r *TokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := refreshTokenDoc{
		ID:            token.ID,
		TokenHash:     token.TokenHash,
		AccountID:     token.AccountID,
		CreatedAt:     token.CreatedAt.Unix(),
		ExpiresAt:     token.ExpiresAt.Unix(),
		IsUsed:        token.IsUsed,
		IsInvalidated: token.IsInvalidated,
		IsPersistent:  token.IsPersistent,
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// Consume marks the live token with the given hash as used and returns it.
// The validity check and the mark are one FindOneAndUpdate, so concurrent
// redemption of the same token resolves to exactly one winner; every other
// caller sees no live document.
func (r *TokenRepository) Consume(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{
		"token_hash":     tokenHash,
		"is_used":        false,
		"is_invalidated": false,
		"expires_at":     bson.M{"$gt": time.Now().Unix()},
	}
	update := bson.M{"$set": bson.M{"is_used": true}}

	var doc refreshTokenDoc
	if err := r.col.FindOneAndUpdate(ctx, filter, update).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}
	// The decoded document predates the update; reflect the consumed state.
	doc.IsUsed = true
	return doc.toDomain(), nil
}

func (r *TokenRepository) FindByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc refreshTokenDoc
	if err := r.col.FindOne(ctx, bson.M{"token_hash": tokenHash}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *TokenRepository) InvalidateAllForAccount(ctx context.Context, accountID string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := r.col.UpdateMany(ctx,
		bson.M{"account_id": accountID, "is_invalidated": false},
		bson.M{"$set": bson.M{"is_invalidated": true}},
	)
	if err != nil {
		return fmt.Errorf("invalidate refresh tokens: %w", err)
	}
	return nil
}

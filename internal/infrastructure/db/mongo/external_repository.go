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

const (
	collectionAuthStates     = "external_auth_states"
	collectionExternalLogins = "external_logins"
)

// ExternalStateRepository persists the single-use OAuth state records.
type ExternalStateRepository struct {
	col *mongo.Collection
}

func NewExternalStateRepository(db *mongo.Database) *ExternalStateRepository {
	return &ExternalStateRepository{col: db.Collection(collectionAuthStates)}
}

type authStateDoc struct {
	ID          string `bson:"_id"`
	TokenHash   string `bson:"token_hash"`
	Provider    string `bson:"provider"`
	RedirectURI string `bson:"redirect_uri,omitempty"`
	AccountID   string `bson:"account_id,omitempty"`
	CreatedAt   int64  `bson:"created_at"`
	ExpiresAt   int64  `bson:"expires_at"`
	IsUsed      bool   `bson:"is_used"`
}

func (r *ExternalStateRepository) Create(ctx context.Context, state *domain.ExternalAuthState) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := authStateDoc{
		ID:          state.ID,
		TokenHash:   state.TokenHash,
		Provider:    state.Provider,
		RedirectURI: state.RedirectURI,
		AccountID:   state.AccountID,
		CreatedAt:   state.CreatedAt.Unix(),
		ExpiresAt:   state.ExpiresAt.Unix(),
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert auth state: %w", err)
	}
	return nil
}

// Consume marks the unused, unexpired state as used and returns it, with
// the same single-winner semantics as refresh-token redemption.
func (r *ExternalStateRepository) Consume(ctx context.Context, tokenHash string) (*domain.ExternalAuthState, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{
		"token_hash": tokenHash,
		"is_used":    false,
		"expires_at": bson.M{"$gt": time.Now().Unix()},
	}
	update := bson.M{"$set": bson.M{"is_used": true}}

	var doc authStateDoc
	if err := r.col.FindOneAndUpdate(ctx, filter, update).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrInvalidState
		}
		return nil, fmt.Errorf("consume auth state: %w", err)
	}
	return &domain.ExternalAuthState{
		ID:          doc.ID,
		TokenHash:   doc.TokenHash,
		Provider:    doc.Provider,
		RedirectURI: doc.RedirectURI,
		AccountID:   doc.AccountID,
		CreatedAt:   time.Unix(doc.CreatedAt, 0).UTC(),
		ExpiresAt:   time.Unix(doc.ExpiresAt, 0).UTC(),
		IsUsed:      true,
	}, nil
}

// ExternalLoginRepository persists provider→account links.
type ExternalLoginRepository struct {
	col *mongo.Collection
}

func NewExternalLoginRepository(db *mongo.Database) *ExternalLoginRepository {
	return &ExternalLoginRepository{col: db.Collection(collectionExternalLogins)}
}

type externalLoginDoc struct {
	Provider       string `bson:"provider"`
	ProviderUserID string `bson:"provider_user_id"`
	AccountID      string `bson:"account_id"`
	Email          string `bson:"email,omitempty"`
	CreatedAt      int64  `bson:"created_at"`
}

func (r *ExternalLoginRepository) Find(ctx context.Context, provider, providerUserID string) (*domain.ExternalLogin, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc externalLoginDoc
	filter := bson.M{"provider": provider, "provider_user_id": providerUserID}
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrLinkNotFound
		}
		return nil, fmt.Errorf("find external login: %w", err)
	}
	return &domain.ExternalLogin{
		Provider:       doc.Provider,
		ProviderUserID: doc.ProviderUserID,
		AccountID:      doc.AccountID,
		Email:          doc.Email,
		CreatedAt:      time.Unix(doc.CreatedAt, 0).UTC(),
	}, nil
}

func (r *ExternalLoginRepository) Create(ctx context.Context, login *domain.ExternalLogin) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := externalLoginDoc{
		Provider:       login.Provider,
		ProviderUserID: login.ProviderUserID,
		AccountID:      login.AccountID,
		Email:          login.Email,
		CreatedAt:      login.CreatedAt.Unix(),
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrAlreadyLinked
		}
		return fmt.Errorf("insert external login: %w", err)
	}
	return nil
}

func (r *ExternalLoginRepository) Delete(ctx context.Context, provider, accountID string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.DeleteOne(ctx, bson.M{"provider": provider, "account_id": accountID})
	if err != nil {
		return fmt.Errorf("delete external login: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrLinkNotFound
	}
	return nil
}

func (r *ExternalLoginRepository) CountForAccount(ctx context.Context, accountID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	count, err := r.col.CountDocuments(ctx, bson.M{"account_id": accountID})
	if err != nil {
		return 0, fmt.Errorf("count external logins: %w", err)
	}
	return count, nil
}

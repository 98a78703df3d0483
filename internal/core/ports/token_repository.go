package ports

import (
	"context"

	"github.com/stackpoint/account-service/internal/core/domain"
)

// TokenRepository persists refresh tokens. Plaintext never reaches this
// layer; callers hash before storing or looking up.
type TokenRepository interface {
	Create(ctx context.Context, token *domain.RefreshToken) error

	// Consume atomically marks the live token with the given hash as used
	// and returns it. The check (not used, not invalidated, not expired)
	// and the mark must be one unit against the backing store: under
	// concurrent redemption exactly one caller wins. When no live token
	// matches, FindByHash discriminates why.
	Consume(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)

	FindByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)
	InvalidateAllForAccount(ctx context.Context, accountID string) error
}

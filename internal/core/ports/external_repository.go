package ports

import (
	"context"

	"github.com/stackpoint/account-service/internal/core/domain"
)

// ExternalStateRepository persists single-use OAuth state records.
type ExternalStateRepository interface {
	Create(ctx context.Context, state *domain.ExternalAuthState) error

	// Consume atomically marks the unused, unexpired state with the given
	// nonce hash as used and returns it. Replays, absent records, and
	// expired records all fail identically from the caller's perspective.
	Consume(ctx context.Context, tokenHash string) (*domain.ExternalAuthState, error)
}

// ExternalLoginRepository persists provider→account links.
type ExternalLoginRepository interface {
	Find(ctx context.Context, provider, providerUserID string) (*domain.ExternalLogin, error)
	Create(ctx context.Context, login *domain.ExternalLogin) error
	Delete(ctx context.Context, provider, accountID string) error
	CountForAccount(ctx context.Context, accountID string) (int64, error)
}

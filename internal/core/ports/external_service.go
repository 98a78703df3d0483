package ports

import (
	"context"

	"github.com/stackpoint/account-service/internal/core/domain"
)

// ExternalAuthService runs the OAuth challenge/callback flow and manages
// provider links. callerAccountID is empty for anonymous flows.
type ExternalAuthService interface {
	Providers() []string
	CreateChallenge(ctx context.Context, provider, redirectURI, callerAccountID string) (string, error)
	HandleCallback(ctx context.Context, code, state, callerAccountID string) (*domain.CallbackOutcome, error)
	UnlinkProvider(ctx context.Context, provider, accountID string) error
}

package ports

import (
	"context"

	"github.com/stackpoint/account-service/internal/core/domain"
)

// AuthService drives the login → two-factor → token-issuance state machine.
type AuthService interface {
	Register(ctx context.Context, email, username, password string) (*domain.Account, error)
	Login(ctx context.Context, identifier, password string, rememberMe bool) (*domain.LoginOutcome, error)
	CompleteTwoFactor(ctx context.Context, challengeToken, code string) (*domain.TokenPair, error)
	CompleteTwoFactorRecovery(ctx context.Context, challengeToken, recoveryCode string) (*domain.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error)
	Logout(ctx context.Context, accountID string) error
	ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error
	SetPassword(ctx context.Context, accountID, newPassword string) error
}

// TokenService mints access tokens and manages the refresh-token lifecycle.
// RedeemRefreshToken reports the persistence flag of the redeemed token so
// the successor inherits it.
type TokenService interface {
	IssueAccessToken(account *domain.Account) (string, error)
	IssueRefreshToken(ctx context.Context, account *domain.Account, persistent bool) (string, *domain.RefreshToken, error)
	RedeemRefreshToken(ctx context.Context, plaintext string) (*domain.Account, bool, error)
	RevokeAllSessions(ctx context.Context, accountID string) error
	RotateSecurityStamp(ctx context.Context, accountID string) error
}

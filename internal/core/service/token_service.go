package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/stackpoint/account-service/internal/core/domain"
	"github.com/stackpoint/account-service/internal/core/ports"
)

const refreshSecretBytes = 32

// AccessClaims is the payload of a signed access token. SecurityStamp pins
// the token to the account's credential version: rotating the stamp
// invalidates every outstanding token without a revocation list.
type AccessClaims struct {
	Email         string   `json:"email,omitempty"`
	Roles         []string `json:"roles,omitempty"`
	SecurityStamp string   `json:"stamp"`
	jwt.RegisteredClaims
}

// TokenService mints access tokens and owns the refresh-token lifecycle:
// issuance, single-use redemption with rotation, and bulk revocation.
type TokenService struct {
	tokens     ports.TokenRepository
	accounts   ports.AccountRepository
	jwtSecret  []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	// persistentTTL applies to "remember me" tokens; session-scoped tokens
	// use refreshTTL.
	persistentTTL time.Duration
}

func NewTokenService(tokens ports.TokenRepository, accounts ports.AccountRepository, jwtSecret, issuer string, accessTTL, refreshTTL, persistentTTL time.Duration) *TokenService {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 24 * time.Hour
	}
	if persistentTTL <= 0 {
		persistentTTL = 30 * 24 * time.Hour
	}
	return &TokenService{
		tokens:        tokens,
		accounts:      accounts,
		jwtSecret:     []byte(jwtSecret),
		issuer:        issuer,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		persistentTTL: persistentTTL,
	}
}

// IssueAccessToken mints a short-lived HS256 token for the account.
func (s *TokenService) IssueAccessToken(account *domain.Account) (string, error) {
	now := time.Now().UTC()
	claims := AccessClaims{
		Email:         account.Email,
		Roles:         account.Roles,
		SecurityStamp: account.SecurityStamp,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   account.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.jwtSecret)
}

// ParseAccessToken validates signature and expiry and returns the claims.
func (s *TokenService) ParseAccessToken(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return s.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, domain.ErrInvalidCredentials
	}
	return claims, nil
}

// IssueRefreshToken creates an opaque refresh token for the account. The
// plaintext is returned exactly once; only its SHA-256 hash is persisted.
func (s *TokenService) IssueRefreshToken(ctx context.Context, account *domain.Account, persistent bool) (string, *domain.RefreshToken, error) {
	raw := make([]byte, refreshSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("generate refresh secret: %w", err)
	}
	plaintext := base64.RawURLEncoding.EncodeToString(raw)

	ttl := s.refreshTTL
	if persistent {
		ttl = s.persistentTTL
	}

	now := time.Now().UTC()
	token := &domain.RefreshToken{
		ID:           uuid.NewString(),
		TokenHash:    hashToken(plaintext),
		AccountID:    account.ID,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		IsPersistent: persistent,
	}

	if err := s.tokens.Create(ctx, token); err != nil {
		return "", nil, fmt.Errorf("persist refresh token: %w", err)
	}
	return plaintext, token, nil
}

// RedeemRefreshToken consumes the token with rotation-on-use semantics.
// The store's Consume is a single conditional update, so concurrent
// redemption of the same plaintext resolves to exactly one winner; every
// other caller observes the token as already used.
func (s *TokenService) RedeemRefreshToken(ctx context.Context, plaintext string) (*domain.Account, bool, error) {
	if plaintext == "" {
		return nil, false, domain.ErrTokenNotFound
	}
	hash := hashToken(plaintext)

	consumed, err := s.tokens.Consume(ctx, hash)
	if err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) {
			return nil, false, s.redemptionFailure(ctx, hash)
		}
		return nil, false, fmt.Errorf("consume refresh token: %w", err)
	}

	account, err := s.accounts.FindByID(ctx, consumed.AccountID)
	if err != nil {
		return nil, false, fmt.Errorf("load account for refresh: %w", err)
	}
	return account, consumed.IsPersistent, nil
}

// redemptionFailure discriminates why no live token matched: the record may
// be expired, replayed, invalidated, or simply unknown.
func (s *TokenService) redemptionFailure(ctx context.Context, hash string) error {
	token, err := s.tokens.FindByHash(ctx, hash)
	if err != nil {
		return domain.ErrTokenNotFound
	}
	switch {
	case token.IsUsed:
		return domain.ErrTokenAlreadyUsed
	case token.IsInvalidated:
		return domain.ErrTokenInvalidated
	case !time.Now().UTC().Before(token.ExpiresAt):
		return domain.ErrTokenExpired
	default:
		return domain.ErrTokenNotFound
	}
}

// RevokeAllSessions invalidates every live refresh token for the account
// and rotates its security stamp, killing outstanding access tokens too.
func (s *TokenService) RevokeAllSessions(ctx context.Context, accountID string) error {
	if err := s.tokens.InvalidateAllForAccount(ctx, accountID); err != nil {
		return fmt.Errorf("invalidate refresh tokens: %w", err)
	}
	return s.RotateSecurityStamp(ctx, accountID)
}

// RotateSecurityStamp bumps the stamp only, preserving refresh tokens. Used
// by role-change flows so clients can silently re-authenticate with updated
// claims instead of being logged out.
func (s *TokenService) RotateSecurityStamp(ctx context.Context, accountID string) error {
	if err := s.accounts.UpdateSecurityStamp(ctx, accountID, uuid.NewString()); err != nil {
		return fmt.Errorf("rotate security stamp: %w", err)
	}
	return nil
}

// hashToken derives the at-rest form of an opaque credential.
func hashToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

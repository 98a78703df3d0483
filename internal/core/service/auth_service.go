package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/stackpoint/account-service/internal/core/domain"
	"github.com/stackpoint/account-service/internal/core/ports"
)

const (
	challengeTokenBytes = 32
	challengeTTL        = 5 * time.Minute
)

// dummyPasswordHash is a default-cost bcrypt hash with no known preimage.
// Login branches that have no stored hash compare against it so that
// unknown identifiers cost the same as wrong passwords.
const dummyPasswordHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// AuthService implements the credential login state machine:
// Anonymous → CredentialsPending → (TwoFactorPending | Authenticated).
type AuthService struct {
	accounts    ports.AccountRepository
	tokens      ports.TokenService
	challenges  ports.ChallengeStore
	lockouts    ports.LockoutStore
	audit       ports.AuditRecorder
	maxFailures int64
	lockoutFor  time.Duration
}

func NewAuthService(accounts ports.AccountRepository, tokens ports.TokenService, challenges ports.ChallengeStore, lockouts ports.LockoutStore, audit ports.AuditRecorder, maxFailures int64, lockoutFor time.Duration) *AuthService {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if lockoutFor <= 0 {
		lockoutFor = 15 * time.Minute
	}
	return &AuthService{
		accounts:    accounts,
		tokens:      tokens,
		challenges:  challenges,
		lockouts:    lockouts,
		audit:       audit,
		maxFailures: maxFailures,
		lockoutFor:  lockoutFor,
	}
}

// Register creates an account with the default role and an unverified email.
func (s *AuthService) Register(ctx context.Context, email, username, password string) (*domain.Account, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	account := &domain.Account{
		ID:            uuid.NewString(),
		Email:         email,
		Username:      username,
		PasswordHash:  string(hash),
		SecurityStamp: uuid.NewString(),
		Roles:         []string{domain.RoleUser},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	return s.accounts.Create(ctx, account)
}

// Login verifies credentials. Unknown identifiers and wrong passwords fail
// identically so responses never reveal whether an account exists. When the
// account has two-factor enabled the outcome carries a challenge token and
// no credentials; otherwise tokens are issued directly.
func (s *AuthService) Login(ctx context.Context, identifier, password string, rememberMe bool) (*domain.LoginOutcome, error) {
	identifier = strings.TrimSpace(strings.ToLower(identifier))
	if identifier == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	account, err := s.accounts.FindByEmail(ctx, identifier)
	if err != nil {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyPasswordHash), []byte(password))
		s.recordLoginFailure(ctx, identifier, nil)
		return nil, domain.ErrInvalidCredentials
	}

	if account.IsLockedOut(time.Now().UTC()) {
		s.record(domain.AuditLoginFailure, account.ID, "account", account.ID, false, map[string]string{"reason": "locked"})
		return nil, domain.ErrAccountLocked
	}

	storedHash := account.PasswordHash
	if !account.HasPassword() {
		storedHash = dummyPasswordHash
	}
	if bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password)) != nil {
		s.recordLoginFailure(ctx, identifier, account)
		return nil, domain.ErrInvalidCredentials
	}

	if s.lockouts != nil {
		_ = s.lockouts.Reset(ctx, identifier)
	}

	if account.TwoFactor.Enabled {
		challengeToken, err := s.issueChallenge(ctx, account, rememberMe)
		if err != nil {
			return nil, err
		}
		s.record(domain.AuditLoginTwoFactor, account.ID, "account", account.ID, true, nil)
		return &domain.LoginOutcome{RequiresTwoFactor: true, ChallengeToken: challengeToken}, nil
	}

	pair, err := s.issueTokens(ctx, account, rememberMe)
	if err != nil {
		return nil, err
	}
	s.record(domain.AuditLoginSuccess, account.ID, "account", account.ID, true, nil)
	return &domain.LoginOutcome{Tokens: *pair}, nil
}

// CompleteTwoFactor consumes the pending challenge and validates the TOTP
// code. Each challenge admits exactly one attempt; a wrong code burns it and
// the client must log in again.
func (s *AuthService) CompleteTwoFactor(ctx context.Context, challengeToken, code string) (*domain.TokenPair, error) {
	account, persistent, err := s.takeChallenge(ctx, challengeToken)
	if err != nil {
		return nil, err
	}

	if !verifyTOTP(account.TwoFactor.TOTPSecret, code, time.Now()) {
		s.record(domain.AuditLoginFailure, account.ID, "account", account.ID, false, map[string]string{"reason": "totp_invalid"})
		return nil, domain.ErrTwoFactorCodeInvalid
	}

	pair, err := s.issueTokens(ctx, account, persistent)
	if err != nil {
		return nil, err
	}
	s.record(domain.AuditLoginSuccess, account.ID, "account", account.ID, true, map[string]string{"factor": "totp"})
	return pair, nil
}

// CompleteTwoFactorRecovery consumes the challenge with a one-time recovery
// code. The matched code is removed from the account so it can never be
// replayed.
func (s *AuthService) CompleteTwoFactorRecovery(ctx context.Context, challengeToken, recoveryCode string) (*domain.TokenPair, error) {
	account, persistent, err := s.takeChallenge(ctx, challengeToken)
	if err != nil {
		return nil, err
	}

	if err := s.accounts.ConsumeRecoveryCode(ctx, account.ID, hashToken(strings.TrimSpace(recoveryCode))); err != nil {
		s.record(domain.AuditLoginFailure, account.ID, "account", account.ID, false, map[string]string{"reason": "recovery_invalid"})
		return nil, domain.ErrRecoveryCodeInvalid
	}

	pair, err := s.issueTokens(ctx, account, persistent)
	if err != nil {
		return nil, err
	}
	s.record(domain.AuditLoginSuccess, account.ID, "account", account.ID, true, map[string]string{"factor": "recovery"})
	return pair, nil
}

// Refresh rotates the refresh token and mints a fresh pair. Redemption
// error kinds from the token service propagate unchanged.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	account, persistent, err := s.tokens.RedeemRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, domain.ErrTokenAlreadyUsed) {
			s.record(domain.AuditRefreshReuse, "", "token", "", false, nil)
		}
		return nil, err
	}

	pair, err := s.issueTokens(ctx, account, persistent)
	if err != nil {
		return nil, err
	}
	s.record(domain.AuditRefresh, account.ID, "account", account.ID, true, nil)
	return pair, nil
}

// Logout revokes every session of the account.
func (s *AuthService) Logout(ctx context.Context, accountID string) error {
	if err := s.tokens.RevokeAllSessions(ctx, accountID); err != nil {
		return err
	}
	s.record(domain.AuditLogout, accountID, "account", accountID, true, nil)
	return nil
}

// ChangePassword replaces the credential and revokes all sessions so the
// old password cannot keep any session alive.
func (s *AuthService) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	if newPassword == "" {
		return domain.ErrInvalidCredentials
	}
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !account.HasPassword() || bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(oldPassword)) != nil {
		return domain.ErrInvalidCredentials
	}
	if err := s.updatePassword(ctx, account, newPassword); err != nil {
		return err
	}
	s.record(domain.AuditPasswordChanged, accountID, "account", accountID, true, nil)
	return nil
}

// SetPassword adds a local credential to an account that has none, e.g. one
// provisioned through an external provider.
func (s *AuthService) SetPassword(ctx context.Context, accountID, newPassword string) error {
	if newPassword == "" {
		return domain.ErrInvalidCredentials
	}
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account.HasPassword() {
		return domain.ErrPasswordAlreadySet
	}
	if err := s.updatePassword(ctx, account, newPassword); err != nil {
		return err
	}
	s.record(domain.AuditPasswordSet, accountID, "account", accountID, true, nil)
	return nil
}

func (s *AuthService) updatePassword(ctx context.Context, account *domain.Account, newPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.accounts.UpdatePasswordHash(ctx, account.ID, string(hash), uuid.NewString()); err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	return s.tokens.RevokeAllSessions(ctx, account.ID)
}

func (s *AuthService) issueTokens(ctx context.Context, account *domain.Account, persistent bool) (*domain.TokenPair, error) {
	access, err := s.tokens.IssueAccessToken(account)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, _, err := s.tokens.IssueRefreshToken(ctx, account, persistent)
	if err != nil {
		return nil, err
	}
	return &domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *AuthService) issueChallenge(ctx context.Context, account *domain.Account, persistent bool) (string, error) {
	raw := make([]byte, challengeTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate challenge token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	challenge := &domain.TwoFactorChallenge{
		AccountID:  account.ID,
		Persistent: persistent,
		IssuedAt:   time.Now().UTC(),
	}
	if err := s.challenges.Put(ctx, hashToken(token), challenge, challengeTTL); err != nil {
		return "", fmt.Errorf("store challenge: %w", err)
	}
	return token, nil
}

func (s *AuthService) takeChallenge(ctx context.Context, challengeToken string) (*domain.Account, bool, error) {
	if challengeToken == "" {
		return nil, false, domain.ErrChallengeInvalid
	}
	challenge, err := s.challenges.Take(ctx, hashToken(challengeToken))
	if err != nil {
		return nil, false, domain.ErrChallengeInvalid
	}
	account, err := s.accounts.FindByID(ctx, challenge.AccountID)
	if err != nil {
		return nil, false, domain.ErrChallengeInvalid
	}
	return account, challenge.Persistent, nil
}

// recordLoginFailure bumps the failure counter and applies the lockout
// threshold. Counting happens for unknown identifiers too, keeping timing
// and side effects uniform across both failure kinds.
func (s *AuthService) recordLoginFailure(ctx context.Context, identifier string, account *domain.Account) {
	actorID := ""
	if account != nil {
		actorID = account.ID
	}
	s.record(domain.AuditLoginFailure, actorID, "account", actorID, false, nil)

	if s.lockouts == nil {
		return
	}
	count, err := s.lockouts.RecordFailure(ctx, identifier, s.lockoutFor)
	if err != nil || account == nil {
		return
	}
	if count >= s.maxFailures {
		until := time.Now().UTC().Add(s.lockoutFor).Unix()
		_ = s.accounts.SetLockout(ctx, account.ID, &until)
		_ = s.tokens.RevokeAllSessions(ctx, account.ID)
	}
}

func (s *AuthService) record(action, actorID, targetType, targetID string, success bool, meta map[string]string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(domain.AuditEvent{
		Action:     action,
		ActorID:    actorID,
		TargetType: targetType,
		TargetID:   targetID,
		Success:    success,
		Metadata:   meta,
		CreatedAt:  time.Now().UTC(),
	})
}

package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/stackpoint/account-service/internal/core/domain"
	"github.com/stackpoint/account-service/internal/core/ports"
)

const (
	stateTokenBytes = 32
	stateTTL        = 10 * time.Minute
	// exchangeTimeout bounds the provider round trips; on timeout the flow
	// fails closed as a code-exchange error.
	exchangeTimeout = 10 * time.Second
)

// ExternalAuthService runs the OAuth challenge/callback flow:
// ChallengeIssued → CallbackReceived → {Linked | LoggedIn | AccountCreated}.
// State nonces follow the refresh-token discipline: hashed at rest,
// single-use, TTL-bounded.
type ExternalAuthService struct {
	providers map[string]Provider
	allowlist []string
	states    ports.ExternalStateRepository
	logins    ports.ExternalLoginRepository
	accounts  ports.AccountRepository
	tokens    ports.TokenService
	audit     ports.AuditRecorder
}

func NewExternalAuthService(providers []Provider, redirectAllowlist []string, states ports.ExternalStateRepository, logins ports.ExternalLoginRepository, accounts ports.AccountRepository, tokens ports.TokenService, audit ports.AuditRecorder) *ExternalAuthService {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &ExternalAuthService{
		providers: byName,
		allowlist: redirectAllowlist,
		states:    states,
		logins:    logins,
		accounts:  accounts,
		tokens:    tokens,
		audit:     audit,
	}
}

// Providers lists the registered provider names, sorted for stable output.
func (s *ExternalAuthService) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CreateChallenge persists a single-use state record and returns the
// provider authorization URL with the plaintext nonce embedded.
// callerAccountID is non-empty when an authenticated user initiates a
// linking flow.
func (s *ExternalAuthService) CreateChallenge(ctx context.Context, provider, redirectURI, callerAccountID string) (string, error) {
	p, ok := s.providers[provider]
	if !ok {
		return "", domain.ErrUnknownProvider
	}
	if redirectURI != "" && !s.redirectAllowed(redirectURI) {
		return "", domain.ErrRedirectNotAllowed
	}

	raw := make([]byte, stateTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate state nonce: %w", err)
	}
	nonce := base64.RawURLEncoding.EncodeToString(raw)

	now := time.Now().UTC()
	state := &domain.ExternalAuthState{
		ID:          uuid.NewString(),
		TokenHash:   hashToken(nonce),
		Provider:    provider,
		RedirectURI: redirectURI,
		AccountID:   callerAccountID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(stateTTL),
	}
	if err := s.states.Create(ctx, state); err != nil {
		return "", fmt.Errorf("persist auth state: %w", err)
	}

	authURL, err := p.AuthorizationURL(nonce)
	if err != nil {
		return "", err
	}
	s.record(domain.AuditExternalChallenge, callerAccountID, "", true, map[string]string{"provider": provider})
	return authURL, nil
}

// HandleCallback consumes the state record and resolves the callback to one
// of the four outcomes. The state consume is atomic: replaying a state
// value, even immediately after a successful first use, fails InvalidState.
func (s *ExternalAuthService) HandleCallback(ctx context.Context, code, stateValue, callerAccountID string) (*domain.CallbackOutcome, error) {
	if code == "" || stateValue == "" {
		return nil, domain.ErrInvalidState
	}
	state, err := s.states.Consume(ctx, hashToken(stateValue))
	if err != nil {
		return nil, domain.ErrInvalidState
	}
	p, ok := s.providers[state.Provider]
	if !ok {
		return nil, domain.ErrUnknownProvider
	}

	// A state created by an authenticated caller binds the callback to
	// that account even if the browser session changed in between.
	if state.AccountID != "" {
		callerAccountID = state.AccountID
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()
	profile, err := s.exchange(exchangeCtx, p, code)
	if err != nil {
		s.record(domain.AuditExternalCallback, callerAccountID, "", false, map[string]string{"provider": state.Provider, "reason": "code_exchange"})
		return nil, domain.ErrCodeExchangeFailed
	}

	existing, err := s.logins.Find(ctx, state.Provider, profile.ProviderUserID)
	if err == nil {
		return s.callbackForExistingLink(ctx, state.Provider, existing, callerAccountID)
	}

	if callerAccountID != "" {
		return s.linkToCaller(ctx, state.Provider, profile, callerAccountID)
	}
	return s.loginOrProvision(ctx, state.Provider, profile)
}

// callbackForExistingLink handles a provider identity that is already
// linked to some account.
func (s *ExternalAuthService) callbackForExistingLink(ctx context.Context, provider string, link *domain.ExternalLogin, callerAccountID string) (*domain.CallbackOutcome, error) {
	switch {
	case callerAccountID == "":
		account, err := s.accounts.FindByID(ctx, link.AccountID)
		if err != nil {
			return nil, err
		}
		pair, err := s.issuePair(ctx, account)
		if err != nil {
			return nil, err
		}
		s.record(domain.AuditExternalCallback, account.ID, account.ID, true, map[string]string{"provider": provider, "outcome": "login"})
		return &domain.CallbackOutcome{Result: domain.CallbackLoggedIn, Tokens: pair}, nil
	case callerAccountID != link.AccountID:
		s.record(domain.AuditExternalCallback, callerAccountID, link.AccountID, false, map[string]string{"provider": provider, "reason": "linked_elsewhere"})
		return nil, domain.ErrAlreadyLinkedToOtherUser
	default:
		// Same account: linking again is a no-op success.
		return &domain.CallbackOutcome{Result: domain.CallbackAlreadyLinked}, nil
	}
}

// linkToCaller attaches the provider identity to the authenticated caller.
// No tokens are issued; the caller already has a session.
func (s *ExternalAuthService) linkToCaller(ctx context.Context, provider string, profile *domain.ExternalProfile, callerAccountID string) (*domain.CallbackOutcome, error) {
	if _, err := s.accounts.FindByID(ctx, callerAccountID); err != nil {
		return nil, err
	}
	if err := s.createLink(ctx, provider, profile, callerAccountID); err != nil {
		return nil, err
	}
	s.record(domain.AuditExternalCallback, callerAccountID, callerAccountID, true, map[string]string{"provider": provider, "outcome": "linked"})
	return &domain.CallbackOutcome{Result: domain.CallbackLinked}, nil
}

// loginOrProvision handles an anonymous callback with no existing link:
// auto-link to an account matching the provider's verified email, or create
// a fresh account with the default role.
func (s *ExternalAuthService) loginOrProvision(ctx context.Context, provider string, profile *domain.ExternalProfile) (*domain.CallbackOutcome, error) {
	if profile.Email != "" {
		account, err := s.accounts.FindByEmail(ctx, profile.Email)
		if err == nil {
			// Auto-linking requires the email verified on both sides;
			// otherwise an unverified claimed email could take over the
			// existing account.
			if !profile.EmailVerified || !account.EmailConfirmed {
				s.record(domain.AuditExternalCallback, "", account.ID, false, map[string]string{"provider": provider, "reason": "email_not_verified"})
				return nil, domain.ErrEmailNotVerified
			}
			if err := s.createLink(ctx, provider, profile, account.ID); err != nil {
				return nil, err
			}
			pair, err := s.issuePair(ctx, account)
			if err != nil {
				return nil, err
			}
			s.record(domain.AuditExternalCallback, account.ID, account.ID, true, map[string]string{"provider": provider, "outcome": "auto_linked"})
			return &domain.CallbackOutcome{Result: domain.CallbackLoggedIn, Tokens: pair}, nil
		}
	}

	now := time.Now().UTC()
	account, err := s.accounts.Create(ctx, &domain.Account{
		ID:             uuid.NewString(),
		Email:          profile.Email,
		Username:       profile.DisplayName,
		SecurityStamp:  uuid.NewString(),
		EmailConfirmed: profile.EmailVerified,
		Roles:          []string{domain.RoleUser},
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return nil, err
	}
	if err := s.createLink(ctx, provider, profile, account.ID); err != nil {
		return nil, err
	}
	pair, err := s.issuePair(ctx, account)
	if err != nil {
		return nil, err
	}
	s.record(domain.AuditExternalCallback, account.ID, account.ID, true, map[string]string{"provider": provider, "outcome": "account_created"})
	return &domain.CallbackOutcome{Result: domain.CallbackAccountCreated, Tokens: pair}, nil
}

// UnlinkProvider removes a provider link. The last authentication method is
// protected: an account without a local password keeps at least one link.
func (s *ExternalAuthService) UnlinkProvider(ctx context.Context, provider, accountID string) error {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !account.HasPassword() {
		count, err := s.logins.CountForAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if count <= 1 {
			return domain.ErrCannotUnlinkLastMethod
		}
	}
	if err := s.logins.Delete(ctx, provider, accountID); err != nil {
		return err
	}
	s.record(domain.AuditExternalUnlink, accountID, accountID, true, map[string]string{"provider": provider})
	return nil
}

func (s *ExternalAuthService) exchange(ctx context.Context, p Provider, code string) (*domain.ExternalProfile, error) {
	accessToken, err := p.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return p.FetchProfile(ctx, accessToken)
}

func (s *ExternalAuthService) createLink(ctx context.Context, provider string, profile *domain.ExternalProfile, accountID string) error {
	return s.logins.Create(ctx, &domain.ExternalLogin{
		Provider:       provider,
		ProviderUserID: profile.ProviderUserID,
		AccountID:      accountID,
		Email:          profile.Email,
		CreatedAt:      time.Now().UTC(),
	})
}

func (s *ExternalAuthService) issuePair(ctx context.Context, account *domain.Account) (*domain.TokenPair, error) {
	access, err := s.tokens.IssueAccessToken(account)
	if err != nil {
		return nil, err
	}
	refresh, _, err := s.tokens.IssueRefreshToken(ctx, account, false)
	if err != nil {
		return nil, err
	}
	return &domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// redirectAllowed checks the redirect URI's host against the configured
// allowlist. Unparseable and schemeless URIs fail closed.
func (s *ExternalAuthService) redirectAllowed(uri string) bool {
	u, err := url.Parse(uri)
	if err != nil || u.Host == "" {
		return false
	}
	host := u.Hostname()
	for _, allowed := range s.allowlist {
		if allowed == host {
			return true
		}
	}
	return false
}

func (s *ExternalAuthService) record(action, actorID, targetID string, success bool, meta map[string]string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(domain.AuditEvent{
		Action:     action,
		ActorID:    actorID,
		TargetType: "account",
		TargetID:   targetID,
		Success:    success,
		Metadata:   meta,
		CreatedAt:  time.Now().UTC(),
	})
}

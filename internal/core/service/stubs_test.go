package service

import (
	"context"
	"sync"
	"time"

	"github.com/stackpoint/account-service/internal/core/domain"
)

// In-memory fakes shared by the service tests. They honour the same
// atomicity contracts as the real adapters: single-winner token consumption,
// conditional role removal, delete-on-read challenges.

type stubAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account
}

func newStubAccountRepo() *stubAccountRepo {
	return &stubAccountRepo{accounts: make(map[string]*domain.Account)}
}

func cloneAccount(a *domain.Account) *domain.Account {
	if a == nil {
		return nil
	}
	clone := *a
	clone.Roles = append([]string(nil), a.Roles...)
	clone.TwoFactor.RecoveryCodeHashes = append([]string(nil), a.TwoFactor.RecoveryCodeHashes...)
	return &clone
}

func (r *stubAccountRepo) add(a *domain.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[a.ID] = cloneAccount(a)
}

func (r *stubAccountRepo) get(id string) *domain.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneAccount(r.accounts[id])
}

func (r *stubAccountRepo) FindByID(_ context.Context, id string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return cloneAccount(a), nil
}

func (r *stubAccountRepo) FindByEmail(_ context.Context, email string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Email == email || a.Username == email {
			return cloneAccount(a), nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (r *stubAccountRepo) Create(_ context.Context, account *domain.Account) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Email == account.Email && account.Email != "" {
			return nil, domain.ErrAccountExists
		}
	}
	r.accounts[account.ID] = cloneAccount(account)
	return cloneAccount(account), nil
}

func (r *stubAccountRepo) UpdatePasswordHash(_ context.Context, id, hash, newStamp string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.PasswordHash = hash
	a.SecurityStamp = newStamp
	return nil
}

func (r *stubAccountRepo) UpdateSecurityStamp(_ context.Context, id, newStamp string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.SecurityStamp = newStamp
	return nil
}

func (r *stubAccountRepo) SetLockout(_ context.Context, id string, until *int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	if until == nil {
		a.LockoutUntil = nil
		return nil
	}
	t := time.Unix(*until, 0).UTC()
	a.LockoutUntil = &t
	return nil
}

func (r *stubAccountRepo) SetEmailConfirmed(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.EmailConfirmed = true
	return nil
}

func (r *stubAccountRepo) ConsumeRecoveryCode(_ context.Context, id, codeHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	for i, h := range a.TwoFactor.RecoveryCodeHashes {
		if h == codeHash {
			a.TwoFactor.RecoveryCodeHashes = append(a.TwoFactor.RecoveryCodeHashes[:i], a.TwoFactor.RecoveryCodeHashes[i+1:]...)
			return nil
		}
	}
	return domain.ErrRecoveryCodeInvalid
}

func (r *stubAccountRepo) AddRole(_ context.Context, id, role string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	for _, existing := range a.Roles {
		if existing == role {
			return domain.ErrRoleAlreadyAssigned
		}
	}
	a.Roles = append(a.Roles, role)
	return nil
}

func (r *stubAccountRepo) RemoveRole(_ context.Context, id, role string, minHolders int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	if minHolders > 0 && r.countRoleLocked(role) < minHolders {
		return domain.ErrLastAdmin
	}
	for i, existing := range a.Roles {
		if existing == role {
			a.Roles = append(a.Roles[:i], a.Roles[i+1:]...)
			return nil
		}
	}
	return domain.ErrRoleNotAssigned
}

func (r *stubAccountRepo) countRoleLocked(role string) int64 {
	var n int64
	for _, a := range r.accounts {
		for _, existing := range a.Roles {
			if existing == role {
				n++
			}
		}
	}
	return n
}

func (r *stubAccountRepo) CountRoleHolders(_ context.Context, role string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.countRoleLocked(role), nil
}

func (r *stubAccountRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	for _, role := range a.Roles {
		if domain.IsAdministrative(role) && r.countRoleLocked(role) < 2 {
			return domain.ErrLastAdmin
		}
	}
	delete(r.accounts, id)
	return nil
}

type stubTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*domain.RefreshToken
}

func newStubTokenRepo() *stubTokenRepo {
	return &stubTokenRepo{tokens: make(map[string]*domain.RefreshToken)}
}

func (r *stubTokenRepo) Create(_ context.Context, token *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *token
	r.tokens[token.TokenHash] = &clone
	return nil
}

func (r *stubTokenRepo) Consume(_ context.Context, tokenHash string) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[tokenHash]
	if !ok || !t.Redeemable(time.Now().UTC()) {
		return nil, domain.ErrTokenNotFound
	}
	t.IsUsed = true
	clone := *t
	return &clone, nil
}

func (r *stubTokenRepo) FindByHash(_ context.Context, tokenHash string) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[tokenHash]
	if !ok {
		return nil, domain.ErrTokenNotFound
	}
	clone := *t
	return &clone, nil
}

func (r *stubTokenRepo) InvalidateAllForAccount(_ context.Context, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.AccountID == accountID {
			t.IsInvalidated = true
		}
	}
	return nil
}

type stubChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]*domain.TwoFactorChallenge
}

func newStubChallengeStore() *stubChallengeStore {
	return &stubChallengeStore{challenges: make(map[string]*domain.TwoFactorChallenge)}
}

func (s *stubChallengeStore) Put(_ context.Context, token string, challenge *domain.TwoFactorChallenge, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *challenge
	s.challenges[token] = &clone
	return nil
}

func (s *stubChallengeStore) Take(_ context.Context, token string) (*domain.TwoFactorChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[token]
	if !ok {
		return nil, domain.ErrChallengeInvalid
	}
	delete(s.challenges, token)
	return c, nil
}

type stubLockoutStore struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newStubLockoutStore() *stubLockoutStore {
	return &stubLockoutStore{counts: make(map[string]int64)}
}

func (s *stubLockoutStore) RecordFailure(_ context.Context, identifier string, _ time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[identifier]++
	return s.counts[identifier], nil
}

func (s *stubLockoutStore) Reset(_ context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counts, identifier)
	return nil
}

type stubAudit struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (s *stubAudit) Record(event domain.AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *stubAudit) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Action
	}
	return out
}

type stubRoleRepo struct {
	roles map[string]*domain.Role
}

func newStubRoleRepo() *stubRoleRepo {
	return &stubRoleRepo{roles: make(map[string]*domain.Role)}
}

func (r *stubRoleRepo) FindByName(_ context.Context, name string) (*domain.Role, error) {
	if role, ok := r.roles[name]; ok {
		clone := *role
		return &clone, nil
	}
	if domain.RankOf(name) > domain.RankNone {
		return &domain.Role{Name: name}, nil
	}
	return nil, domain.ErrRoleNotFound
}

func (r *stubRoleRepo) PermissionsForRoles(_ context.Context, names []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, name := range names {
		role, ok := r.roles[name]
		if !ok {
			continue
		}
		for _, p := range role.Permissions {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out, nil
}

type stubStateRepo struct {
	mu     sync.Mutex
	states map[string]*domain.ExternalAuthState
}

func newStubStateRepo() *stubStateRepo {
	return &stubStateRepo{states: make(map[string]*domain.ExternalAuthState)}
}

func (r *stubStateRepo) Create(_ context.Context, state *domain.ExternalAuthState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *state
	r.states[state.TokenHash] = &clone
	return nil
}

func (r *stubStateRepo) Consume(_ context.Context, tokenHash string) (*domain.ExternalAuthState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[tokenHash]
	if !ok || s.IsUsed || time.Now().UTC().After(s.ExpiresAt) {
		return nil, domain.ErrInvalidState
	}
	s.IsUsed = true
	clone := *s
	return &clone, nil
}

type stubLoginRepo struct {
	mu     sync.Mutex
	logins []*domain.ExternalLogin
}

func (r *stubLoginRepo) Find(_ context.Context, provider, providerUserID string) (*domain.ExternalLogin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.logins {
		if l.Provider == provider && l.ProviderUserID == providerUserID {
			clone := *l
			return &clone, nil
		}
	}
	return nil, domain.ErrLinkNotFound
}

func (r *stubLoginRepo) Create(_ context.Context, login *domain.ExternalLogin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.logins {
		if l.Provider == login.Provider && l.ProviderUserID == login.ProviderUserID {
			return domain.ErrAlreadyLinked
		}
	}
	clone := *login
	r.logins = append(r.logins, &clone)
	return nil
}

func (r *stubLoginRepo) Delete(_ context.Context, provider, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, l := range r.logins {
		if l.Provider == provider && l.AccountID == accountID {
			r.logins = append(r.logins[:i], r.logins[i+1:]...)
			return nil
		}
	}
	return domain.ErrLinkNotFound
}

func (r *stubLoginRepo) CountForAccount(_ context.Context, accountID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, l := range r.logins {
		if l.AccountID == accountID {
			n++
		}
	}
	return n, nil
}

type stubMailer struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (m *stubMailer) SendPasswordReset(_ context.Context, email, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, email)
	return nil
}

package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/stackpoint/account-service/internal/core/domain"
	"github.com/stackpoint/account-service/internal/core/service"
)

// readerRepo serves accounts by ID; everything else is unused by the
// middleware and fails loudly if reached.
type readerRepo struct {
	accounts map[string]*domain.Account
}

func (r *readerRepo) FindByID(_ context.Context, id string) (*domain.Account, error) {
	if a, ok := r.accounts[id]; ok {
		copied := *a
		return &copied, nil
	}
	return nil, domain.ErrAccountNotFound
}

func (r *readerRepo) FindByEmail(context.Context, string) (*domain.Account, error) {
	return nil, errors.New("not implemented")
}
func (r *readerRepo) Create(context.Context, *domain.Account) (*domain.Account, error) {
	return nil, errors.New("not implemented")
}
func (r *readerRepo) UpdatePasswordHash(context.Context, string, string, string) error {
	return errors.New("not implemented")
}
func (r *readerRepo) UpdateSecurityStamp(context.Context, string, string) error {
	return errors.New("not implemented")
}
func (r *readerRepo) SetLockout(context.Context, string, *int64) error {
	return errors.New("not implemented")
}
func (r *readerRepo) SetEmailConfirmed(context.Context, string) error {
	return errors.New("not implemented")
}
func (r *readerRepo) ConsumeRecoveryCode(context.Context, string, string) error {
	return errors.New("not implemented")
}
func (r *readerRepo) AddRole(context.Context, string, string) error {
	return errors.New("not implemented")
}
func (r *readerRepo) RemoveRole(context.Context, string, string, int64) error {
	return errors.New("not implemented")
}
func (r *readerRepo) CountRoleHolders(context.Context, string) (int64, error) {
	return 0, errors.New("not implemented")
}
func (r *readerRepo) Delete(context.Context, string) error {
	return errors.New("not implemented")
}

func authFixture(t *testing.T) (*service.TokenService, *readerRepo, *domain.Account) {
	t.Helper()
	account := &domain.Account{
		ID:            "acc-1",
		Email:         "alice@example.com",
		SecurityStamp: "stamp-1",
		Roles:         []string{"user"},
	}
	repo := &readerRepo{accounts: map[string]*domain.Account{account.ID: account}}
	tokens := service.NewTokenService(nil, repo, "test-secret", "accounts-test", 15*time.Minute, 0, 0)
	return tokens, repo, account
}

func invoke(mw echo.MiddlewareFunc, req *http.Request) (*httptest.ResponseRecorder, echo.Context, error) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	handler := mw(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	return rec, c, handler(c)
}

func httpStatus(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	return he.Code
}

func TestAuth_ValidHeaderToken(t *testing.T) {
	tokens, repo, account := authFixture(t)
	access, err := tokens.IssueAccessToken(account)
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	_, c, err := invoke(Auth(tokens, repo), req)
	if err != nil {
		t.Fatalf("expected request through, got %v", err)
	}
	if got := c.Get(CtxAccountID); got != account.ID {
		t.Fatalf("expected account id in context, got %v", got)
	}
	if got, _ := c.Get(CtxRoles).([]string); len(got) != 1 || got[0] != "user" {
		t.Fatalf("expected roles in context, got %v", got)
	}
}

func TestAuth_CookieFallback(t *testing.T) {
	tokens, repo, account := authFixture(t)
	access, _ := tokens.IssueAccessToken(account)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: access})
	_, c, err := invoke(Auth(tokens, repo), req)
	if err != nil {
		t.Fatalf("expected cookie token accepted, got %v", err)
	}
	if c.Get(CtxAccountID) != account.ID {
		t.Fatal("expected identity from cookie token")
	}
}

func TestAuth_HeaderBeatsCookie(t *testing.T) {
	tokens, repo, account := authFixture(t)
	access, _ := tokens.IssueAccessToken(account)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: access})
	_, _, err := invoke(Auth(tokens, repo), req)
	if httpStatus(t, err) != http.StatusUnauthorized {
		t.Fatal("a bad header token must not fall back to the cookie")
	}
}

func TestAuth_MissingToken(t *testing.T) {
	tokens, repo, _ := authFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	_, _, err := invoke(Auth(tokens, repo), req)
	if httpStatus(t, err) != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestAuth_StaleSecurityStamp(t *testing.T) {
	tokens, repo, account := authFixture(t)
	access, _ := tokens.IssueAccessToken(account)

	// A password or role change rotates the stamp; the old token dies.
	repo.accounts[account.ID].SecurityStamp = "stamp-2"

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	_, _, err := invoke(Auth(tokens, repo), req)
	if httpStatus(t, err) != http.StatusUnauthorized {
		t.Fatalf("expected 401 for rotated stamp, got %v", err)
	}
}

func TestAuth_LockedAccount(t *testing.T) {
	tokens, repo, account := authFixture(t)
	access, _ := tokens.IssueAccessToken(account)

	until := time.Now().UTC().Add(time.Hour)
	repo.accounts[account.ID].LockoutUntil = &until

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	_, _, err := invoke(Auth(tokens, repo), req)
	if httpStatus(t, err) != http.StatusForbidden {
		t.Fatalf("expected 403 for locked account, got %v", err)
	}
}

func TestAuth_DeletedAccount(t *testing.T) {
	tokens, repo, account := authFixture(t)
	access, _ := tokens.IssueAccessToken(account)
	delete(repo.accounts, account.ID)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	_, _, err := invoke(Auth(tokens, repo), req)
	if httpStatus(t, err) != http.StatusUnauthorized {
		t.Fatalf("expected 401 for deleted account, got %v", err)
	}
}

func TestOptionalAuth_AnonymousPassesThrough(t *testing.T) {
	tokens, repo, _ := authFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/auth/external/google/challenge", nil)
	_, c, err := invoke(OptionalAuth(tokens, repo), req)
	if err != nil {
		t.Fatalf("anonymous request must pass, got %v", err)
	}
	if c.Get(CtxAccountID) != nil {
		t.Fatal("expected no identity for anonymous request")
	}
}

func TestOptionalAuth_BadTokenPassesAnonymously(t *testing.T) {
	tokens, repo, _ := authFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/auth/external/google/challenge", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	_, c, err := invoke(OptionalAuth(tokens, repo), req)
	if err != nil {
		t.Fatalf("invalid token must degrade to anonymous, got %v", err)
	}
	if c.Get(CtxAccountID) != nil {
		t.Fatal("expected no identity for invalid token")
	}
}

func TestOptionalAuth_ValidTokenSetsIdentity(t *testing.T) {
	tokens, repo, account := authFixture(t)
	access, _ := tokens.IssueAccessToken(account)
	req := httptest.NewRequest(http.MethodGet, "/auth/external/google/challenge", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	_, c, err := invoke(OptionalAuth(tokens, repo), req)
	if err != nil {
		t.Fatalf("valid token must pass, got %v", err)
	}
	if c.Get(CtxAccountID) != account.ID {
		t.Fatal("expected identity set for valid token")
	}
}

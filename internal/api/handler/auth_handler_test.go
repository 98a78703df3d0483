package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/stackpoint/account-service/internal/api/middleware"
	"github.com/stackpoint/account-service/internal/core/domain"
)

// stubAuthService returns canned results and records the inputs it saw.
type stubAuthService struct {
	loginOutcome  *domain.LoginOutcome
	loginErr      error
	refreshPair   *domain.TokenPair
	refreshErr    error
	refreshedWith string
	loggedOut     string
}

func (s *stubAuthService) Register(_ context.Context, email, username, _ string) (*domain.Account, error) {
	return &domain.Account{ID: "acc-new", Email: email, Username: username, Roles: []string{"user"}}, nil
}

func (s *stubAuthService) Login(context.Context, string, string, bool) (*domain.LoginOutcome, error) {
	return s.loginOutcome, s.loginErr
}

func (s *stubAuthService) CompleteTwoFactor(context.Context, string, string) (*domain.TokenPair, error) {
	return s.refreshPair, s.refreshErr
}

func (s *stubAuthService) CompleteTwoFactorRecovery(context.Context, string, string) (*domain.TokenPair, error) {
	return s.refreshPair, s.refreshErr
}

func (s *stubAuthService) Refresh(_ context.Context, token string) (*domain.TokenPair, error) {
	s.refreshedWith = token
	return s.refreshPair, s.refreshErr
}

func (s *stubAuthService) Logout(_ context.Context, accountID string) error {
	s.loggedOut = accountID
	return nil
}

func (s *stubAuthService) ChangePassword(context.Context, string, string, string) error { return nil }
func (s *stubAuthService) SetPassword(context.Context, string, string) error            { return nil }

func newTestContext(t *testing.T, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	e.Validator = NewValidator()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func testCookies() CookieSettings {
	return CookieSettings{
		Enabled:    true,
		Secure:     true,
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	}
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func TestAuthHandler_LoginSetsCookies(t *testing.T) {
	svc := &stubAuthService{
		loginOutcome: &domain.LoginOutcome{
			Tokens: domain.TokenPair{AccessToken: "acc.jwt", RefreshToken: "opaque-refresh"},
		},
	}
	h := NewAuthHandler(svc, nil, testCookies())

	c, rec := newTestContext(t, http.MethodPost, "/auth/login",
		`{"identifier":"alice@example.com","password":"hunter2!"}`)
	if err := h.Login(c); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Tokens == nil || resp.Tokens.AccessToken != "acc.jwt" {
		t.Fatalf("expected token pair in body, got %+v", resp)
	}

	access := findCookie(rec, middleware.AccessTokenCookie)
	if access == nil || access.Value != "acc.jwt" || !access.HttpOnly {
		t.Fatalf("expected HttpOnly access cookie, got %+v", access)
	}
	refresh := findCookie(rec, RefreshTokenCookie)
	if refresh == nil || refresh.Path != "/auth/refresh" {
		t.Fatalf("refresh cookie must be scoped to the refresh path, got %+v", refresh)
	}
}

func TestAuthHandler_LoginTwoFactorChallenge(t *testing.T) {
	svc := &stubAuthService{
		loginOutcome: &domain.LoginOutcome{RequiresTwoFactor: true, ChallengeToken: "chal-1"},
	}
	h := NewAuthHandler(svc, nil, testCookies())

	c, rec := newTestContext(t, http.MethodPost, "/auth/login",
		`{"identifier":"alice@example.com","password":"hunter2!"}`)
	if err := h.Login(c); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !resp.RequiresTwoFactor || resp.ChallengeToken != "chal-1" {
		t.Fatalf("expected a challenge, got %+v", resp)
	}
	if resp.Tokens != nil {
		t.Fatal("no tokens may be issued before the second factor")
	}
	if findCookie(rec, middleware.AccessTokenCookie) != nil {
		t.Fatal("no cookies may be set before the second factor")
	}
}

func TestAuthHandler_LoginValidation(t *testing.T) {
	h := NewAuthHandler(&stubAuthService{}, nil, testCookies())
	c, _ := newTestContext(t, http.MethodPost, "/auth/login", `{"identifier":"alice@example.com"}`)
	err := h.Login(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing password, got %v", err)
	}
}

func TestAuthHandler_RefreshFromBody(t *testing.T) {
	svc := &stubAuthService{
		refreshPair: &domain.TokenPair{AccessToken: "new.jwt", RefreshToken: "next-refresh"},
	}
	h := NewAuthHandler(svc, nil, testCookies())

	c, rec := newTestContext(t, http.MethodPost, "/auth/refresh", `{"refresh_token":"current-refresh"}`)
	if err := h.Refresh(c); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if svc.refreshedWith != "current-refresh" {
		t.Fatalf("expected body token used, got %q", svc.refreshedWith)
	}
	var resp tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.RefreshToken != "next-refresh" {
		t.Fatalf("expected rotated token in body, got %+v", resp)
	}
}

func TestAuthHandler_RefreshFromCookie(t *testing.T) {
	svc := &stubAuthService{
		refreshPair: &domain.TokenPair{AccessToken: "new.jwt", RefreshToken: "next-refresh"},
	}
	h := NewAuthHandler(svc, nil, testCookies())

	c, _ := newTestContext(t, http.MethodPost, "/auth/refresh", "")
	c.Request().AddCookie(&http.Cookie{Name: RefreshTokenCookie, Value: "cookie-refresh"})
	if err := h.Refresh(c); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if svc.refreshedWith != "cookie-refresh" {
		t.Fatalf("expected cookie token used, got %q", svc.refreshedWith)
	}
}

func TestAuthHandler_RefreshMissingToken(t *testing.T) {
	h := NewAuthHandler(&stubAuthService{}, nil, testCookies())
	c, _ := newTestContext(t, http.MethodPost, "/auth/refresh", "")
	err := h.Refresh(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token or cookie, got %v", err)
	}
}

func TestAuthHandler_RefreshFailureClearsCookies(t *testing.T) {
	svc := &stubAuthService{refreshErr: domain.ErrTokenAlreadyUsed}
	h := NewAuthHandler(svc, nil, testCookies())

	c, rec := newTestContext(t, http.MethodPost, "/auth/refresh", `{"refresh_token":"spent"}`)
	if err := h.Refresh(c); !errors.Is(err, domain.ErrTokenAlreadyUsed) {
		t.Fatalf("expected reuse error to surface, got %v", err)
	}
	access := findCookie(rec, middleware.AccessTokenCookie)
	if access == nil || access.Value != "" || access.MaxAge >= 0 {
		t.Fatalf("expected access cookie cleared, got %+v", access)
	}
}

func TestAuthHandler_LogoutRevokesAndClears(t *testing.T) {
	svc := &stubAuthService{}
	h := NewAuthHandler(svc, nil, testCookies())

	c, rec := newTestContext(t, http.MethodPost, "/auth/logout", "")
	c.Set(middleware.CtxAccountID, "acc-1")
	if err := h.Logout(c); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if svc.loggedOut != "acc-1" {
		t.Fatalf("expected logout for acc-1, got %q", svc.loggedOut)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	refresh := findCookie(rec, RefreshTokenCookie)
	if refresh == nil || refresh.MaxAge >= 0 {
		t.Fatalf("expected refresh cookie cleared, got %+v", refresh)
	}
}

func TestAuthHandler_LogoutWithoutIdentity(t *testing.T) {
	h := NewAuthHandler(&stubAuthService{}, nil, testCookies())
	c, _ := newTestContext(t, http.MethodPost, "/auth/logout", "")
	err := h.Logout(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %v", err)
	}
}

func TestAuthHandler_Register(t *testing.T) {
	h := NewAuthHandler(&stubAuthService{}, nil, testCookies())
	c, rec := newTestContext(t, http.MethodPost, "/auth/register",
		`{"email":"bob@example.com","username":"bob","password":"longenough1"}`)
	if err := h.Register(c); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var resp accountResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Email != "bob@example.com" || len(resp.Roles) != 1 {
		t.Fatalf("unexpected account response: %+v", resp)
	}
}

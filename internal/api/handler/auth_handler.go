package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/stackpoint/account-service/internal/api/metrics"
	"github.com/stackpoint/account-service/internal/core/domain"
	"github.com/stackpoint/account-service/internal/core/ports"
)

// AuthHandler exposes the credential login state machine, refresh rotation,
// and password management over HTTP.
type AuthHandler struct {
	auth     ports.AuthService
	accounts ports.AccountRepository
	cookies  CookieSettings
}

func NewAuthHandler(auth ports.AuthService, accounts ports.AccountRepository, cookies CookieSettings) *AuthHandler {
	return &AuthHandler{auth: auth, accounts: accounts, cookies: cookies}
}

// Register creates a new account with the default role.
//
// @Summary      Register a new account
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      registerRequest  true  "Registration details"
// @Success      201   {object}  accountResponse
// @Failure      400   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	account, err := h.auth.Register(c.Request().Context(), req.Email, req.Username, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toAccountResponse(account))
}

// Login runs the first authentication step. When the account has two-factor
// enabled the response carries a challenge token instead of a token pair.
//
// @Summary      Login with credentials
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  loginResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	outcome, err := h.auth.Login(c.Request().Context(), req.Identifier, req.Password, req.RememberMe)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues(loginResult(err)).Inc()
		return err
	}

	if outcome.RequiresTwoFactor {
		metrics.LoginsTotal.WithLabelValues("two_factor_required").Inc()
		return c.JSON(http.StatusOK, loginResponse{
			RequiresTwoFactor: true,
			ChallengeToken:    outcome.ChallengeToken,
		})
	}

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	h.cookies.set(c, outcome.Tokens)
	return c.JSON(http.StatusOK, loginResponse{
		Tokens: &tokenResponse{
			AccessToken:  outcome.Tokens.AccessToken,
			RefreshToken: outcome.Tokens.RefreshToken,
		},
	})
}

// CompleteTwoFactor finishes a pending login with a TOTP code.
//
// @Summary      Complete two-factor login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      twoFactorRequest  true  "Challenge token and code"
// @Success      200   {object}  tokenResponse
// @Failure      401   {object}  errorResponse
// @Router       /auth/login/2fa [post]
func (h *AuthHandler) CompleteTwoFactor(c echo.Context) error {
	var req twoFactorRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	pair, err := h.auth.CompleteTwoFactor(c.Request().Context(), req.ChallengeToken, req.Code)
	if err != nil {
		metrics.TwoFactorTotal.WithLabelValues("totp", "failure").Inc()
		return err
	}

	metrics.TwoFactorTotal.WithLabelValues("totp", "success").Inc()
	h.cookies.set(c, *pair)
	return c.JSON(http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// CompleteTwoFactorRecovery finishes a pending login with a single-use
// recovery code.
//
// @Summary      Complete two-factor login with a recovery code
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      recoveryCodeRequest  true  "Challenge token and recovery code"
// @Success      200   {object}  tokenResponse
// @Failure      401   {object}  errorResponse
// @Router       /auth/login/recovery [post]
func (h *AuthHandler) CompleteTwoFactorRecovery(c echo.Context) error {
	var req recoveryCodeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	pair, err := h.auth.CompleteTwoFactorRecovery(c.Request().Context(), req.ChallengeToken, req.RecoveryCode)
	if err != nil {
		metrics.TwoFactorTotal.WithLabelValues("recovery_code", "failure").Inc()
		return err
	}

	metrics.TwoFactorTotal.WithLabelValues("recovery_code", "success").Inc()
	h.cookies.set(c, *pair)
	return c.JSON(http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// Refresh redeems a refresh token for a fresh pair. Tokens are single-use:
// replaying a spent one fails and the reuse is recorded for audit.
//
// @Summary      Rotate a refresh token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      refreshRequest  false  "Refresh token (omit when using cookies)"
// @Success      200   {object}  tokenResponse
// @Failure      401   {object}  errorResponse
// @Router       /auth/refresh [post]
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	token := req.RefreshToken
	if token == "" {
		cookie, err := c.Cookie(RefreshTokenCookie)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing refresh token")
		}
		token = cookie.Value
	}

	timer := metrics.NewRefreshTimer()
	pair, err := h.auth.Refresh(c.Request().Context(), token)
	timer.ObserveDuration()
	metrics.RefreshTotal.WithLabelValues(refreshResult(err)).Inc()
	if err != nil {
		h.cookies.clear(c)
		return err
	}

	h.cookies.set(c, *pair)
	return c.JSON(http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// Logout revokes every session of the authenticated account.
//
// @Summary      Logout everywhere
// @Tags         auth
// @Produce      json
// @Success      204
// @Failure      401   {object}  errorResponse
// @Security     BearerAuth
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	accountID, err := ctxAccountID(c)
	if err != nil {
		return err
	}
	if err := h.auth.Logout(c.Request().Context(), accountID); err != nil {
		return err
	}
	h.cookies.clear(c)
	return c.NoContent(http.StatusNoContent)
}

// Me returns the authenticated account.
//
// @Summary      Current account
// @Tags         auth
// @Produce      json
// @Success      200   {object}  accountResponse
// @Failure      401   {object}  errorResponse
// @Security     BearerAuth
// @Router       /auth/me [get]
func (h *AuthHandler) Me(c echo.Context) error {
	accountID, err := ctxAccountID(c)
	if err != nil {
		return err
	}
	account, err := h.accounts.FindByID(c.Request().Context(), accountID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toAccountResponse(account))
}

// ChangePassword replaces the caller's password and revokes all sessions.
//
// @Summary      Change password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      changePasswordRequest  true  "Old and new password"
// @Success      204
// @Failure      401   {object}  errorResponse
// @Security     BearerAuth
// @Router       /auth/password/change [post]
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	accountID, err := ctxAccountID(c)
	if err != nil {
		return err
	}
	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.auth.ChangePassword(c.Request().Context(), accountID, req.OldPassword, req.NewPassword); err != nil {
		return err
	}
	h.cookies.clear(c)
	return c.NoContent(http.StatusNoContent)
}

// SetPassword gives a password to an account provisioned through an external
// provider. Fails when a password already exists.
//
// @Summary      Set initial password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      setPasswordRequest  true  "New password"
// @Success      204
// @Failure      409   {object}  errorResponse
// @Security     BearerAuth
// @Router       /auth/password/set [post]
func (h *AuthHandler) SetPassword(c echo.Context) error {
	accountID, err := ctxAccountID(c)
	if err != nil {
		return err
	}
	var req setPasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.auth.SetPassword(c.Request().Context(), accountID, req.NewPassword); err != nil {
		return err
	}
	h.cookies.clear(c)
	return c.NoContent(http.StatusNoContent)
}

func toAccountResponse(account *domain.Account) accountResponse {
	return accountResponse{
		ID:             account.ID,
		Email:          account.Email,
		Username:       account.Username,
		EmailConfirmed: account.EmailConfirmed,
		TwoFactor:      account.TwoFactor.Enabled,
		Roles:          account.Roles,
	}
}

func loginResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrAccountLocked):
		return "locked"
	default:
		return "failure"
	}
}

func refreshResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrTokenAlreadyUsed):
		return "reuse"
	case errors.Is(err, domain.ErrTokenExpired):
		return "expired"
	case errors.Is(err, domain.ErrTokenInvalidated):
		return "invalidated"
	default:
		return "not_found"
	}
}

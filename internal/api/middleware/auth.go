package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/stackpoint/account-service/internal/core/ports"
	"github.com/stackpoint/account-service/internal/core/service"
)

// Context keys set by Auth for downstream handlers.
const (
	CtxAccountID = "account_id"
	CtxEmail     = "email"
	CtxRoles     = "roles"
)

// AccessTokenCookie is the cookie the browser flow stores the access token
// in. The Authorization header takes precedence when both are present.
const AccessTokenCookie = "__Secure-access-token"

// Auth validates the access token and injects the caller's identity into the
// request context. The token's security stamp is checked against the live
// account, so a password change, role change, or admin lock cuts off every
// outstanding token at the next request.
func Auth(tokens *service.TokenService, accounts ports.AccountRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := bearerToken(c)
			if raw == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
			}

			claims, err := tokens.ParseAccessToken(raw)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			account, err := accounts.FindByID(c.Request().Context(), claims.Subject)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			if account.SecurityStamp != claims.SecurityStamp {
				return echo.NewHTTPError(http.StatusUnauthorized, "token revoked")
			}
			if account.IsLockedOut(time.Now().UTC()) {
				return echo.NewHTTPError(http.StatusForbidden, "account locked")
			}

			c.Set(CtxAccountID, account.ID)
			c.Set(CtxEmail, account.Email)
			c.Set(CtxRoles, account.Roles)

			return next(c)
		}
	}
}

// OptionalAuth injects the caller's identity when a valid access token is
// present and lets the request through anonymously otherwise. Used on the
// OAuth endpoints, where the same route serves both login and linking.
func OptionalAuth(tokens *service.TokenService, accounts ports.AccountRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := bearerToken(c)
			if raw == "" {
				return next(c)
			}
			claims, err := tokens.ParseAccessToken(raw)
			if err != nil {
				return next(c)
			}
			account, err := accounts.FindByID(c.Request().Context(), claims.Subject)
			if err != nil || account.SecurityStamp != claims.SecurityStamp {
				return next(c)
			}
			if account.IsLockedOut(time.Now().UTC()) {
				return next(c)
			}
			c.Set(CtxAccountID, account.ID)
			c.Set(CtxEmail, account.Email)
			c.Set(CtxRoles, account.Roles)
			return next(c)
		}
	}
}

// bearerToken returns the access token from the Authorization header, falling
// back to the secure cookie set by the browser login flow.
func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}
	cookie, err := c.Cookie(AccessTokenCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

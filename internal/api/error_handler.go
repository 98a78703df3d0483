package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/stackpoint/account-service/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Error string `json:"error"`
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps known domain errors to their appropriate HTTP status codes.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders a consistent JSON envelope: {"error": "<message>"}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, msg := resolveError(err, log, c)
		_ = c.JSON(code, errorResponse{Error: msg})
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, string) {
	// Echo's own errors (bind failures, 404 from router, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, fmt.Sprintf("%v", he.Message)
	}

	// Known domain errors map to deterministic HTTP codes.
	switch {
	// Unknown account and wrong password share one sentinel, so the 401
	// body is identical for both.
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, domain.ErrAccountLocked):
		return http.StatusForbidden, "account locked"
	case errors.Is(err, domain.ErrAccountNotFound):
		return http.StatusNotFound, "account not found"
	case errors.Is(err, domain.ErrAccountExists):
		return http.StatusConflict, "account already exists"
	case errors.Is(err, domain.ErrNoPasswordSet):
		return http.StatusConflict, "no password set"
	case errors.Is(err, domain.ErrPasswordAlreadySet):
		return http.StatusConflict, "password already set"

	case errors.Is(err, domain.ErrTwoFactorCodeInvalid):
		return http.StatusUnauthorized, "invalid two-factor code"
	case errors.Is(err, domain.ErrChallengeInvalid):
		return http.StatusUnauthorized, "invalid or expired challenge"
	case errors.Is(err, domain.ErrRecoveryCodeInvalid):
		return http.StatusUnauthorized, "invalid recovery code"
	case errors.Is(err, domain.ErrTwoFactorNotEnabled):
		return http.StatusConflict, "two-factor authentication not enabled"

	// All refresh failures render as the same 401; the distinct sentinels
	// exist for audit and metrics, not for the client.
	case errors.Is(err, domain.ErrTokenNotFound),
		errors.Is(err, domain.ErrTokenExpired),
		errors.Is(err, domain.ErrTokenAlreadyUsed),
		errors.Is(err, domain.ErrTokenInvalidated):
		return http.StatusUnauthorized, "invalid refresh token"

	case errors.Is(err, domain.ErrUnknownProvider):
		return http.StatusNotFound, "unknown provider"
	case errors.Is(err, domain.ErrRedirectNotAllowed):
		return http.StatusBadRequest, "redirect URI not allowed"
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusUnauthorized, "invalid or expired state"
	case errors.Is(err, domain.ErrCodeExchangeFailed):
		return http.StatusBadGateway, "code exchange failed"
	case errors.Is(err, domain.ErrAlreadyLinkedToOtherUser):
		return http.StatusConflict, "already linked to another account"
	case errors.Is(err, domain.ErrAlreadyLinked):
		return http.StatusConflict, "already linked"
	case errors.Is(err, domain.ErrEmailNotVerified):
		return http.StatusConflict, "email not verified"
	case errors.Is(err, domain.ErrCannotUnlinkLastMethod):
		return http.StatusConflict, "cannot unlink last sign-in method"
	case errors.Is(err, domain.ErrLinkNotFound):
		return http.StatusNotFound, "link not found"

	case errors.Is(err, domain.ErrHierarchyInsufficient):
		return http.StatusForbidden, "insufficient rank"
	case errors.Is(err, domain.ErrLastAdmin):
		return http.StatusConflict, "cannot remove the last administrator"
	case errors.Is(err, domain.ErrSelfAction):
		return http.StatusConflict, "cannot perform this action on yourself"
	case errors.Is(err, domain.ErrRoleAssignAboveRank):
		return http.StatusForbidden, "cannot assign a role at or above your own rank"
	case errors.Is(err, domain.ErrPermissionEscalation):
		return http.StatusForbidden, "role grants permissions you do not hold"
	case errors.Is(err, domain.ErrRoleNotFound):
		return http.StatusNotFound, "role not found"
	case errors.Is(err, domain.ErrRoleAlreadyAssigned):
		return http.StatusConflict, "role already assigned"
	case errors.Is(err, domain.ErrRoleNotAssigned):
		return http.StatusConflict, "role not assigned"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "access forbidden"
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, "internal server error"
}

package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/stackpoint/account-service/internal/api/middleware"
	"github.com/stackpoint/account-service/internal/core/ports"
)

// ctxAccountID extracts the authenticated account ID injected by the Auth
// middleware. An empty ID means the middleware did not run; fail closed.
func ctxAccountID(c echo.Context) (string, error) {
	id, _ := c.Get(middleware.CtxAccountID).(string)
	if id == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return id, nil
}

// ctxCaller builds the admin caller identity from the Auth middleware claims.
func ctxCaller(c echo.Context) (ports.AdminCaller, error) {
	id, err := ctxAccountID(c)
	if err != nil {
		return ports.AdminCaller{}, err
	}
	roles, _ := c.Get(middleware.CtxRoles).([]string)
	return ports.AdminCaller{AccountID: id, Roles: roles}, nil
}

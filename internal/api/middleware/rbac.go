package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/stackpoint/account-service/internal/core/domain"
)

// RequireRank gates a route on the caller's highest role rank. Rank is
// derived from the roles injected by Auth; unknown roles carry no rank, so a
// token minted with a since-deleted role cannot pass.
func RequireRank(min domain.Rank) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			roles, _ := c.Get(CtxRoles).([]string)
			if domain.HighestRank(roles) < min {
				return echo.NewHTTPError(http.StatusForbidden, "insufficient rank")
			}
			return next(c)
		}
	}
}

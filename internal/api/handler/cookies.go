package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/stackpoint/account-service/internal/api/middleware"
	"github.com/stackpoint/account-service/internal/core/domain"
)

// RefreshTokenCookie holds the opaque refresh token in the browser flow. Its
// path is pinned to the refresh endpoint so the token never rides along on
// ordinary API calls.
const RefreshTokenCookie = "__Secure-refresh-token"

const refreshCookiePath = "/auth/refresh"

// CookieSettings controls whether token pairs are additionally delivered as
// secure cookies for browser clients. API clients read the JSON body either
// way.
type CookieSettings struct {
	Enabled    bool
	Domain     string
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func (s CookieSettings) set(c echo.Context, pair domain.TokenPair) {
	if !s.Enabled {
		return
	}
	c.SetCookie(s.cookie(middleware.AccessTokenCookie, pair.AccessToken, "/", s.AccessTTL))
	c.SetCookie(s.cookie(RefreshTokenCookie, pair.RefreshToken, refreshCookiePath, s.RefreshTTL))
}

func (s CookieSettings) clear(c echo.Context) {
	if !s.Enabled {
		return
	}
	c.SetCookie(s.cookie(middleware.AccessTokenCookie, "", "/", -time.Second))
	c.SetCookie(s.cookie(RefreshTokenCookie, "", refreshCookiePath, -time.Second))
}

func (s CookieSettings) cookie(name, value, path string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   s.Domain,
		MaxAge:   int(ttl.Seconds()),
		Secure:   s.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

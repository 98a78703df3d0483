package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/stackpoint/account-service/internal/api/metrics"
	"github.com/stackpoint/account-service/internal/api/middleware"
	"github.com/stackpoint/account-service/internal/core/ports"
)

// ExternalHandler exposes the OAuth challenge/callback flow. The challenge
// and callback endpoints run both anonymous (login) and authenticated
// (account linking) flows; which one applies is decided by the presence of
// the caller's identity, never by client-supplied fields.
type ExternalHandler struct {
	external ports.ExternalAuthService
	cookies  CookieSettings
}

func NewExternalHandler(external ports.ExternalAuthService, cookies CookieSettings) *ExternalHandler {
	return &ExternalHandler{external: external, cookies: cookies}
}

type challengeRequest struct {
	RedirectURI string `json:"redirect_uri" validate:"required,url"`
}

type challengeResponse struct {
	AuthorizationURL string `json:"authorization_url"`
}

type providersResponse struct {
	Providers []string `json:"providers"`
}

type callbackResponse struct {
	Result string         `json:"result"`
	Tokens *tokenResponse `json:"tokens,omitempty"`
}

// Providers lists the configured external providers.
//
// @Summary      List external providers
// @Tags         external
// @Produce      json
// @Success      200   {object}  providersResponse
// @Router       /auth/external/providers [get]
func (h *ExternalHandler) Providers(c echo.Context) error {
	return c.JSON(http.StatusOK, providersResponse{Providers: h.external.Providers()})
}

// CreateChallenge starts an OAuth flow against the named provider and
// returns the authorization URL the client should redirect to.
//
// @Summary      Start an external login or link flow
// @Tags         external
// @Accept       json
// @Produce      json
// @Param        provider  path      string            true  "Provider name"
// @Param        body      body      challengeRequest  true  "Redirect URI"
// @Success      200       {object}  challengeResponse
// @Failure      400       {object}  errorResponse
// @Failure      404       {object}  errorResponse
// @Router       /auth/external/{provider}/challenge [post]
func (h *ExternalHandler) CreateChallenge(c echo.Context) error {
	var req challengeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	// Optional identity: present means the flow links to the caller.
	callerID, _ := c.Get(middleware.CtxAccountID).(string)

	url, err := h.external.CreateChallenge(c.Request().Context(), c.Param("provider"), req.RedirectURI, callerID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, challengeResponse{AuthorizationURL: url})
}

// HandleCallback consumes the provider redirect. The state token is spent
// exactly once; replays fail closed.
//
// @Summary      Complete an external login or link flow
// @Tags         external
// @Produce      json
// @Param        provider  path      string  true  "Provider name"
// @Param        code      query     string  true  "Authorization code"
// @Param        state     query     string  true  "State token"
// @Success      200       {object}  callbackResponse
// @Failure      401       {object}  errorResponse
// @Failure      409       {object}  errorResponse
// @Router       /auth/external/{provider}/callback [get]
func (h *ExternalHandler) HandleCallback(c echo.Context) error {
	code := c.QueryParam("code")
	state := c.QueryParam("state")
	if code == "" || state == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing code or state")
	}

	provider := c.Param("provider")
	callerID, _ := c.Get(middleware.CtxAccountID).(string)

	outcome, err := h.external.HandleCallback(c.Request().Context(), code, state, callerID)
	if err != nil {
		metrics.ExternalLoginsTotal.WithLabelValues(provider, "error").Inc()
		return err
	}
	metrics.ExternalLoginsTotal.WithLabelValues(provider, string(outcome.Result)).Inc()

	resp := callbackResponse{Result: string(outcome.Result)}
	if outcome.Tokens != nil {
		h.cookies.set(c, *outcome.Tokens)
		resp.Tokens = &tokenResponse{
			AccessToken:  outcome.Tokens.AccessToken,
			RefreshToken: outcome.Tokens.RefreshToken,
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// Unlink removes the caller's link to the named provider.
//
// @Summary      Unlink an external provider
// @Tags         external
// @Produce      json
// @Param        provider  path  string  true  "Provider name"
// @Success      204
// @Failure      404   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Security     BearerAuth
// @Router       /auth/external/{provider} [delete]
func (h *ExternalHandler) Unlink(c echo.Context) error {
	accountID, err := ctxAccountID(c)
	if err != nil {
		return err
	}
	if err := h.external.UnlinkProvider(c.Request().Context(), c.Param("provider"), accountID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/stackpoint/account-service/internal/core/domain"
)

// Provider is the capability surface of an external OAuth provider: build
// the authorization URL, exchange the callback code, fetch the verified
// profile. Implementations form a closed set selected by name at runtime.
type Provider interface {
	Name() string
	AuthorizationURL(state string) (string, error)
	ExchangeCode(ctx context.Context, code string) (string, error)
	FetchProfile(ctx context.Context, accessToken string) (*domain.ExternalProfile, error)
}

// ProviderConfig carries the per-provider OAuth endpoints and credentials.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	RedirectURI  string
	Scopes       []string
}

// oauthProvider implements the wire protocol shared by all providers;
// profile parsing is the only provider-specific part.
type oauthProvider struct {
	name         string
	cfg          ProviderConfig
	client       *http.Client
	parseProfile func(body io.Reader) (*domain.ExternalProfile, error)
}

// NewGoogleProvider builds the Google variant. Endpoint URLs left empty in
// cfg fall back to Google's published endpoints.
func NewGoogleProvider(cfg ProviderConfig, client *http.Client) Provider {
	applyDefaults(&cfg,
		"https://accounts.google.com/o/oauth2/v2/auth",
		"https://oauth2.googleapis.com/token",
		"https://openidconnect.googleapis.com/v1/userinfo",
		[]string{"openid", "email", "profile"},
	)
	return &oauthProvider{name: "google", cfg: cfg, client: client, parseProfile: parseGoogleProfile}
}

// NewGitHubProvider builds the GitHub variant.
func NewGitHubProvider(cfg ProviderConfig, client *http.Client) Provider {
	applyDefaults(&cfg,
		"https://github.com/login/oauth/authorize",
		"https://github.com/login/oauth/access_token",
		"https://api.github.com/user",
		[]string{"read:user", "user:email"},
	)
	return &oauthProvider{name: "github", cfg: cfg, client: client, parseProfile: parseGitHubProfile}
}

func applyDefaults(cfg *ProviderConfig, authURL, tokenURL, userInfoURL string, scopes []string) {
	if cfg.AuthURL == "" {
		cfg.AuthURL = authURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = tokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = userInfoURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = scopes
	}
}

func (p *oauthProvider) Name() string { return p.name }

func (p *oauthProvider) AuthorizationURL(state string) (string, error) {
	authURL, err := url.Parse(p.cfg.AuthURL)
	if err != nil {
		return "", fmt.Errorf("invalid provider auth url: %w", err)
	}

	query := url.Values{}
	query.Set("response_type", "code")
	query.Set("client_id", p.cfg.ClientID)
	query.Set("redirect_uri", p.cfg.RedirectURI)
	query.Set("scope", strings.Join(p.cfg.Scopes, " "))
	query.Set("state", state)

	authURL.RawQuery = query.Encode()
	return authURL.String(), nil
}

func (p *oauthProvider) ExchangeCode(ctx context.Context, code string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", p.cfg.RedirectURI)
	form.Set("client_id", p.cfg.ClientID)
	form.Set("client_secret", p.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errors.New("token exchange failed")
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	if payload.AccessToken == "" {
		return "", errors.New("missing access token")
	}
	return payload.AccessToken, nil
}

func (p *oauthProvider) FetchProfile(ctx context.Context, accessToken string) (*domain.ExternalProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.UserInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("profile request failed")
	}
	return p.parseProfile(resp.Body)
}

func parseGoogleProfile(body io.Reader) (*domain.ExternalProfile, error) {
	var payload struct {
		Sub           string `json:"sub"`
		Name          string `json:"name"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return nil, err
	}
	if payload.Sub == "" {
		return nil, errors.New("missing provider user id")
	}
	return &domain.ExternalProfile{
		ProviderUserID: payload.Sub,
		Email:          strings.ToLower(payload.Email),
		EmailVerified:  payload.EmailVerified,
		DisplayName:    firstNonEmpty(payload.Name, payload.Email, payload.Sub),
	}, nil
}

func parseGitHubProfile(body io.Reader) (*domain.ExternalProfile, error) {
	var payload struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return nil, err
	}
	if payload.ID == 0 {
		return nil, errors.New("missing provider user id")
	}
	return &domain.ExternalProfile{
		ProviderUserID: strconv.FormatInt(payload.ID, 10),
		Email:          strings.ToLower(payload.Email),
		// GitHub's user endpoint only exposes the verified primary email.
		EmailVerified: payload.Email != "",
		DisplayName:   firstNonEmpty(payload.Name, payload.Login, payload.Email),
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

package sso

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Provider talks to the identity provider's OIDC endpoints. Every network
// call carries a short timeout: a stuck provider fails the flow, it does not
// stall the mediator.
type Provider struct {
	authURL     string
	tokenURL    string
	userinfoURL string
	logoutURL   string

	clientID     string
	clientSecret string
	redirectURI  string

	http *http.Client
}

// ProviderConfig carries the externally supplied endpoints and credentials.
type ProviderConfig struct {
	BaseURL      string
	Realm        string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Timeout      time.Duration
}

// NewProvider derives the Keycloak-style endpoint set from base URL + realm.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, fmt.Errorf("sso: provider base url is required")
	}
	if cfg.ClientID == "" || cfg.RedirectURI == "" {
		return nil, fmt.Errorf("sso: client_id and redirect_uri are required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	realm := fmt.Sprintf("%s/auth/realms/%s", base, cfg.Realm)
	return &Provider{
		authURL:      realm + "/protocol/openid-connect/auth",
		tokenURL:     realm + "/protocol/openid-connect/token",
		userinfoURL:  realm + "/protocol/openid-connect/userinfo",
		logoutURL:    realm + "/protocol/openid-connect/logout",
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURI:  cfg.RedirectURI,
		http:         &http.Client{Timeout: timeout},
	}, nil
}

// TokenSet is the provider's token endpoint response.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// AuthCodeURL builds the authorization redirect for one flow.
func (p *Provider) AuthCodeURL(state, nonce, codeChallenge string) string {
	q := url.Values{
		"client_id":             {p.clientID},
		"response_type":         {"code"},
		"scope":                 {"openid profile email"},
		"redirect_uri":          {p.redirectURI},
		"state":                 {state},
		"nonce":                 {nonce},
		"code_challenge":        {codeChallenge},
		"code_challenge_method": {"S256"},
	}
	return p.authURL + "?" + q.Encode()
}

// Exchange trades an authorization code plus PKCE verifier for tokens.
func (p *Provider) Exchange(ctx context.Context, code, verifier string) (*TokenSet, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {p.clientID},
		"client_secret": {p.clientSecret},
		"code":          {code},
		"redirect_uri":  {p.redirectURI},
		"code_verifier": {verifier},
	}
	return p.tokenRequest(ctx, form)
}

// Refresh trades a refresh token for a fresh token set.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {p.clientID},
		"client_secret": {p.clientSecret},
		"refresh_token": {refreshToken},
	}
	return p.tokenRequest(ctx, form)
}

func (p *Provider) tokenRequest(ctx context.Context, form url.Values) (*TokenSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExchangeFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExchangeFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrTokenExchangeFailed, resp.StatusCode)
	}

	var tokens TokenSet
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&tokens); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrTokenExchangeFailed, err)
	}
	if tokens.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", ErrTokenExchangeFailed)
	}
	return &tokens, nil
}

// UserInfo fetches profile claims with the access token.
func (p *Provider) UserInfo(ctx context.Context, accessToken string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userinfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("sso: userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sso: userinfo fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sso: userinfo status %d", resp.StatusCode)
	}

	var claims map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&claims); err != nil {
		return nil, fmt.Errorf("sso: decode userinfo: %w", err)
	}
	return claims, nil
}

// LogoutURL builds the provider's end-session URL.
func (p *Provider) LogoutURL(refreshToken string) string {
	q := url.Values{"redirect_uri": {strings.TrimSuffix(p.redirectURI, "/callback") + "/"}}
	if refreshToken != "" {
		q.Set("refresh_token", refreshToken)
	}
	return p.logoutURL + "?" + q.Encode()
}

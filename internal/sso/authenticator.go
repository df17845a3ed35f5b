package sso

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"dirsentry.org/internal/audit"
	"dirsentry.org/internal/auth"
	"dirsentry.org/internal/ids"
	"dirsentry.org/internal/obs"
)

// RoleMapping names the provider groups/roles checked, in order of
// precedence, when deriving the internal role. No match defaults to viewer.
type RoleMapping struct {
	AdminGroup   string
	ManagerGroup string
	AuditorGroup string
}

// Authenticator drives the authorization-code flow and owns the federated
// session registry. Permissions are always computed from the internal role
// table, never taken from provider claims.
type Authenticator struct {
	provider *Provider
	signer   *auth.Signer
	sink     *audit.Sink
	flows    *flowStore
	mapping  RoleMapping

	mu       sync.Mutex
	sessions map[string]*federatedSession
	now      func() time.Time
}

// federatedSession is the server-side state for one federated login: the
// provider credentials needed for refresh, keyed by our session id.
type federatedSession struct {
	principal    auth.Principal
	refreshToken string
	expiresAt    time.Time
}

// NewAuthenticator wires the federated path. flowTTL bounds how long a
// pending login may wait for its callback.
func NewAuthenticator(provider *Provider, signer *auth.Signer, sink *audit.Sink, mapping RoleMapping, flowTTL time.Duration) (*Authenticator, error) {
	if provider == nil {
		return nil, errors.New("sso: provider is required")
	}
	if signer == nil {
		return nil, errors.New("sso: signer is required")
	}
	if sink == nil {
		return nil, errors.New("sso: audit sink is required")
	}
	if flowTTL <= 0 {
		return nil, errors.New("sso: flow ttl must be positive")
	}
	return &Authenticator{
		provider: provider,
		signer:   signer,
		sink:     sink,
		flows:    newFlowStore(flowTTL),
		mapping:  mapping,
		sessions: make(map[string]*federatedSession),
		now:      time.Now,
	}, nil
}

// Begin mints state, nonce and a PKCE pair, stores the pending flow and
// returns the authorization redirect URL.
func (a *Authenticator) Begin(ctx context.Context) (authURL string, state string, err error) {
	state, err = randomToken()
	if err != nil {
		return "", "", err
	}
	nonce, err := randomToken()
	if err != nil {
		return "", "", err
	}
	verifier, err := randomToken()
	if err != nil {
		return "", "", err
	}
	a.flows.put(state, nonce, verifier)
	a.sink.SessionActivity(ctx, audit.Context{}, "sso_login_started", nil)
	return a.provider.AuthCodeURL(state, nonce, pkceChallenge(verifier)), state, nil
}

// Callback consumes the provider redirect. The pending flow is erased on
// entry regardless of outcome; a state value is never honored twice.
func (a *Authenticator) Callback(ctx context.Context, code, state string) (*auth.Session, error) {
	flow, ok := a.flows.take(state)
	if !ok {
		obs.ObserveAuthAttempt("sso", false)
		a.sink.SecurityEvent(ctx, audit.Context{}, "sso callback with unknown or mismatched state", audit.SeverityWarning)
		return nil, ErrInvalidState
	}

	tokens, err := a.provider.Exchange(ctx, code, flow.verifier)
	if err != nil {
		obs.ObserveAuthAttempt("sso", false)
		a.sink.LoginAttempt(ctx, "", false, map[string]any{"mode": "sso", "reason": "token_exchange_failed"})
		return nil, err
	}

	idClaims, err := idTokenClaims(tokens.IDToken)
	if err != nil {
		obs.ObserveAuthAttempt("sso", false)
		a.sink.LoginAttempt(ctx, "", false, map[string]any{"mode": "sso", "reason": "id_token_unreadable"})
		return nil, fmt.Errorf("%w: %v", ErrTokenExchangeFailed, err)
	}
	if nonce, _ := idClaims["nonce"].(string); nonce != flow.nonce {
		obs.ObserveAuthAttempt("sso", false)
		a.sink.SecurityEvent(ctx, audit.Context{}, "sso id token nonce mismatch", audit.SeverityError)
		return nil, ErrInvalidNonce
	}

	profile, err := a.provider.UserInfo(ctx, tokens.AccessToken)
	if err != nil {
		obs.ObserveAuthAttempt("sso", false)
		a.sink.LoginAttempt(ctx, "", false, map[string]any{"mode": "sso", "reason": "userinfo_failed"})
		return nil, err
	}

	principal := a.buildPrincipal(profile, idClaims)
	session, err := a.establish(principal, tokens)
	if err != nil {
		obs.ObserveAuthAttempt("sso", false)
		a.sink.LoginAttempt(ctx, principal.ID, false, map[string]any{"mode": "sso", "reason": "token_issue_failed"})
		return nil, err
	}

	obs.ObserveAuthAttempt("sso", true)
	a.sink.LoginAttempt(ctx, principal.ID, true, map[string]any{
		"mode":       "sso",
		"role":       principal.Role.String(),
		"session_id": session.ID,
	})
	return session, nil
}

// CallbackError handles the provider's error redirect.
func (a *Authenticator) CallbackError(ctx context.Context, errCode, description string) error {
	a.sink.SecurityEvent(ctx, audit.Context{},
		fmt.Sprintf("sso provider error: %s (%s)", errCode, description), audit.SeverityWarning)
	return fmt.Errorf("%w: %s", ErrCallback, errCode)
}

// Verify checks a federated session token. When the token has expired, one
// transparent refresh is attempted against the provider before the session
// is treated as expired; provider failure destroys the session.
func (a *Authenticator) Verify(ctx context.Context, token string) (*auth.Session, error) {
	claims, err := a.signer.Verify(token)
	if err == nil {
		return a.resolve(ctx, claims, token)
	}
	if !errors.Is(err, auth.ErrExpiredToken) {
		return nil, err
	}

	// Expired but correctly signed: try the stored refresh credential once.
	expired, perr := a.signer.VerifyExpired(token)
	if perr != nil {
		return nil, auth.ErrInvalidToken
	}
	return a.refresh(ctx, expired)
}

func (a *Authenticator) resolve(ctx context.Context, claims *auth.Claims, token string) (*auth.Session, error) {
	a.mu.Lock()
	fs, ok := a.sessions[claims.SessionID]
	a.mu.Unlock()
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return &auth.Session{
		ID:        claims.SessionID,
		Principal: fs.principal,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
		Token:     token,
	}, nil
}

func (a *Authenticator) refresh(ctx context.Context, claims *auth.Claims) (*auth.Session, error) {
	a.mu.Lock()
	fs, ok := a.sessions[claims.SessionID]
	a.mu.Unlock()
	if !ok {
		// Not a registered federated session. The token is not ours to
		// classify; the local path verifies it and writes the audit record.
		return nil, auth.ErrInvalidToken
	}
	if fs.refreshToken == "" {
		a.destroy(claims.SessionID)
		a.sink.SessionActivity(ctx, audit.Context{
			PrincipalID: fs.principal.ID,
			Role:        fs.principal.Role.String(),
			SessionID:   claims.SessionID,
		}, "session_destroyed", map[string]any{"reason": "refresh_unavailable"})
		return nil, auth.ErrExpiredToken
	}

	tokens, err := a.provider.Refresh(ctx, fs.refreshToken)
	if err != nil {
		a.destroy(claims.SessionID)
		a.sink.SessionActivity(ctx, audit.Context{
			PrincipalID: fs.principal.ID,
			Role:        fs.principal.Role.String(),
			SessionID:   claims.SessionID,
		}, "session_destroyed", map[string]any{"reason": "refresh_failed"})
		return nil, auth.ErrExpiredToken
	}

	// Extend in place: same session id, rotated access credential.
	token, issued, expires, err := a.signer.Issue(fs.principal.ID, fs.principal.Role, claims.SessionID)
	if err != nil {
		a.destroy(claims.SessionID)
		return nil, auth.ErrExpiredToken
	}
	a.mu.Lock()
	if tokens.RefreshToken != "" {
		fs.refreshToken = tokens.RefreshToken
	}
	fs.expiresAt = expires
	a.mu.Unlock()

	a.sink.SessionActivity(ctx, audit.Context{
		PrincipalID: fs.principal.ID,
		Role:        fs.principal.Role.String(),
		SessionID:   claims.SessionID,
	}, "session_refreshed", nil)

	return &auth.Session{
		ID:        claims.SessionID,
		Principal: fs.principal,
		IssuedAt:  issued,
		ExpiresAt: expires,
		Token:     token,
	}, nil
}

// Logout destroys the federated session and returns the provider's
// end-session URL for the browser to follow.
func (a *Authenticator) Logout(ctx context.Context, session *auth.Session) string {
	if session == nil {
		return a.provider.LogoutURL("")
	}
	a.mu.Lock()
	fs := a.sessions[session.ID]
	delete(a.sessions, session.ID)
	a.mu.Unlock()

	refreshToken := ""
	if fs != nil {
		refreshToken = fs.refreshToken
	}
	a.sink.SessionActivity(ctx, audit.Context{
		PrincipalID: session.Principal.ID,
		Role:        session.Principal.Role.String(),
		SessionID:   session.ID,
	}, "logout", map[string]any{"mode": "sso"})
	return a.provider.LogoutURL(refreshToken)
}

func (a *Authenticator) establish(principal auth.Principal, tokens *TokenSet) (*auth.Session, error) {
	sessionID := ids.New()
	token, issued, expires, err := a.signer.Issue(principal.ID, principal.Role, sessionID)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.sessions[sessionID] = &federatedSession{
		principal:    principal,
		refreshToken: tokens.RefreshToken,
		expiresAt:    expires,
	}
	a.mu.Unlock()
	return &auth.Session{
		ID:           sessionID,
		Principal:    principal,
		IssuedAt:     issued,
		ExpiresAt:    expires,
		Token:        token,
		RefreshToken: tokens.RefreshToken,
	}, nil
}

func (a *Authenticator) destroy(sessionID string) {
	a.mu.Lock()
	delete(a.sessions, sessionID)
	a.mu.Unlock()
}

// buildPrincipal maps provider claims onto the internal model. Role
// precedence is fixed: admin, then manager, then auditor, default viewer.
func (a *Authenticator) buildPrincipal(profile, idClaims map[string]any) auth.Principal {
	email, _ := profile["email"].(string)
	name, _ := profile["name"].(string)
	username, _ := profile["preferred_username"].(string)
	if name == "" {
		name = username
	}
	identifier := email
	if identifier == "" {
		identifier = username
	}

	groups := stringSlice(profile["groups"])
	roles := realmRoles(idClaims)

	role := auth.RoleViewer
	switch {
	case contains(roles, a.mapping.AdminGroup) || contains(groups, a.mapping.AdminGroup):
		role = auth.RoleAdmin
	case contains(roles, a.mapping.ManagerGroup) || contains(groups, a.mapping.ManagerGroup):
		role = auth.RoleManager
	case contains(roles, a.mapping.AuditorGroup) || contains(groups, a.mapping.AuditorGroup):
		role = auth.RoleAuditor
	}

	principal := auth.NewPrincipal(strings.ToLower(strings.TrimSpace(identifier)), name, role)
	principal.Groups = groups
	return principal
}

// idTokenClaims extracts the ID token payload. The nonce binding below is
// the flow-instance check; transport trust comes from the direct TLS
// exchange with the token endpoint that produced the token.
func idTokenClaims(idToken string) (map[string]any, error) {
	if idToken == "" {
		return nil, errors.New("missing id token")
	}
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(idToken, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func realmRoles(idClaims map[string]any) []string {
	access, _ := idClaims["realm_access"].(map[string]any)
	return stringSlice(access["roles"])
}

func stringSlice(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func contains(list []string, want string) bool {
	if want == "" {
		return false
	}
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}

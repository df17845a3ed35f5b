package auth

import (
	"context"
	"errors"
	"time"

	"dirsentry.org/internal/audit"
	"dirsentry.org/internal/ids"
	"dirsentry.org/internal/obs"
)

// Authenticator verifies credentials against the local store and manages
// session tokens. Every Authenticate and Verify call emits exactly one audit
// record, success or failure.
type Authenticator struct {
	creds   CredentialStore
	signer  *Signer
	sink    *audit.Sink
	lockout *lockoutTracker
	now     func() time.Time
}

// LockoutPolicy bounds consecutive failed logins per identifier.
type LockoutPolicy struct {
	Attempts int
	Duration time.Duration
}

// NewAuthenticator wires the local authentication path.
func NewAuthenticator(creds CredentialStore, signer *Signer, sink *audit.Sink, lockout LockoutPolicy) (*Authenticator, error) {
	if creds == nil {
		return nil, errors.New("auth: credential store is required")
	}
	if signer == nil {
		return nil, errors.New("auth: signer is required")
	}
	if sink == nil {
		return nil, errors.New("auth: audit sink is required")
	}
	if lockout.Attempts <= 0 || lockout.Duration <= 0 {
		return nil, errors.New("auth: lockout policy must be positive")
	}
	return &Authenticator{
		creds:   creds,
		signer:  signer,
		sink:    sink,
		lockout: newLockoutTracker(lockout.Attempts, lockout.Duration),
		now:     time.Now,
	}, nil
}

// Authenticate verifies identifier/secret and issues a session. An unknown
// identifier and a wrong secret return the same error; the dummy comparison
// keeps both paths on the same cost profile.
func (a *Authenticator) Authenticate(ctx context.Context, identifier, secret string) (*Session, error) {
	identifier = normalizeIdentifier(identifier)

	if a.lockout.locked(identifier) {
		obs.ObserveAuthAttempt("local", false)
		a.sink.LoginAttempt(ctx, identifier, false, map[string]any{"reason": "locked_out"})
		return nil, ErrLockedOut
	}

	cred, err := a.creds.Lookup(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = verifyPassword(string(dummyHash), secret)
			a.registerFailure(ctx, identifier)
			return nil, ErrInvalidCredentials
		}
		obs.ObserveAuthAttempt("local", false)
		a.sink.LoginAttempt(ctx, identifier, false, map[string]any{"reason": "store_error"})
		return nil, err
	}

	if err := verifyPassword(cred.PasswordHash, secret); err != nil {
		a.registerFailure(ctx, identifier)
		return nil, ErrInvalidCredentials
	}

	a.lockout.reset(identifier)
	session, err := a.issue(cred)
	if err != nil {
		obs.ObserveAuthAttempt("local", false)
		a.sink.LoginAttempt(ctx, identifier, false, map[string]any{"reason": "token_issue_failed"})
		return nil, err
	}

	obs.ObserveAuthAttempt("local", true)
	a.sink.LoginAttempt(ctx, identifier, true, map[string]any{
		"role":       cred.Role.String(),
		"session_id": session.ID,
	})
	return session, nil
}

// Verify decodes and checks a session token: signature, then expiry, then
// the subject must still resolve to a known principal.
func (a *Authenticator) Verify(ctx context.Context, token string) (*Session, error) {
	claims, err := a.signer.Verify(token)
	if err != nil {
		reason := "invalid_token"
		if errors.Is(err, ErrExpiredToken) {
			reason = "expired_token"
		}
		a.sink.SessionActivity(ctx, audit.Context{}, "verify_failed", map[string]any{"reason": reason})
		return nil, err
	}

	cred, err := a.creds.Lookup(ctx, claims.Subject)
	if err != nil {
		// The subject no longer resolves to a live principal: the token is
		// well-formed but no longer grants anything.
		a.sink.SessionActivity(ctx, audit.Context{PrincipalID: claims.Subject, SessionID: claims.SessionID},
			"verify_failed", map[string]any{"reason": "unknown_subject"})
		return nil, ErrInvalidToken
	}

	role, _ := ParseRole(claims.Role)
	session := &Session{
		ID:        claims.SessionID,
		Principal: NewPrincipal(cred.Identifier, cred.Name, role),
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
		Token:     token,
	}
	a.sink.SessionActivity(ctx, audit.Context{
		PrincipalID: session.Principal.ID,
		Role:        role.String(),
		SessionID:   session.ID,
	}, "verify", nil)
	return session, nil
}

// Refresh exchanges a still-valid token for one with a fresh lifetime. The
// session id is preserved so the audit trail stays linked across the rotation.
func (a *Authenticator) Refresh(ctx context.Context, token string) (*Session, error) {
	claims, err := a.signer.Verify(token)
	if err != nil {
		a.sink.SessionActivity(ctx, audit.Context{}, "refresh_failed", map[string]any{"reason": "invalid_token"})
		return nil, err
	}
	cred, err := a.creds.Lookup(ctx, claims.Subject)
	if err != nil {
		a.sink.SessionActivity(ctx, audit.Context{PrincipalID: claims.Subject, SessionID: claims.SessionID},
			"refresh_failed", map[string]any{"reason": "unknown_subject"})
		return nil, ErrInvalidToken
	}

	newToken, issued, expires, err := a.signer.Issue(cred.Identifier, cred.Role, claims.SessionID)
	if err != nil {
		return nil, err
	}
	a.sink.SessionActivity(ctx, audit.Context{
		PrincipalID: cred.Identifier,
		Role:        cred.Role.String(),
		SessionID:   claims.SessionID,
	}, "session_refreshed", nil)
	return &Session{
		ID:        claims.SessionID,
		Principal: NewPrincipal(cred.Identifier, cred.Name, cred.Role),
		IssuedAt:  issued,
		ExpiresAt: expires,
		Token:     newToken,
	}, nil
}

// Logout records the explicit end of a session. Tokens are stateless, so the
// grant simply stops being presented; the record is what compliance needs.
func (a *Authenticator) Logout(ctx context.Context, session *Session) {
	if session == nil {
		return
	}
	a.sink.SessionActivity(ctx, audit.Context{
		PrincipalID: session.Principal.ID,
		Role:        session.Principal.Role.String(),
		SessionID:   session.ID,
	}, "logout", nil)
}

func (a *Authenticator) issue(cred *Credential) (*Session, error) {
	sessionID := ids.New()
	token, issued, expires, err := a.signer.Issue(cred.Identifier, cred.Role, sessionID)
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:        sessionID,
		Principal: NewPrincipal(cred.Identifier, cred.Name, cred.Role),
		IssuedAt:  issued,
		ExpiresAt: expires,
		Token:     token,
	}, nil
}

func (a *Authenticator) registerFailure(ctx context.Context, identifier string) {
	obs.ObserveAuthAttempt("local", false)
	detail := map[string]any{"reason": "invalid_credentials"}
	if a.lockout.fail(identifier) {
		detail["locked_out"] = true
	}
	a.sink.LoginAttempt(ctx, identifier, false, detail)
}

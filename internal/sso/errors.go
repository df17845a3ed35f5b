// Package sso implements the federated login path: an OIDC-style
// authorization-code exchange with PKCE against an external identity
// provider, mapped onto the internal role vocabulary.
package sso

import "errors"

var (
	// ErrInvalidState means the callback's state did not match the pending
	// flow (CSRF). The pending flow is erased either way.
	ErrInvalidState = errors.New("sso: state mismatch")
	// ErrInvalidNonce means the ID token was not bound to this flow
	// (replay or token substitution).
	ErrInvalidNonce = errors.New("sso: nonce mismatch")
	// ErrTokenExchangeFailed covers any non-success from the provider's
	// token endpoint, including timeouts.
	ErrTokenExchangeFailed = errors.New("sso: token exchange failed")
	// ErrCallback is the provider reporting an error on redirect.
	ErrCallback = errors.New("sso: provider callback error")
)

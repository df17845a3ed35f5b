package auth

import "time"

// Principal is an authenticated user with a resolved role and effective
// permission set. It is re-derived on every new session and immutable for the
// session's lifetime.
type Principal struct {
	ID          string
	Name        string
	Role        Role
	Permissions map[string]struct{}
	// Groups holds provider group memberships; federated sessions only.
	Groups []string
}

// NewPrincipal derives a principal from an identity and a role. Permissions
// always come from the internal role table.
func NewPrincipal(id, name string, role Role) Principal {
	return Principal{
		ID:          id,
		Name:        name,
		Role:        role,
		Permissions: role.Permissions(),
	}
}

// HasPermission reports whether the principal can execute the operation
// gated by key.
func (p Principal) HasPermission(key string) bool {
	_, ok := p.Permissions[key]
	return ok
}

// Session is a time-bounded grant binding a principal to a role. Valid iff
// now < ExpiresAt, the token verifies against the issuer's key, and the
// subject still resolves to a known principal.
type Session struct {
	ID        string
	Principal Principal
	IssuedAt  time.Time
	ExpiresAt time.Time
	// Token is the opaque signed credential handed to the caller.
	Token string
	// RefreshToken is held for federated sessions only.
	RefreshToken string
}

// Expired reports whether the session's lifetime has elapsed at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "dirsentry"

// Claims is the session token payload.
type Claims struct {
	Role      string `json:"role"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 session tokens. The key is externally
// supplied; construction fails without one.
type Signer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewSigner builds a signer. An empty key is a startup error, never a
// fallback to a built-in default.
func NewSigner(key string, ttl time.Duration) (*Signer, error) {
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("auth: signing key is required")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: session ttl must be positive")
	}
	return &Signer{key: []byte(key), ttl: ttl, now: time.Now}, nil
}

// WithClock overrides the time source; tests only.
func (s *Signer) WithClock(fn func() time.Time) *Signer {
	if fn != nil {
		s.now = fn
	}
	return s
}

// Issue signs a token binding subject and role for the configured lifetime.
func (s *Signer) Issue(subject string, role Role, sessionID string) (string, time.Time, time.Time, error) {
	now := s.now().UTC()
	expires := now.Add(s.ttl)
	claims := Claims{
		Role:      string(role),
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", time.Time{}, time.Time{}, err
	}
	return signed, now, expires, nil
}

// Verify checks signature first, then expiry, and returns the decoded claims.
// A valid signature with a past expiry is ErrExpiredToken; everything else
// that fails is ErrInvalidToken.
func (s *Signer) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.key, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuer(tokenIssuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	if _, err := ParseRole(claims.Role); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyExpired checks the signature and shape of a token while tolerating
// a past expiry. Used by the federated path to attempt a transparent refresh
// before treating a session as expired; never accept its result as a live
// session.
func (s *Signer) VerifyExpired(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.key, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuer(tokenIssuer), jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.SessionID == "" || claims.Issuer != tokenIssuer {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// TTL exposes the configured session lifetime.
func (s *Signer) TTL() time.Duration { return s.ttl }

package auth

import "errors"

var (
	// ErrInvalidCredentials covers both an unknown identifier and a wrong
	// secret; the two must be indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrInvalidToken       = errors.New("auth: invalid token")
	ErrExpiredToken       = errors.New("auth: token expired")
	ErrLockedOut          = errors.New("auth: too many failed attempts")
	ErrPermissionDenied   = errors.New("auth: insufficient permission")
	ErrNotFound           = errors.New("auth: not found")
	ErrInvalidInput       = errors.New("auth: invalid input")
)

// Package httpapi is the HTTP surface over the access mediator. Handlers
// stay thin: decode, delegate, map sentinel errors to status codes.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"dirsentry.org/internal/auth"
	"dirsentry.org/internal/mediator"
	"dirsentry.org/internal/obs"
	"dirsentry.org/internal/sso"
)

// ReadyProbe reports whether dependencies are reachable.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API routes requests to the mediator. The federated authenticator is nil
// when SSO is not configured; its routes then answer 404.
type API struct {
	mux        *http.ServeMux
	mediator   *mediator.Mediator
	sso        *sso.Authenticator
	readyProbe ReadyProbe
	version    string
}

func New(m *mediator.Mediator, ssoAuth *sso.Authenticator, rp ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		mediator:   m,
		sso:        ssoAuth,
		readyProbe: rp,
		version:    version,
	}

	// health/ready
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// session lifecycle
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/sso/login", a.handleSSOLogin)
	a.mux.HandleFunc("/v1/auth/sso/callback", a.handleSSOCallback)

	// mediated data access
	a.mux.HandleFunc("/v1/people", a.handlePeople)
	a.mux.HandleFunc("/v1/people/export", a.handleExport)
	a.mux.HandleFunc("/v1/summary", a.handleSummary)
	a.mux.HandleFunc("/v1/audit", a.handleAudit)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, 20, 10)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "dirsentry-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, map[string]any{
		"error":      msg,
		"request_id": requestIDFrom(r.Context()),
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	const scheme = "bearer "
	if len(header) < len(scheme) || !strings.EqualFold(header[:len(scheme)], scheme) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(scheme):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

// handleAccessError maps mediator sentinels onto status codes. Responses say
// whether the failure was authentication or authorization and nothing more.
func handleAccessError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken):
		writeError(w, r, http.StatusUnauthorized, "authentication failed")
	case errors.Is(err, auth.ErrLockedOut):
		writeError(w, r, http.StatusTooManyRequests, "too many failed attempts")
	case errors.Is(err, auth.ErrPermissionDenied):
		writeError(w, r, http.StatusForbidden, "permission denied")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, sso.ErrInvalidState), errors.Is(err, sso.ErrInvalidNonce), errors.Is(err, sso.ErrCallback):
		writeError(w, r, http.StatusBadRequest, "sign-in could not be completed")
	case errors.Is(err, sso.ErrTokenExchangeFailed):
		writeError(w, r, http.StatusBadGateway, "identity provider unavailable")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

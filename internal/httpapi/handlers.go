package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"dirsentry.org/internal/auth"
)

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type sessionResponse struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expires_at"`
	Principal principalResponse `json:"principal"`
}

type principalResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

func sessionPayload(sess *auth.Session) sessionResponse {
	perms := make([]string, 0, len(sess.Principal.Permissions))
	for p := range sess.Principal.Permissions {
		perms = append(perms, p)
	}
	return sessionResponse{
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt,
		Principal: principalResponse{
			ID:          sess.Principal.ID,
			Name:        sess.Principal.Name,
			Role:        sess.Principal.Role.String(),
			Permissions: perms,
		},
	}
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Identifier == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "identifier and password are required")
		return
	}
	sess, err := a.mediator.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(sess))
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	token, err := bearerToken(r)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return
	}
	sess, err := a.mediator.Refresh(r.Context(), token)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(sess))
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	token, err := bearerToken(r)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return
	}
	redirect, err := a.mediator.Logout(r.Context(), token)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	body := map[string]any{"status": "logged_out"}
	if redirect != "" {
		body["logout_url"] = redirect
	}
	writeJSON(w, http.StatusOK, body)
}

func (a *API) handleSSOLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.sso == nil {
		writeError(w, r, http.StatusNotFound, "sso is not configured")
		return
	}
	authURL, _, err := a.sso.Begin(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "could not start sign-in")
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (a *API) handleSSOCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.sso == nil {
		writeError(w, r, http.StatusNotFound, "sso is not configured")
		return
	}
	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		err := a.sso.CallbackError(r.Context(), errCode, q.Get("error_description"))
		handleAccessError(w, r, err)
		return
	}
	sess, err := a.sso.Callback(r.Context(), q.Get("code"), q.Get("state"))
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(sess))
}

func (a *API) handlePeople(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	token, err := bearerToken(r)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return
	}
	data, err := a.mediator.People(r.Context(), token, r.URL.Query().Get("search"))
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	token, err := bearerToken(r)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return
	}
	export, err := a.mediator.Export(r.Context(), token)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="directory-export.json"`)
	writeJSON(w, http.StatusOK, export)
}

func (a *API) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	token, err := bearerToken(r)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return
	}
	summary, err := a.mediator.Summary(r.Context(), token)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	token, err := bearerToken(r)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := a.mediator.AuditLog(r.Context(), token, limit)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"dirsentry.org/internal/audit"
	"dirsentry.org/internal/auth"
	"dirsentry.org/internal/directory"
	"dirsentry.org/internal/mediator"
	"dirsentry.org/internal/policy"
)

type memAuditStore struct {
	mu      sync.Mutex
	records []audit.Record
}

func (m *memAuditStore) Append(_ context.Context, rec *audit.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *rec)
	return nil
}

func (m *memAuditStore) Recent(_ context.Context, limit int) ([]audit.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.records) {
		limit = len(m.records)
	}
	out := make([]audit.Record, limit)
	copy(out, m.records[len(m.records)-limit:])
	return out, nil
}

func newTestAPI(t *testing.T) *API {
	t.Helper()
	store := &memAuditStore{}
	sink := audit.NewSink(store)

	hash, err := auth.HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	creds := auth.NewMemoryStore([]auth.Credential{
		{Identifier: "alice", Name: "Alice Ray", Role: auth.RoleAdmin, PasswordHash: hash},
		{Identifier: "vera", Name: "Vera Ng", Role: auth.RoleViewer, PasswordHash: hash},
		{Identifier: "audrey", Name: "Audrey Sim", Role: auth.RoleAuditor, PasswordHash: hash},
	})
	signer, err := auth.NewSigner("test-signing-key", time.Hour)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	local, err := auth.NewAuthenticator(creds, signer, sink, auth.LockoutPolicy{Attempts: 3, Duration: 15 * time.Minute})
	if err != nil {
		t.Fatalf("new authenticator: %v", err)
	}

	data := directory.New("uid", "name", "email", "manager", "department", "seniority_level")
	data.Append("alice", "Alice Ray", "alice.ray@corp.example", "", "Engineering", "Senior")
	data.Append("bob", "Bob Lin", "bob.lin@corp.example", "alice", "Engineering", "Mid")

	m, err := mediator.New(mediator.Config{
		Local:  local,
		Engine: policy.NewEngine(),
		Sink:   sink,
		Source: directory.NewStaticSource(data),
		Logs:   store,
	})
	if err != nil {
		t.Fatalf("new mediator: %v", err)
	}
	return New(m, nil, ReadyProbe{}, "test")
}

func doLogin(t *testing.T, api *API, identifier, password string) *httptest.ResponseRecorder {
	t.Helper()
	body := `{"identifier":"` + identifier + `","password":"` + password + `"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", strings.NewReader(body))
	rr := httptest.NewRecorder()
	api.mux.ServeHTTP(rr, req)
	return rr
}

func loginToken(t *testing.T, api *API, identifier string) string {
	t.Helper()
	rr := doLogin(t, api, identifier, "s3cret")
	if rr.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rr.Code, rr.Body.String())
	}
	var resp sessionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("empty token in login response")
	}
	return resp.Token
}

func authedGet(api *API, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	api.mux.ServeHTTP(rr, req)
	return rr
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t)
	rr := authedGet(api, "/healthz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rr.Code)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	api := newTestAPI(t)
	rr := doLogin(t, api, "alice", "wrong")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "authentication failed") {
		t.Fatalf("body should not explain the failure mode: %s", rr.Body.String())
	}
}

func TestLoginMethodNotAllowed(t *testing.T) {
	api := newTestAPI(t)
	rr := authedGet(api, "/v1/auth/login", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rr.Code)
	}
}

func TestPeopleRequiresToken(t *testing.T) {
	api := newTestAPI(t)
	rr := authedGet(api, "/v1/people", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestPeopleViewerAggregate(t *testing.T) {
	api := newTestAPI(t)
	token := loginToken(t, api, "vera")

	rr := authedGet(api, "/v1/people", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var data directory.Dataset
	if err := json.Unmarshal(rr.Body.Bytes(), &data); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(data.Columns) != 3 || data.Columns[0] != policy.ColDepartment {
		t.Fatalf("viewer columns = %v", data.Columns)
	}
}

func TestExportForbiddenForViewer(t *testing.T) {
	api := newTestAPI(t)
	token := loginToken(t, api, "vera")

	rr := authedGet(api, "/v1/people/export", token)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
}

func TestExportAdmin(t *testing.T) {
	api := newTestAPI(t)
	token := loginToken(t, api, "alice")

	rr := authedGet(api, "/v1/people/export", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Fatalf("Content-Disposition = %q", cd)
	}
	var export policy.Export
	if err := json.Unmarshal(rr.Body.Bytes(), &export); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if export.Provenance.Role != "admin" {
		t.Fatalf("provenance role = %q", export.Provenance.Role)
	}
}

func TestAuditVisibleToAuditorOnly(t *testing.T) {
	api := newTestAPI(t)

	viewerToken := loginToken(t, api, "vera")
	if rr := authedGet(api, "/v1/audit", viewerToken); rr.Code != http.StatusForbidden {
		t.Fatalf("viewer audit status = %d, want 403", rr.Code)
	}

	auditorToken := loginToken(t, api, "audrey")
	rr := authedGet(api, "/v1/audit?limit=5", auditorToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("auditor audit status = %d: %s", rr.Code, rr.Body.String())
	}
	var body struct {
		Records []audit.Record `json:"records"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode audit body: %v", err)
	}
	if len(body.Records) == 0 {
		t.Fatal("auditor saw no records")
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	api := newTestAPI(t)
	token := loginToken(t, api, "alice")

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	api.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh status = %d: %s", rr.Code, rr.Body.String())
	}
	var resp sessionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode refresh response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("refresh returned empty token")
	}
}

func TestSSONotConfigured(t *testing.T) {
	api := newTestAPI(t)
	rr := authedGet(api, "/v1/auth/sso/login", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

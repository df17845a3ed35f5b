package sso

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewProviderValidation(t *testing.T) {
	if _, err := NewProvider(ProviderConfig{}); err == nil {
		t.Fatal("empty config accepted")
	}
	if _, err := NewProvider(ProviderConfig{BaseURL: "https://sso.example.com", Realm: "corp"}); err == nil {
		t.Fatal("missing client_id accepted")
	}
}

func TestProviderDerivesKeycloakEndpoints(t *testing.T) {
	p, err := NewProvider(ProviderConfig{
		BaseURL:     "https://sso.example.com/",
		Realm:       "corp",
		ClientID:    "dirsentry",
		RedirectURI: "https://app.example.com/callback",
	})
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	authURL := p.AuthCodeURL("st", "no", "ch")
	if !strings.HasPrefix(authURL, "https://sso.example.com/auth/realms/corp/protocol/openid-connect/auth?") {
		t.Fatalf("auth url = %q", authURL)
	}
	for _, param := range []string{"response_type=code", "code_challenge_method=S256", "scope=openid+profile+email"} {
		if !strings.Contains(authURL, param) {
			t.Fatalf("auth url missing %q: %s", param, authURL)
		}
	}
}

func TestExchangeNon200IsTokenExchangeFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_grant", http.StatusBadRequest)
	}))
	defer srv.Close()

	p, err := NewProvider(ProviderConfig{
		BaseURL:     srv.URL,
		Realm:       "corp",
		ClientID:    "dirsentry",
		RedirectURI: srv.URL + "/callback",
	})
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	if _, err := p.Exchange(context.Background(), "bad-code", "verifier"); !errors.Is(err, ErrTokenExchangeFailed) {
		t.Fatalf("err = %v, want ErrTokenExchangeFailed", err)
	}
}

func TestExchangeEmptyAccessTokenRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"expires_in": 300}`))
	}))
	defer srv.Close()

	p, err := NewProvider(ProviderConfig{
		BaseURL:     srv.URL,
		Realm:       "corp",
		ClientID:    "dirsentry",
		RedirectURI: srv.URL + "/callback",
	})
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	if _, err := p.Exchange(context.Background(), "code", "verifier"); !errors.Is(err, ErrTokenExchangeFailed) {
		t.Fatalf("err = %v, want ErrTokenExchangeFailed", err)
	}
}

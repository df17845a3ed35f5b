package auth

import (
	"errors"
	"testing"
	"time"
)

func testSigner(t *testing.T, ttl time.Duration) *Signer {
	t.Helper()
	s, err := NewSigner("unit-test-key", ttl)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	return s
}

func TestNewSignerRequiresKey(t *testing.T) {
	if _, err := NewSigner("", time.Hour); err == nil {
		t.Fatal("empty key accepted")
	}
	if _, err := NewSigner("   ", time.Hour); err == nil {
		t.Fatal("blank key accepted")
	}
	if _, err := NewSigner("key", 0); err == nil {
		t.Fatal("zero ttl accepted")
	}
}

func TestIssueAndVerifyRoundtrip(t *testing.T) {
	s := testSigner(t, time.Hour)
	token, issued, expires, err := s.Issue("alice", RoleAdmin, "sess-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !expires.After(issued) {
		t.Fatalf("expires %v not after issued %v", expires, issued)
	}

	claims, err := s.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "alice" || claims.Role != "admin" || claims.SessionID != "sess-1" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestVerifyExpiredIsAlwaysExpiredToken(t *testing.T) {
	s := testSigner(t, time.Minute)
	token, _, _, err := s.Issue("alice", RoleViewer, "sess-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	s.WithClock(func() time.Time { return time.Now().Add(2 * time.Minute) })
	if _, err := s.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("err = %v, want ErrExpiredToken", err)
	}

	// The expiry-tolerant path still accepts it for refresh handoff.
	claims, err := s.VerifyExpired(token)
	if err != nil {
		t.Fatalf("verify expired: %v", err)
	}
	if claims.SessionID != "sess-1" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	issuer := testSigner(t, time.Hour)
	token, _, _, err := issuer.Issue("alice", RoleAdmin, "sess-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	other, err := NewSigner("a-different-key", time.Hour)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	if _, err := other.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
	// A forged signature never downgrades to the expired classification.
	if _, err := other.VerifyExpired(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired-path err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	s := testSigner(t, time.Hour)
	for _, token := range []string{"", "   ", "abc", "a.b.c"} {
		if _, err := s.Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("Verify(%q) = %v, want ErrInvalidToken", token, err)
		}
	}
}

func TestVerifyRejectsUnknownRoleClaim(t *testing.T) {
	s := testSigner(t, time.Hour)
	token, _, _, err := s.Issue("alice", Role("superuser"), "sess-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := s.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

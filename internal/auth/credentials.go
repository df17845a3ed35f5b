package auth

import (
	"context"
	"strings"
	"sync/atomic"

	"golang.org/x/crypto/bcrypt"
)

// Credential is the stored record for one local principal.
type Credential struct {
	Identifier   string
	Name         string
	Role         Role
	PasswordHash string
}

// CredentialStore maps principal identifiers to roles and stored secrets.
// Read-only during request processing.
type CredentialStore interface {
	Lookup(ctx context.Context, identifier string) (*Credential, error)
}

// MemoryStore holds a static credential table seeded from configuration.
// Administrative updates replace the whole snapshot, so in-flight requests
// never observe a partially updated table.
type MemoryStore struct {
	snapshot atomic.Pointer[map[string]Credential]
}

// NewMemoryStore builds a store from the seed list.
func NewMemoryStore(creds []Credential) *MemoryStore {
	s := &MemoryStore{}
	s.Replace(creds)
	return s
}

// Replace swaps in a new credential table.
func (s *MemoryStore) Replace(creds []Credential) {
	table := make(map[string]Credential, len(creds))
	for _, c := range creds {
		table[normalizeIdentifier(c.Identifier)] = c
	}
	s.snapshot.Store(&table)
}

// Lookup returns the credential for identifier or ErrNotFound.
func (s *MemoryStore) Lookup(_ context.Context, identifier string) (*Credential, error) {
	table := *s.snapshot.Load()
	c, ok := table[normalizeIdentifier(identifier)]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func normalizeIdentifier(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// HashPassword hashes a plaintext secret with bcrypt for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// verifyPassword compares a stored hash with a candidate secret. bcrypt's
// comparison does not leak match-length timing.
func verifyPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// dummyHash is compared against when the identifier is unknown so that the
// unknown-identifier path costs the same as a mismatch. Hash of an
// unguessable sentinel, never a real credential.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dirsentry-no-such-user"), bcrypt.DefaultCost)

package auth

import (
	"context"
	"database/sql"
)

var _ CredentialStore = (*PGStore)(nil)

// PGStore implements CredentialStore over PostgreSQL for deployments where
// the principal table outgrows static configuration.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Lookup(ctx context.Context, identifier string) (*Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`select identifier, name, role, password_hash from credentials where identifier=$1`,
		normalizeIdentifier(identifier),
	)
	var (
		c    Credential
		role string
	)
	if err := row.Scan(&c.Identifier, &c.Name, &role, &c.PasswordHash); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	parsed, err := ParseRole(role)
	if err != nil {
		return nil, err
	}
	c.Role = parsed
	return &c, nil
}

package audit

import (
	"context"
	"database/sql"
	"encoding/json"
)

var _ Store = (*PGStore)(nil)

// PGStore persists records in PostgreSQL. Inserts are append-only; nothing in
// the schema or this code updates or deletes a written row.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Append(ctx context.Context, rec *Record) error {
	details, err := json.Marshal(rec.Details)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`insert into audit_log(id, occurred_at, event_type, severity, principal_id, principal_role, session_id, details)
		 values($1,$2,$3,$4,$5,$6,$7,$8)`,
		rec.ID, rec.OccurredAt, string(rec.Event), string(rec.Severity),
		rec.Principal.PrincipalID, rec.Principal.Role, rec.Principal.SessionID, details,
	)
	return err
}

package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
)

const defaultReadLimit = 100

// Reader exposes the trail to principals holding view_audit. Reads never go
// through the Sink; the write path stays append-only.
type Reader interface {
	Recent(ctx context.Context, limit int) ([]Record, error)
}

var (
	_ Reader = (*FileReader)(nil)
	_ Reader = (*PGStore)(nil)
)

// FileReader reads back a JSONL audit log. It opens the file per call so it
// never interferes with the FileStore's append handle.
type FileReader struct {
	path string
}

func NewFileReader(path string) *FileReader {
	return &FileReader{path: path}
}

// Recent returns the last limit records, newest first. Lines that fail to
// decode are skipped; a damaged line must not hide the rest of the trail.
func (r *FileReader) Recent(_ context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = defaultReadLimit
	}
	f, err := os.Open(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit: open log for read: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: scan log: %w", err)
	}

	if len(records) > limit {
		records = records[len(records)-limit:]
	}
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// Recent returns the newest records from the PostgreSQL trail.
func (s *PGStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = defaultReadLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`select id, occurred_at, event_type, severity, principal_id, principal_role, session_id, details
		 from audit_log order by occurred_at desc, id desc limit $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var event, severity string
		var details []byte
		if err := rows.Scan(&rec.ID, &rec.OccurredAt, &event, &severity,
			&rec.Principal.PrincipalID, &rec.Principal.Role, &rec.Principal.SessionID, &details); err != nil {
			return nil, err
		}
		rec.Event = EventType(event)
		rec.Severity = Severity(severity)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &rec.Details); err != nil {
				return nil, err
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

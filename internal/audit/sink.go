package audit

import (
	"context"
	"encoding/json"

	"dirsentry.org/internal/obs"
)

// Store persists records to append-only storage.
type Store interface {
	Append(ctx context.Context, rec *Record) error
}

// Sink is the process-wide recorder. Record never fails visibly: a store
// failure is escalated once as a CRITICAL SECURITY_EVENT and the triggering
// business operation proceeds. Auditing must not become a denial-of-service
// vector for legitimate access.
type Sink struct {
	store Store
}

// NewSink wraps a store. A nil store degrades to log-only recording.
func NewSink(store Store) *Sink {
	return &Sink{store: store}
}

// Record writes one audit record and mirrors it to the structured log.
func (s *Sink) Record(ctx context.Context, event EventType, pctx Context, details map[string]any, severity Severity) {
	rec := newRecord(event, pctx, details, severity)
	s.emit(rec)
	if s.store == nil {
		return
	}
	if err := s.store.Append(ctx, rec); err != nil {
		obs.ObserveAuditWrite(false)
		s.escalate(ctx, err)
		return
	}
	obs.ObserveAuditWrite(true)
}

// escalate attempts exactly one CRITICAL record about the failed write. If
// that also fails, the log line above is all that remains.
func (s *Sink) escalate(ctx context.Context, cause error) {
	rec := newRecord(EventSecurity, Context{}, map[string]any{
		"description": "audit sink write failed",
		"error":       cause.Error(),
	}, SeverityCritical)
	s.emit(rec)
	if err := s.store.Append(ctx, rec); err != nil {
		obs.ObserveAuditWrite(false)
		return
	}
	obs.ObserveAuditWrite(true)
}

func (s *Sink) emit(rec *Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		obs.Logger().Println(`{"type":"audit","error":"record marshal failed"}`)
		return
	}
	obs.Logger().Println(string(data))
}

// Convenience constructors mirroring the event vocabulary.

// LoginAttempt records one authentication attempt, success or failure.
func (s *Sink) LoginAttempt(ctx context.Context, identifier string, success bool, detail map[string]any) {
	if detail == nil {
		detail = map[string]any{}
	}
	detail["identifier"] = identifier
	detail["success"] = success
	sev := SeverityInfo
	if !success {
		sev = SeverityWarning
	}
	s.Record(ctx, EventLoginAttempt, Context{PrincipalID: identifier}, detail, sev)
}

// DataAccess records a view of a data category.
func (s *Sink) DataAccess(ctx context.Context, pctx Context, category string, filters map[string]any) {
	s.Record(ctx, EventDataAccess, pctx, map[string]any{
		"data_type": category,
		"filters":   filters,
		"action":    "view",
	}, SeverityInfo)
}

// DataExport records a completed export. Exports are elevated-risk by policy.
func (s *Sink) DataExport(ctx context.Context, pctx Context, category string, recordCount int, format string) {
	s.Record(ctx, EventDataExport, pctx, map[string]any{
		"data_type":     category,
		"record_count":  recordCount,
		"export_format": format,
	}, SeverityWarning)
}

// SecurityEvent records a security-relevant occurrence.
func (s *Sink) SecurityEvent(ctx context.Context, pctx Context, description string, severity Severity) {
	s.Record(ctx, EventSecurity, pctx, map[string]any{
		"description":            description,
		"requires_investigation": severity.AtLeast(SeverityError),
	}, severity)
}

// SessionActivity records session lifecycle and usage events.
func (s *Sink) SessionActivity(ctx context.Context, pctx Context, activity string, detail map[string]any) {
	if detail == nil {
		detail = map[string]any{}
	}
	detail["activity"] = activity
	s.Record(ctx, EventSessionActive, pctx, detail, SeverityInfo)
}

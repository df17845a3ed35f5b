// Package audit provides the append-only event recorder every access
// decision flows through. Records are structured, immutable once written,
// and outlive the session that produced them.
package audit

import (
	"time"

	"dirsentry.org/internal/ids"
)

// EventType enumerates the auditable event categories.
type EventType string

const (
	EventLoginAttempt  EventType = "LOGIN_ATTEMPT"
	EventDataAccess    EventType = "DATA_ACCESS"
	EventDataExport    EventType = "DATA_EXPORT"
	EventConfigChange  EventType = "CONFIGURATION_CHANGE"
	EventSecurity      EventType = "SECURITY_EVENT"
	EventSessionActive EventType = "SESSION_ACTIVITY"
	EventLDAPQuery     EventType = "LDAP_QUERY"
)

// Severity orders audit records by risk.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityWarning:  1,
	SeverityError:    2,
	SeverityCritical: 3,
}

// AtLeast reports whether s is as severe as min. Unknown severities rank
// lowest so a malformed value can never satisfy a floor.
func (s Severity) AtLeast(min Severity) bool {
	return severityRank[s] >= severityRank[min]
}

// Context identifies the principal a record is about. Zero values mean the
// event happened before any principal was established (e.g. a failed login).
type Context struct {
	PrincipalID string `json:"principal_id,omitempty"`
	Role        string `json:"role,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
}

// Record is one audit log entry. Fields are additive-only: once the schema
// includes a field it is never removed, so historical records stay queryable.
type Record struct {
	ID         string         `json:"id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Event      EventType      `json:"event_type"`
	Severity   Severity       `json:"severity"`
	Principal  Context        `json:"principal"`
	Details    map[string]any `json:"details"`
}

// newRecord stamps identity and time and applies the policy-defined severity
// floors: a failed login attempt and every data export are elevated-risk
// regardless of what the caller asked for.
func newRecord(event EventType, pctx Context, details map[string]any, severity Severity) *Record {
	if details == nil {
		details = map[string]any{}
	}
	if _, known := severityRank[severity]; !known {
		severity = SeverityInfo
	}
	switch event {
	case EventDataExport:
		if !severity.AtLeast(SeverityWarning) {
			severity = SeverityWarning
		}
	case EventLoginAttempt:
		if ok, _ := details["success"].(bool); !ok {
			if !severity.AtLeast(SeverityWarning) {
				severity = SeverityWarning
			}
		}
	}
	return &Record{
		ID:         ids.New(),
		OccurredAt: time.Now().UTC(),
		Event:      event,
		Severity:   severity,
		Principal:  pctx,
		Details:    details,
	}
}

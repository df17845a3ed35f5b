package policy

import (
	"strings"
	"time"

	"dirsentry.org/internal/auth"
	"dirsentry.org/internal/directory"
)

// exportBlockedKeywords name column categories that must never leave the
// system in an export, masked or not.
var exportBlockedKeywords = []string{"password", "hash", "session", "token", "secret"}

// Provenance is attached to every export so a leaked file identifies the
// role that produced it.
type Provenance struct {
	Role           string    `json:"exported_by_role"`
	ExportedAt     time.Time `json:"exported_at"`
	Classification string    `json:"classification"`
}

// Export is a sanitized dataset plus its provenance stamp.
type Export struct {
	Data       *directory.Dataset `json:"data"`
	Provenance Provenance         `json:"provenance"`
}

// SanitizeExport prepares a role-scoped, still unmasked dataset for export:
// credential-class columns are stripped outright, the caller's masking tier
// is applied exactly once, and provenance is stamped. An export therefore
// shows the same values the caller's live view would.
func (e *Engine) SanitizeExport(d *directory.Dataset, role auth.Role, now time.Time) *Export {
	stripped := d
	var blocked []string
	for _, col := range d.Columns {
		lower := strings.ToLower(col)
		for _, kw := range exportBlockedKeywords {
			if strings.Contains(lower, kw) {
				blocked = append(blocked, col)
				break
			}
		}
	}
	if len(blocked) > 0 {
		stripped = d.DropColumns(blocked...)
	}
	return &Export{
		Data: e.mask(stripped, role),
		Provenance: Provenance{
			Role:           role.String(),
			ExportedAt:     now.UTC(),
			Classification: "internal-restricted",
		},
	}
}

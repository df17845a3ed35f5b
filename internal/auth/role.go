package auth

import (
	"fmt"
	"strings"
)

// Role is the closed set of access levels. It is assigned once at session
// creation and never user-editable at runtime.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleViewer  Role = "viewer"
	RoleAuditor Role = "auditor"
)

// Permission keys gating individual operations.
const (
	PermViewAll     = "view_all"
	PermViewTeam    = "view_team"
	PermViewReports = "view_reports"
	PermExportData  = "export_data"
	PermManageUsers = "manage_users"
	PermViewAudit   = "view_audit"
)

// rolePermissions is the single source of effective permissions. Provider
// claims never feed this table directly: a misconfigured identity provider
// must not be able to over-grant.
var rolePermissions = map[Role][]string{
	RoleAdmin:   {PermViewAll, PermExportData, PermManageUsers, PermViewAudit},
	RoleManager: {PermViewTeam, PermExportData, PermViewReports},
	RoleAuditor: {PermViewAudit, PermViewReports},
	RoleViewer:  {PermViewTeam, PermViewReports},
}

// ParseRole validates a role name against the closed set.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleManager, RoleViewer, RoleAuditor:
		return r, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
	}
}

// Permissions returns the permission set for a role. The returned map is a
// fresh copy; callers may not mutate the table.
func (r Role) Permissions() map[string]struct{} {
	keys := rolePermissions[r]
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

func (r Role) String() string { return string(r) }

package policy

import (
	"dirsentry.org/internal/auth"
)

// Resource categories checked by CheckAccess.
const (
	ResourcePeopleData = "people_data"
	ResourceOrgChart   = "org_chart"
	ResourceAnalytics  = "analytics"
	ResourceExport     = "export"
	ResourceAuditLogs  = "audit_logs"
)

// categoryPermissions maps each resource category to the permissions that
// grant it. Any one listed permission suffices.
var categoryPermissions = map[string][]string{
	ResourcePeopleData: {auth.PermViewAll, auth.PermViewTeam},
	ResourceOrgChart:   {auth.PermViewAll, auth.PermViewTeam, auth.PermViewReports},
	ResourceAnalytics:  {auth.PermViewAll, auth.PermViewReports},
	ResourceExport:     {auth.PermExportData},
	ResourceAuditLogs:  {auth.PermViewAudit},
}

// CheckAccess reports whether the principal may touch the category. An
// unknown category requires view_all, which only admin carries; new surface
// added without a policy entry fails closed rather than open.
func CheckAccess(p auth.Principal, category string) bool {
	allowed, ok := categoryPermissions[category]
	if !ok {
		allowed = []string{auth.PermViewAll}
	}
	for _, perm := range allowed {
		if p.HasPermission(perm) {
			return true
		}
	}
	return false
}

package domain

import "time"

// Permission names checked by the transport layer. Reporting modules add their own.
const (
	PermSystemOverride   = "system.override"
	PermSessionManage    = "sessions.manage"
	PermSessionConfigure = "sessions.configure"
	PermDeviceManage     = "devices.manage"
	PermAuditRead        = "audit.read"
	PermAuditWrite       = "audit.write"
	PermReportsRead      = "reports.read"
	PermReportsExport    = "reports.export"
)

// Grant sources reported with each decision.
const (
	SourceOverride = "override"
	SourceRole     = "role"
	SourceNone     = "none"
)

// Permission is a named capability. DepartmentScoped permissions only apply inside the
// holder's own department.
type Permission struct {
	Name             string
	DepartmentScoped bool
	Description      string
}

// Override is a user-level grant or denial. DepartmentID empty means all departments;
// ExpiresAt nil means it never expires.
type Override struct {
	ID           string
	UserID       string
	Permission   string
	IsGranted    bool
	DepartmentID string
	ExpiresAt    *time.Time
	CreatedAt    time.Time
}

// Active reports whether the override is still in force at now.
func (o *Override) Active(now time.Time) bool {
	return o.ExpiresAt == nil || now.Before(*o.ExpiresAt)
}

// AppliesTo reports whether the override covers the target department.
func (o *Override) AppliesTo(departmentID string) bool {
	return o.DepartmentID == "" || o.DepartmentID == departmentID
}

// Resolve decides whether permission is held for targetDepartment. Active overrides win over
// role-derived permissions; a department-specific override beats a global one, and a denial
// beats a grant of the same specificity. Expired overrides are ignored.
func Resolve(now time.Time, permission, targetDepartment string, rolePermissions []string, overrides []*Override) (granted bool, source string) {
	var best *Override
	bestSpecific := false
	for _, o := range overrides {
		if o.Permission != permission || !o.Active(now) || !o.AppliesTo(targetDepartment) {
			continue
		}
		specific := o.DepartmentID != ""
		switch {
		case best == nil,
			specific && !bestSpecific,
			specific == bestSpecific && best.IsGranted && !o.IsGranted:
			best, bestSpecific = o, specific
		}
	}
	if best != nil {
		return best.IsGranted, SourceOverride
	}
	for _, p := range rolePermissions {
		if p == permission {
			return true, SourceRole
		}
	}
	return false, SourceNone
}

// Package seed loads the permission catalog, the standard roles and optional development users.
// Every step is an upsert, so Apply can run on every start.
package seed

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	permdomain "multidept-session-trust/backend/internal/permission/domain"
	permrepo "multidept-session-trust/backend/internal/permission/repository"
	userdomain "multidept-session-trust/backend/internal/user/domain"
	userrepo "multidept-session-trust/backend/internal/user/repository"
)

// Permissions is the catalog known to the gate.
var Permissions = []permdomain.Permission{
	{Name: permdomain.PermSystemOverride, Description: "Act across department boundaries"},
	{Name: permdomain.PermSessionManage, Description: "Inspect and terminate other users' sessions"},
	{Name: permdomain.PermSessionConfigure, Description: "Change per-user session policy"},
	{Name: permdomain.PermDeviceManage, Description: "Trust or block other users' devices"},
	{Name: permdomain.PermAuditRead, Description: "Read the security audit log"},
	{Name: permdomain.PermAuditWrite, Description: "Submit security events on behalf of an application"},
	{Name: permdomain.PermReportsRead, DepartmentScoped: true, Description: "View department reports"},
	{Name: permdomain.PermReportsExport, DepartmentScoped: true, Description: "Export department reports"},
}

// Role is a named set of permissions.
type Role struct {
	Name        string
	Description string
	Permissions []string
}

// Roles are the standard roles.
var Roles = []Role{
	{Name: "employee", Description: "Department staff", Permissions: []string{permdomain.PermReportsRead}},
	{Name: "manager", Description: "Department manager", Permissions: []string{permdomain.PermReportsRead, permdomain.PermReportsExport}},
	{Name: "auditor", Description: "Compliance reviewer", Permissions: []string{permdomain.PermAuditRead}},
	{Name: "security_admin", Description: "Security operations", Permissions: []string{
		permdomain.PermSessionManage, permdomain.PermSessionConfigure, permdomain.PermDeviceManage, permdomain.PermAuditRead,
	}},
	{Name: "service", Description: "Authentication and reporting services", Permissions: []string{
		permdomain.PermSessionManage, permdomain.PermAuditWrite,
	}},
	{Name: "system_admin", Description: "Full access", Permissions: []string{
		permdomain.PermSystemOverride, permdomain.PermSessionManage, permdomain.PermSessionConfigure,
		permdomain.PermDeviceManage, permdomain.PermAuditRead, permdomain.PermReportsRead, permdomain.PermReportsExport,
	}},
}

// DevUser is a development account and its roles.
type DevUser struct {
	User  userdomain.User
	Roles []string
}

// DevUsers are sample accounts for local testing.
var DevUsers = []DevUser{
	{User: userdomain.User{ID: "dev-admin", Username: "admin", Email: "admin@example.com", DepartmentID: "it", IsActive: true}, Roles: []string{"system_admin"}},
	{User: userdomain.User{ID: "dev-security", Username: "secops", Email: "secops@example.com", DepartmentID: "it", IsActive: true}, Roles: []string{"security_admin"}},
	{User: userdomain.User{ID: "dev-finance", Username: "fiona", Email: "fiona@example.com", DepartmentID: "finance", IsActive: true}, Roles: []string{"manager"}},
	{User: userdomain.User{ID: "dev-hr", Username: "harry", Email: "harry@example.com", DepartmentID: "hr", IsActive: true}, Roles: []string{"employee"}},
	{User: userdomain.User{ID: "dev-auth", Username: "auth-service", DepartmentID: "it", IsActive: true}, Roles: []string{"service"}},
}

// Apply writes the catalog and roles, and the development users when withDevUsers is set.
func Apply(ctx context.Context, users userrepo.Repository, perms permrepo.Repository, withDevUsers bool) error {
	for i := range Permissions {
		if err := perms.UpsertPermission(ctx, &Permissions[i]); err != nil {
			return fmt.Errorf("permission %s: %w", Permissions[i].Name, err)
		}
	}
	for _, r := range Roles {
		if err := perms.UpsertRole(ctx, r.Name, r.Description); err != nil {
			return fmt.Errorf("role %s: %w", r.Name, err)
		}
		for _, p := range r.Permissions {
			if err := perms.GrantRolePermission(ctx, r.Name, p); err != nil {
				return fmt.Errorf("grant %s to %s: %w", p, r.Name, err)
			}
		}
	}
	log.Info().Int("permissions", len(Permissions)).Int("roles", len(Roles)).Msg("seed: catalog applied")
	if !withDevUsers {
		return nil
	}
	for _, du := range DevUsers {
		u := du.User
		if err := users.Upsert(ctx, &u); err != nil {
			return fmt.Errorf("user %s: %w", u.ID, err)
		}
		for _, r := range du.Roles {
			if err := perms.AssignRole(ctx, u.ID, r); err != nil {
				return fmt.Errorf("assign %s to %s: %w", r, u.ID, err)
			}
		}
	}
	log.Info().Int("users", len(DevUsers)).Msg("seed: development users applied")
	return nil
}

package domain

import "slices"

// Fixed role names the engine treats specially. SuperAdmin may act at any
// chain level and cannot be removed from the role hierarchy. Admin may
// transfer workflows between branches.
const (
	RoleSuperAdmin = "SuperAdmin"
	RoleAdmin      = "Admin"
)

// PermissionCrossBranch lets staff query workflows outside their own branch.
const PermissionCrossBranch = "workflow:cross_branch"

// Actor is the authenticated caller resolved by the identity subsystem. The
// engine trusts it as given.
type Actor struct {
	UserID      UserID
	Roles       []string
	BranchID    BranchID
	Permissions []string
}

// HasRole reports whether the actor holds role.
func (a Actor) HasRole(role string) bool {
	return slices.Contains(a.Roles, role)
}

// IsSuperAdmin reports whether the actor holds the SuperAdmin sentinel role.
func (a Actor) IsSuperAdmin() bool {
	return a.HasRole(RoleSuperAdmin)
}

// IsAdmin reports whether the actor may administer workflows across branches.
func (a Actor) IsAdmin() bool {
	return a.HasRole(RoleAdmin) || a.IsSuperAdmin()
}

func (a Actor) HasPermission(p string) bool {
	return slices.Contains(a.Permissions, p)
}

// CanActAs reports whether the actor may act in place of role: holding it,
// or being SuperAdmin.
func (a Actor) CanActAs(role string) bool {
	return a.HasRole(role) || a.IsSuperAdmin()
}

// ActingRole returns the role name recorded in the audit trail when the actor
// acts for role.
func (a Actor) ActingRole(role string) string {
	if a.HasRole(role) {
		return role
	}
	if a.IsSuperAdmin() {
		return RoleSuperAdmin
	}
	if len(a.Roles) > 0 {
		return a.Roles[0]
	}
	return ""
}

// IsStaff reports whether the actor holds any role at all. Applicants carry
// no roles.
func (a Actor) IsStaff() bool {
	return len(a.Roles) > 0
}

package models

import (
	"time"

	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	platformstrings "kycflow/pkg/platform/strings"
)

const maxRoleNameLength = 64

// Role is one level of the approval hierarchy.
//
// Invariants:
//   - Name is non-empty, at most 64 characters, unique (case-insensitive)
//   - Order is positive and unique across roles; it totally orders the chain
//   - The SuperAdmin role can be reordered but never deleted or renamed
//
// Global roles apply at every branch. Other roles apply at a branch only when
// staffed there or at one of its ancestors.
type Role struct {
	Name      string    `json:"name"`
	Order     int       `json:"order"`
	Global    bool      `json:"global"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewRole(name string, order int, global bool, now time.Time) (*Role, error) {
	name = platformstrings.CollapseSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "role name cannot be empty")
	}
	if len(name) > maxRoleNameLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "role name must be 64 characters or less")
	}
	if order <= 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "role order must be positive")
	}
	return &Role{
		Name:      name,
		Order:     order,
		Global:    global,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsSentinel reports whether this is the fixed SuperAdmin role.
func (r *Role) IsSentinel() bool {
	return r.Name == id.RoleSuperAdmin
}

// CanDelete checks whether the role may be removed from the hierarchy.
func (r *Role) CanDelete() error {
	if r.IsSentinel() {
		return dErrors.New(dErrors.CodeForbidden, "the SuperAdmin role cannot be deleted")
	}
	return nil
}

// ApplyReorder moves the role to a new position in the hierarchy.
func (r *Role) ApplyReorder(order int, now time.Time) error {
	if order <= 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "role order must be positive")
	}
	r.Order = order
	r.UpdatedAt = now
	return nil
}

// Level is the immutable projection of a role captured into a workflow chain.
func (r *Role) Level() RoleLevel {
	return RoleLevel{RoleName: r.Name, Order: r.Order}
}

// RoleLevel is one entry of a frozen approval chain.
type RoleLevel struct {
	RoleName string `json:"role_name"`
	Order    int    `json:"order"`
}

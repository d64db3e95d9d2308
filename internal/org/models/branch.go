package models

import (
	"regexp"
	"strings"
	"time"

	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
)

var branchCodePattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9_-]{0,15}$`)

// Branch is an organizational unit owning workflows.
//
// Invariants:
//   - Name is non-empty, at most 128 characters
//   - Code is 1-16 upper-case alphanumerics (plus _ and -), unique
//   - ParentID, when set, names a regional office used for role fallback and
//     is never the branch itself
//   - Once any workflow references the branch, Name, Code and ParentID are
//     frozen (enforced by the service, which knows about workflows)
type Branch struct {
	ID        id.BranchID  `json:"id"`
	Name      string       `json:"name"`
	Code      string       `json:"code"`
	ParentID  *id.BranchID `json:"parent_id,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func NewBranch(branchID id.BranchID, name, code string, parent *id.BranchID, now time.Time) (*Branch, error) {
	b := &Branch{ID: branchID, CreatedAt: now}
	if err := b.ApplyUpdate(name, code, parent, now); err != nil {
		return nil, err
	}
	return b, nil
}

// ApplyUpdate validates and sets the mutable attributes.
func (b *Branch) ApplyUpdate(name, code string, parent *id.BranchID, now time.Time) error {
	name = strings.TrimSpace(name)
	code = strings.ToUpper(strings.TrimSpace(code))
	if name == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "branch name cannot be empty")
	}
	if len(name) > 128 {
		return dErrors.New(dErrors.CodeInvariantViolation, "branch name must be 128 characters or less")
	}
	if !branchCodePattern.MatchString(code) {
		return dErrors.New(dErrors.CodeInvariantViolation, "branch code must be 1-16 upper-case letters, digits, '_' or '-'")
	}
	if parent != nil && *parent == b.ID {
		return dErrors.New(dErrors.CodeInvariantViolation, "branch cannot be its own parent")
	}
	b.Name = name
	b.Code = code
	b.ParentID = parent
	b.UpdatedAt = now
	return nil
}

// Staffing records that a role is staffed at a branch.
type Staffing struct {
	BranchID id.BranchID `json:"branch_id"`
	RoleName string      `json:"role_name"`
}

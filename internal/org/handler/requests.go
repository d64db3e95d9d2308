package handler

import (
	"strings"

	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	platformstrings "kycflow/pkg/platform/strings"
)

// CreateRoleRequest is the HTTP request body for POST /admin/roles.
type CreateRoleRequest struct {
	Name   string `json:"name"`
	Order  int    `json:"order"`
	Global bool   `json:"global,omitempty"`
}

func (r *CreateRoleRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Name = platformstrings.CollapseSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if r.Order <= 0 {
		return dErrors.New(dErrors.CodeValidation, "order must be positive")
	}
	return nil
}

// ReorderRoleRequest is the HTTP request body for PUT /admin/roles/{name}/order.
type ReorderRoleRequest struct {
	Order int `json:"order"`
}

func (r *ReorderRoleRequest) Validate() error {
	if r == nil || r.Order <= 0 {
		return dErrors.New(dErrors.CodeValidation, "order must be positive")
	}
	return nil
}

// BranchRequest is the HTTP request body for creating or updating a branch.
type BranchRequest struct {
	Name     string `json:"name"`
	Code     string `json:"code"`
	ParentID string `json:"parent_id,omitempty"`

	parsedParent *id.BranchID
}

func (r *BranchRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if strings.TrimSpace(r.Code) == "" {
		return dErrors.New(dErrors.CodeValidation, "code is required")
	}
	if p := strings.TrimSpace(r.ParentID); p != "" {
		parent, err := id.ParseBranchID(p)
		if err != nil {
			return err
		}
		r.parsedParent = &parent
	}
	return nil
}

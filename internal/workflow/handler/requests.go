package handler

import (
	"strconv"
	"strings"

	"kycflow/internal/kyc"
	"kycflow/internal/workflow/models"
	"kycflow/internal/workflow/service"
	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	platformstrings "kycflow/pkg/platform/strings"
)

// StartRequest is the HTTP request body for POST /workflows.
type StartRequest struct {
	KycRecordID     string `json:"kyc_record_id"`
	BranchID        string `json:"branch_id,omitempty"`
	ApplicantUserID string `json:"applicant_user_id,omitempty"`
	Remarks         string `json:"remarks,omitempty"`
	Draft           bool   `json:"draft,omitempty"`

	parsed service.StartRequest
}

// Validate validates and parses the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *StartRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	recordID, err := id.ParseKycRecordID(strings.TrimSpace(r.KycRecordID))
	if err != nil {
		return err
	}
	r.parsed = service.StartRequest{KycRecordID: recordID, Remarks: r.Remarks, Draft: r.Draft}

	if b := strings.TrimSpace(r.BranchID); b != "" {
		branchID, err := id.ParseBranchID(b)
		if err != nil {
			return err
		}
		r.parsed.BranchID = branchID
	}
	if u := strings.TrimSpace(r.ApplicantUserID); u != "" {
		userID, err := id.ParseUserID(u)
		if err != nil {
			return err
		}
		r.parsed.ApplicantUserID = userID
	}
	return nil
}

// ActionBody carries the fields shared by every transition on an existing
// workflow. The version is optional; when sent it must match the stored one.
type ActionBody struct {
	ExpectedVersion *int64 `json:"expected_version,omitempty"`
	Remarks         string `json:"remarks,omitempty"`
}

func (b *ActionBody) Validate() error {
	if b == nil {
		return nil
	}
	if b.ExpectedVersion != nil && *b.ExpectedVersion < 1 {
		return dErrors.New(dErrors.CodeValidation, "expected_version must be positive")
	}
	return nil
}

// applyIfMatch takes the expected version from an If-Match header when the
// body carries none. Both present and disagreeing is a bad request.
func (b *ActionBody) applyIfMatch(header string) error {
	header = strings.TrimSpace(header)
	if header == "" || header == "*" {
		return nil
	}
	v, err := strconv.ParseInt(strings.Trim(strings.TrimPrefix(header, "W/"), `"`), 10, 64)
	if err != nil || v < 1 {
		return dErrors.New(dErrors.CodeBadRequest, "If-Match must be a workflow version")
	}
	if b.ExpectedVersion != nil && *b.ExpectedVersion != v {
		return dErrors.New(dErrors.CodeBadRequest, "If-Match disagrees with expected_version")
	}
	b.ExpectedVersion = &v
	return nil
}

func (b *ActionBody) toAction(workflowID id.WorkflowID) service.ActionRequest {
	return service.ActionRequest{
		WorkflowID:      workflowID,
		ExpectedVersion: b.ExpectedVersion,
		Remarks:         b.Remarks,
	}
}

// RejectRequest is the HTTP request body for POST /workflows/{id}/reject.
type RejectRequest struct {
	ActionBody
	ReturnToPrevious bool `json:"return_to_previous,omitempty"`
	Final            bool `json:"final,omitempty"`
}

func (r *RejectRequest) Validate() error {
	if r.ReturnToPrevious && r.Final {
		return dErrors.New(dErrors.CodeValidation, "return_to_previous and final are mutually exclusive")
	}
	return r.ActionBody.Validate()
}

// PullBackRequest is the HTTP request body for POST /workflows/{id}/pull-back.
type PullBackRequest struct {
	ActionBody
	ExpectedLevelIndex *int `json:"expected_level_index,omitempty"`
}

func (r *PullBackRequest) Validate() error {
	if r.ExpectedLevelIndex != nil && *r.ExpectedLevelIndex < 1 {
		return dErrors.New(dErrors.CodeValidation, "expected_level_index must be at least 1")
	}
	return r.ActionBody.Validate()
}

// TransferRequest is the HTTP request body for POST /workflows/{id}/transfer.
type TransferRequest struct {
	ActionBody
	BranchID string `json:"branch_id"`

	parsedBranch id.BranchID
}

func (r *TransferRequest) Validate() error {
	branchID, err := id.ParseBranchID(strings.TrimSpace(r.BranchID))
	if err != nil {
		return err
	}
	r.parsedBranch = branchID
	return r.ActionBody.Validate()
}

// UpdateDetailsRequest is the HTTP request body for PATCH /workflows/{id}/details.
type UpdateDetailsRequest struct {
	ActionBody
	Changes map[string]any `json:"changes"`
}

func (r *UpdateDetailsRequest) Validate() error {
	if err := kyc.Patch(r.Changes).Validate(); err != nil {
		return err
	}
	return r.ActionBody.Validate()
}

func parseBranches(values []string) ([]id.BranchID, error) {
	var out []id.BranchID
	for _, v := range platformstrings.SplitList(values) {
		branchID, err := id.ParseBranchID(v)
		if err != nil {
			return nil, err
		}
		out = append(out, branchID)
	}
	return out, nil
}

func parseStatuses(values []string) ([]models.Status, error) {
	var out []models.Status
	for _, v := range platformstrings.SplitList(values) {
		st, err := models.ParseStatus(v)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// Package kyc adapts the KYC data subsystem that owns applicant records. The
// approval engine never stores applicant data itself; it reads ownership,
// forwards edits and delegates identity search through Records.
package kyc

import (
	"context"
	"strings"
	"time"

	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
)

// Record is the part of a KYC record the workflow engine relies on.
type Record struct {
	ID              id.KycRecordID `json:"id"`
	ApplicantUserID id.UserID      `json:"applicant_user_id"`
	FullName        string         `json:"full_name"`
	NationalID      string         `json:"national_id,omitempty"`
	Email           string         `json:"email,omitempty"`
	Phone           string         `json:"phone,omitempty"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Patch is a partial update of applicant fields, keyed by field name.
type Patch map[string]any

// Validate rejects empty patches and blank field names.
func (p Patch) Validate() error {
	if len(p) == 0 {
		return dErrors.New(dErrors.CodeValidation, "patch must change at least one field")
	}
	for k := range p {
		if strings.TrimSpace(k) == "" {
			return dErrors.New(dErrors.CodeValidation, "patch field names cannot be blank")
		}
	}
	return nil
}

// Records is the data subsystem port.
type Records interface {
	GetKycRecord(ctx context.Context, recordID id.KycRecordID) (*Record, error)
	ApplyPatch(ctx context.Context, recordID id.KycRecordID, patch Patch) error
	SearchRecords(ctx context.Context, query string) ([]Record, error)
}

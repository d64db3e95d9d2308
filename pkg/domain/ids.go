// Package domain holds typed identifiers shared across modules.
//
// Each identifier is a distinct named type over uuid.UUID so a workflow ID can
// never be passed where a branch ID is expected. Construct them from external
// input only through the Parse functions, which reject empty, malformed and nil
// UUIDs with CodeInvalidInput.
package domain

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"

	dErrors "kycflow/pkg/domain-errors"
)

type (
	UserID      uuid.UUID
	WorkflowID  uuid.UUID
	BranchID    uuid.UUID
	KycRecordID uuid.UUID
	LogEntryID  uuid.UUID
)

func parseUUID(kind, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be nil")
	}
	return u, nil
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID("user id", s)
	return UserID(u), err
}

func ParseWorkflowID(s string) (WorkflowID, error) {
	u, err := parseUUID("workflow id", s)
	return WorkflowID(u), err
}

func ParseBranchID(s string) (BranchID, error) {
	u, err := parseUUID("branch id", s)
	return BranchID(u), err
}

func ParseKycRecordID(s string) (KycRecordID, error) {
	u, err := parseUUID("kyc record id", s)
	return KycRecordID(u), err
}

func NewWorkflowID() WorkflowID { return WorkflowID(uuid.New()) }
func NewBranchID() BranchID     { return BranchID(uuid.New()) }
func NewLogEntryID() LogEntryID { return LogEntryID(uuid.New()) }

// -----------------------------------------------------------------------------
// String / JSON / SQL plumbing. Named types do not inherit uuid.UUID methods.
// -----------------------------------------------------------------------------

func (id UserID) String() string      { return uuid.UUID(id).String() }
func (id WorkflowID) String() string  { return uuid.UUID(id).String() }
func (id BranchID) String() string    { return uuid.UUID(id).String() }
func (id KycRecordID) String() string { return uuid.UUID(id).String() }
func (id LogEntryID) String() string  { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id WorkflowID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id BranchID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id KycRecordID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id LogEntryID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }

func (id UserID) MarshalText() ([]byte, error)      { return uuid.UUID(id).MarshalText() }
func (id WorkflowID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id BranchID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id KycRecordID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id LogEntryID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error      { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *WorkflowID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *BranchID) UnmarshalText(b []byte) error    { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *KycRecordID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *LogEntryID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }

func (id UserID) Value() (driver.Value, error)      { return uuid.UUID(id).String(), nil }
func (id WorkflowID) Value() (driver.Value, error)  { return uuid.UUID(id).String(), nil }
func (id BranchID) Value() (driver.Value, error)    { return uuid.UUID(id).String(), nil }
func (id KycRecordID) Value() (driver.Value, error) { return uuid.UUID(id).String(), nil }
func (id LogEntryID) Value() (driver.Value, error)  { return uuid.UUID(id).String(), nil }

func (id *UserID) Scan(src any) error      { return scanUUID((*uuid.UUID)(id), src) }
func (id *WorkflowID) Scan(src any) error  { return scanUUID((*uuid.UUID)(id), src) }
func (id *BranchID) Scan(src any) error    { return scanUUID((*uuid.UUID)(id), src) }
func (id *KycRecordID) Scan(src any) error { return scanUUID((*uuid.UUID)(id), src) }
func (id *LogEntryID) Scan(src any) error  { return scanUUID((*uuid.UUID)(id), src) }

func scanUUID(dst *uuid.UUID, src any) error {
	if src == nil {
		*dst = uuid.Nil
		return nil
	}
	if err := dst.Scan(src); err != nil {
		return fmt.Errorf("scan uuid: %w", err)
	}
	return nil
}

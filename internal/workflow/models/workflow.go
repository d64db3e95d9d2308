package models

import (
	"time"

	orgmodels "kycflow/internal/org/models"
	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
)

// Instance is the aggregate root for one applicant's approval journey.
//
// Invariants:
//   - 0 <= PendingLevelIndex <= len(Chain)
//   - Status == Approved iff PendingLevelIndex == len(Chain)
//   - Status == Rejected is only reachable while PendingLevelIndex == 0
//   - BranchID only changes while Status is InReview or ResubmissionRequired
//   - Chain is a frozen snapshot; later role hierarchy edits never touch it.
//     Only a branch transfer may replace the unfinished suffix.
//   - Version increases by exactly one per committed mutation
//
// Transition methods validate first and mutate only on success, so a failed
// call leaves the instance untouched. They do not bump Version; the store
// does that when it commits.
type Instance struct {
	ID                id.WorkflowID         `json:"id"`
	KycRecordID       id.KycRecordID        `json:"kyc_record_id"`
	ApplicantUserID   id.UserID             `json:"applicant_user_id"`
	BranchID          id.BranchID           `json:"branch_id"`
	Chain             []orgmodels.RoleLevel `json:"chain"`
	PendingLevelIndex int                   `json:"pending_level_index"`
	Status            Status                `json:"status"`
	Version           int64                 `json:"version"`
	CreatedAt         time.Time             `json:"created_at"`
	LastUpdatedAt     time.Time             `json:"last_updated_at"`
}

// NewInstance creates a workflow at the start of its chain. Draft instances
// wait for Submit; others enter review immediately.
func NewInstance(workflowID id.WorkflowID, recordID id.KycRecordID, applicant id.UserID, branchID id.BranchID, chain []orgmodels.RoleLevel, draft bool, now time.Time) (*Instance, error) {
	if len(chain) == 0 {
		return nil, dErrors.New(dErrors.CodeChainConfiguration, "approval chain cannot be empty")
	}
	status := StatusInReview
	if draft {
		status = StatusDraft
	}
	return &Instance{
		ID:              workflowID,
		KycRecordID:     recordID,
		ApplicantUserID: applicant,
		BranchID:        branchID,
		Chain:           append([]orgmodels.RoleLevel(nil), chain...),
		Status:          status,
		CreatedAt:       now,
		LastUpdatedAt:   now,
	}, nil
}

// PendingRole returns the role that must act next, or false when the chain
// is complete.
func (w *Instance) PendingRole() (string, bool) {
	if w.PendingLevelIndex < 0 || w.PendingLevelIndex >= len(w.Chain) {
		return "", false
	}
	return w.Chain[w.PendingLevelIndex].RoleName, true
}

// PreviousRole returns the role at the level before the pending one.
func (w *Instance) PreviousRole() (string, bool) {
	i := w.PendingLevelIndex - 1
	if i < 0 || i >= len(w.Chain) {
		return "", false
	}
	return w.Chain[i].RoleName, true
}

// CheckInvariants validates a loaded or freshly mutated instance.
func (w *Instance) CheckInvariants() error {
	if !w.Status.IsValid() {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "unknown status %q", w.Status)
	}
	if w.PendingLevelIndex < 0 || w.PendingLevelIndex > len(w.Chain) {
		return dErrors.New(dErrors.CodeInvariantViolation, "pending level index out of range").
			With("pending_level_index", w.PendingLevelIndex, "chain_length", len(w.Chain))
	}
	if (w.Status == StatusApproved) != (w.PendingLevelIndex == len(w.Chain)) {
		return dErrors.New(dErrors.CodeInvariantViolation, "approved status must coincide with a completed chain").
			With("status", w.Status, "pending_level_index", w.PendingLevelIndex)
	}
	if w.Status == StatusRejected && w.PendingLevelIndex != 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "rejected workflows must sit at the first level")
	}
	return nil
}

// RequireStatus returns CodeInvalidState unless the status is one of allowed.
func (w *Instance) RequireStatus(op string, allowed ...Status) error {
	for _, s := range allowed {
		if w.Status == s {
			return nil
		}
	}
	return dErrors.Newf(dErrors.CodeInvalidState, "%s is not allowed in status %s", op, w.Status).
		With("status", w.Status, "pending_level_index", w.PendingLevelIndex, "version", w.Version)
}

// Submit moves a draft into review.
func (w *Instance) Submit(now time.Time) error {
	if err := w.RequireStatus("submit", StatusDraft); err != nil {
		return err
	}
	w.Status = StatusInReview
	w.LastUpdatedAt = now
	return nil
}

// Approve advances the pending level by exactly one. Reaching the end of the
// chain approves the workflow.
func (w *Instance) Approve(now time.Time) error {
	if err := w.RequireStatus("approve", StatusInReview); err != nil {
		return err
	}
	if w.PendingLevelIndex >= len(w.Chain) {
		return dErrors.New(dErrors.CodeInvalidState, "chain already complete").
			With("pending_level_index", w.PendingLevelIndex)
	}
	w.PendingLevelIndex++
	if w.PendingLevelIndex == len(w.Chain) {
		w.Status = StatusApproved
	}
	w.LastUpdatedAt = now
	return nil
}

// ReturnToPrevious hands the case back to the previous reviewer.
func (w *Instance) ReturnToPrevious(now time.Time) error {
	if err := w.RequireStatus("return to previous", StatusInReview); err != nil {
		return err
	}
	if w.PendingLevelIndex == 0 {
		return dErrors.New(dErrors.CodeInvalidState, "cannot return to previous from the first level").
			With("pending_level_index", 0)
	}
	w.PendingLevelIndex--
	w.LastUpdatedAt = now
	return nil
}

// SendBackToApplicant asks the applicant to fix and resubmit. The pending
// level is kept so resubmission resumes where review stopped.
func (w *Instance) SendBackToApplicant(now time.Time) error {
	if err := w.RequireStatus("reject", StatusInReview); err != nil {
		return err
	}
	w.Status = StatusResubmissionRequired
	w.LastUpdatedAt = now
	return nil
}

// RejectFinal closes the workflow for good. Only the first level faces the
// applicant, so only it can issue a terminal rejection.
func (w *Instance) RejectFinal(now time.Time) error {
	if err := w.RequireStatus("reject", StatusInReview); err != nil {
		return err
	}
	if w.PendingLevelIndex != 0 {
		return dErrors.New(dErrors.CodeInvalidState, "final rejection is only possible at the first level").
			With("pending_level_index", w.PendingLevelIndex)
	}
	w.Status = StatusRejected
	w.LastUpdatedAt = now
	return nil
}

// Resubmit re-enters review at the same pending level.
func (w *Instance) Resubmit(now time.Time) error {
	if err := w.RequireStatus("resubmit", StatusResubmissionRequired); err != nil {
		return err
	}
	w.Status = StatusInReview
	w.LastUpdatedAt = now
	return nil
}

// PullBack lets the previous reviewer reclaim the case. The caller has
// already checked that nobody downstream acted.
func (w *Instance) PullBack(now time.Time) error {
	if err := w.RequireStatus("pull back", StatusInReview); err != nil {
		return err
	}
	if w.PendingLevelIndex == 0 {
		return dErrors.New(dErrors.CodeInvalidState, "nothing to pull back at the first level").
			With("pending_level_index", 0)
	}
	w.PendingLevelIndex--
	w.LastUpdatedAt = now
	return nil
}

// Reassign moves the workflow to another branch, optionally replacing the
// chain (prefix preserved by the caller).
func (w *Instance) Reassign(branchID id.BranchID, chain []orgmodels.RoleLevel, now time.Time) error {
	if !w.Status.AllowsReassignment() {
		return w.RequireStatus("transfer", StatusInReview, StatusResubmissionRequired)
	}
	if branchID == w.BranchID {
		return dErrors.New(dErrors.CodeValidation, "workflow already belongs to this branch")
	}
	if chain != nil {
		if len(chain) <= w.PendingLevelIndex {
			return dErrors.New(dErrors.CodeChainConfiguration, "rebuilt chain must keep a pending level").
				With("pending_level_index", w.PendingLevelIndex, "chain_length", len(chain))
		}
		w.Chain = append([]orgmodels.RoleLevel(nil), chain...)
	}
	w.BranchID = branchID
	w.LastUpdatedAt = now
	return nil
}

// MarkEdited records that applicant data changed. Approved records are
// immutable.
func (w *Instance) MarkEdited(now time.Time) error {
	if w.Status == StatusApproved {
		return dErrors.New(dErrors.CodeInvalidState, "approved records are immutable").
			With("status", w.Status)
	}
	w.LastUpdatedAt = now
	return nil
}

// Clone returns a deep copy.
func (w *Instance) Clone() *Instance {
	c := *w
	c.Chain = append([]orgmodels.RoleLevel(nil), w.Chain...)
	return &c
}

// LevelView is one chain level as presented by GetDetail.
type LevelView struct {
	Index       int    `json:"index"`
	RoleName    string `json:"role_name"`
	Order       int    `json:"order"`
	IsCompleted bool   `json:"is_completed"`
	IsCurrent   bool   `json:"is_current"`
}

// ChainView derives per-level progress flags from PendingLevelIndex.
func (w *Instance) ChainView() []LevelView {
	out := make([]LevelView, len(w.Chain))
	for i, lvl := range w.Chain {
		out[i] = LevelView{
			Index:       i,
			RoleName:    lvl.RoleName,
			Order:       lvl.Order,
			IsCompleted: i < w.PendingLevelIndex,
			IsCurrent:   i == w.PendingLevelIndex && !w.Status.IsTerminal(),
		}
	}
	return out
}

// Summary is the list/search projection of an instance.
type Summary struct {
	ID                id.WorkflowID  `json:"id"`
	KycRecordID       id.KycRecordID `json:"kyc_record_id"`
	BranchID          id.BranchID    `json:"branch_id"`
	Status            Status         `json:"status"`
	PendingRole       string         `json:"pending_role,omitempty"`
	PendingLevelIndex int            `json:"pending_level_index"`
	ChainLength       int            `json:"chain_length"`
	Version           int64          `json:"version"`
	LastUpdatedAt     time.Time      `json:"last_updated_at"`
}

func (w *Instance) Summary() Summary {
	role, _ := w.PendingRole()
	return Summary{
		ID:                w.ID,
		KycRecordID:       w.KycRecordID,
		BranchID:          w.BranchID,
		Status:            w.Status,
		PendingRole:       role,
		PendingLevelIndex: w.PendingLevelIndex,
		ChainLength:       len(w.Chain),
		Version:           w.Version,
		LastUpdatedAt:     w.LastUpdatedAt,
	}
}

package models

import (
	"strings"
	"time"

	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
)

const maxRemarksLength = 2000

// LogEntry is one append-only row of the approval log. Sequence equals the
// instance version produced by the write, so a workflow's entries are totally
// ordered and gap-free.
type LogEntry struct {
	ID                 id.LogEntryID `json:"id"`
	WorkflowID         id.WorkflowID `json:"workflow_id"`
	Sequence           int64         `json:"sequence"`
	ActorUserID        id.UserID     `json:"actor_user_id"`
	ActorRoleName      string        `json:"actor_role_name"`
	Action             Action        `json:"action"`
	Remarks            string        `json:"remarks,omitempty"`
	LevelIndexAtAction int           `json:"level_index_at_action"`
	StatusAfter        Status        `json:"status_after"`
	FromBranchID       *id.BranchID  `json:"from_branch_id,omitempty"`
	ToBranchID         *id.BranchID  `json:"to_branch_id,omitempty"`
	ClientIP           string        `json:"client_ip,omitempty"`
	UserAgent          string        `json:"user_agent,omitempty"`
	Timestamp          time.Time     `json:"timestamp"`
}

// NormalizeRemarks trims remarks and enforces the length limit. Required
// remarks must not be blank.
func NormalizeRemarks(remarks string, required bool) (string, error) {
	remarks = strings.TrimSpace(remarks)
	if required && remarks == "" {
		return "", dErrors.New(dErrors.CodeValidation, "remarks are required")
	}
	if len(remarks) > maxRemarksLength {
		return "", dErrors.Newf(dErrors.CodeValidation, "remarks must be %d characters or less", maxRemarksLength)
	}
	return remarks, nil
}

// LatestBy returns the most recent entry written by user with the given
// action.
func LatestBy(entries []LogEntry, user id.UserID, action Action) (LogEntry, bool) {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].ActorUserID == user && entries[i].Action == action {
			return entries[i], true
		}
	}
	return LogEntry{}, false
}

// Detail is the full read model returned by GetDetail.
type Detail struct {
	Instance *Instance   `json:"workflow"`
	Chain    []LevelView `json:"chain"`
	Log      []LogEntry  `json:"log"`
}

// PendingFilter narrows ListPending. Nil Roles matches any pending role and
// nil Branches matches every branch.
type PendingFilter struct {
	Roles    []string
	Branches []id.BranchID
}

func (f PendingFilter) Matches(w *Instance) bool {
	if w.Status != StatusInReview {
		return false
	}
	role, ok := w.PendingRole()
	if !ok {
		return false
	}
	if f.Roles != nil && !contains(f.Roles, role) {
		return false
	}
	if f.Branches != nil && !contains(f.Branches, w.BranchID) {
		return false
	}
	return true
}

func contains[T comparable](xs []T, x T) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

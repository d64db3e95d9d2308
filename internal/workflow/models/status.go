package models

import (
	dErrors "kycflow/pkg/domain-errors"
)

// Status is the lifecycle state of a workflow instance.
type Status string

const (
	StatusDraft                Status = "draft"
	StatusInReview             Status = "in_review"
	StatusResubmissionRequired Status = "resubmission_required"
	StatusApproved             Status = "approved"
	StatusRejected             Status = "rejected"
)

var validStatuses = map[Status]bool{
	StatusDraft:                true,
	StatusInReview:             true,
	StatusResubmissionRequired: true,
	StatusApproved:             true,
	StatusRejected:             true,
}

// ParseStatus rejects unknown statuses at trust boundaries (request params,
// database rows) rather than coercing them.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !validStatuses[st] {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown workflow status %q", s)
	}
	return st, nil
}

func (s Status) IsValid() bool {
	return validStatuses[s]
}

func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// AllowsReassignment reports whether the owning branch may change.
func (s Status) AllowsReassignment() bool {
	return s == StatusInReview || s == StatusResubmissionRequired
}

func (s Status) String() string {
	return string(s)
}

// Action identifies an approval log entry.
type Action string

const (
	ActionCreated            Action = "created"
	ActionSubmitted          Action = "submitted"
	ActionApproved           Action = "approved"
	ActionReturnedToPrevious Action = "returned_to_previous"
	ActionRejected           Action = "rejected"
	ActionResubmitted        Action = "resubmitted"
	ActionPulledBack         Action = "pulled_back"
	ActionTransferred        Action = "transferred"
	ActionEdited             Action = "edited"
)

var validActions = map[Action]bool{
	ActionCreated:            true,
	ActionSubmitted:          true,
	ActionApproved:           true,
	ActionReturnedToPrevious: true,
	ActionRejected:           true,
	ActionResubmitted:        true,
	ActionPulledBack:         true,
	ActionTransferred:        true,
	ActionEdited:             true,
}

func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !validActions[a] {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown approval action %q", s)
	}
	return a, nil
}

func (a Action) String() string {
	return string(a)
}

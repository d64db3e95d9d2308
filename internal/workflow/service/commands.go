package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"kycflow/internal/kyc"
	orgmodels "kycflow/internal/org/models"
	"kycflow/internal/workflow/models"
	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	"kycflow/pkg/platform/sentinel"
	"kycflow/pkg/requestcontext"
)

// StartRequest opens a workflow for a completed KYC intake. BranchID defaults
// to the actor's branch. ApplicantUserID, when set, must match the record's
// owner.
type StartRequest struct {
	KycRecordID     id.KycRecordID
	BranchID        id.BranchID
	ApplicantUserID id.UserID
	Remarks         string
	Draft           bool
}

// ActionRequest addresses one workflow. ExpectedVersion, when set, turns a
// stale read into CodeConflict before any transition is attempted.
type ActionRequest struct {
	WorkflowID      id.WorkflowID
	ExpectedVersion *int64
	Remarks         string
}

// RejectRequest sends a case back. ReturnToPrevious hands it to the previous
// reviewer; Final closes it (first level only); otherwise the applicant is
// asked to resubmit.
type RejectRequest struct {
	ActionRequest
	ReturnToPrevious bool
	Final            bool
}

// PullBackRequest reclaims a case the actor approved. ExpectedIndex is the
// pending level the caller believes the case sits at; when nil it is derived
// from the actor's latest approval.
type PullBackRequest struct {
	ActionRequest
	ExpectedIndex *int
}

type TransferRequest struct {
	ActionRequest
	NewBranchID id.BranchID
}

type UpdateDetailsRequest struct {
	ActionRequest
	Patch kyc.Patch
}

// Start creates a workflow at level 0 with a chain frozen from the current
// organization snapshot.
func (e *Engine) Start(ctx context.Context, actor id.Actor, req StartRequest) (_ *models.Instance, err error) {
	ctx, span := e.tracer.Start(ctx, "workflow.start", trace.WithAttributes(
		attribute.String("kyc_record.id", req.KycRecordID.String()),
		attribute.String("actor.user_id", actor.UserID.String()),
	))
	start := time.Now()
	defer func() { e.finish(ctx, span, "start", start, err) }()

	if req.KycRecordID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "kyc_record_id is required")
	}
	remarks, err := models.NormalizeRemarks(req.Remarks, false)
	if err != nil {
		return nil, err
	}
	branchID := req.BranchID
	if branchID.IsNil() {
		branchID = actor.BranchID
	}
	if branchID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "branch_id is required")
	}

	record, err := e.records.GetKycRecord(ctx, req.KycRecordID)
	if err != nil {
		return nil, err
	}
	if !req.ApplicantUserID.IsNil() && req.ApplicantUserID != record.ApplicantUserID {
		return nil, dErrors.New(dErrors.CodeValidation, "applicant does not own the kyc record").
			With("kyc_record_id", req.KycRecordID)
	}
	if !actor.IsStaff() && actor.UserID != record.ApplicantUserID {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the applicant or staff may start a workflow")
	}

	snap, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	levels, err := e.builder.BuildChain(snap, branchID)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	inst, err := models.NewInstance(id.NewWorkflowID(), req.KycRecordID, record.ApplicantUserID, branchID, levels, req.Draft, now)
	if err != nil {
		return nil, err
	}
	entry := models.LogEntry{
		Action:        models.ActionCreated,
		ActorRoleName: actingRole(actor, ""),
		Remarks:       remarks,
	}
	e.stamp(ctx, actor, inst, &entry)
	if err := e.store.Create(ctx, inst, entry); err != nil {
		return nil, storeErr(err, "workflow not found", "workflow_id", inst.ID)
	}
	entry.Sequence = inst.Version
	e.committed(ctx, "start", actor, inst, entry)
	return inst, nil
}

// Submit moves a draft into review. The applicant or any staff member may
// submit.
func (e *Engine) Submit(ctx context.Context, actor id.Actor, req ActionRequest) (*models.Instance, error) {
	remarks, err := models.NormalizeRemarks(req.Remarks, false)
	if err != nil {
		return nil, err
	}
	return e.mutate(ctx, "submit", actor, req, func(ctx context.Context, inst *models.Instance) (models.LogEntry, error) {
		if err := inst.Submit(requestcontext.Now(ctx)); err != nil {
			return models.LogEntry{}, err
		}
		roleName, err := e.applicantOrStaff(ctx, actor, inst)
		if err != nil {
			return models.LogEntry{}, err
		}
		return models.LogEntry{
			Action:             models.ActionSubmitted,
			ActorRoleName:      roleName,
			Remarks:            remarks,
			LevelIndexAtAction: inst.PendingLevelIndex,
		}, nil
	})
}

// Approve advances the pending level. The actor must hold the pending role or
// be SuperAdmin.
func (e *Engine) Approve(ctx context.Context, actor id.Actor, req ActionRequest) (*models.Instance, error) {
	remarks, err := models.NormalizeRemarks(req.Remarks, false)
	if err != nil {
		return nil, err
	}
	return e.mutate(ctx, "approve", actor, req, func(ctx context.Context, inst *models.Instance) (models.LogEntry, error) {
		role, _ := inst.PendingRole()
		level := inst.PendingLevelIndex
		if err := inst.Approve(requestcontext.Now(ctx)); err != nil {
			return models.LogEntry{}, err
		}
		if err := authorizeLevel(actor, role, level); err != nil {
			return models.LogEntry{}, err
		}
		return models.LogEntry{
			Action:             models.ActionApproved,
			ActorRoleName:      actor.ActingRole(role),
			Remarks:            remarks,
			LevelIndexAtAction: level,
		}, nil
	})
}

// Reject sends the case back to the previous reviewer, to the applicant, or
// closes it. Remarks are mandatory.
func (e *Engine) Reject(ctx context.Context, actor id.Actor, req RejectRequest) (*models.Instance, error) {
	if req.ReturnToPrevious && req.Final {
		return nil, dErrors.New(dErrors.CodeValidation, "return_to_previous and final are mutually exclusive")
	}
	remarks, err := models.NormalizeRemarks(req.Remarks, true)
	if err != nil {
		return nil, err
	}
	return e.mutate(ctx, "reject", actor, req.ActionRequest, func(ctx context.Context, inst *models.Instance) (models.LogEntry, error) {
		role, _ := inst.PendingRole()
		level := inst.PendingLevelIndex
		now := requestcontext.Now(ctx)
		action := models.ActionRejected
		var err error
		switch {
		case req.ReturnToPrevious:
			action = models.ActionReturnedToPrevious
			err = inst.ReturnToPrevious(now)
		case req.Final:
			err = inst.RejectFinal(now)
		default:
			err = inst.SendBackToApplicant(now)
		}
		if err != nil {
			return models.LogEntry{}, err
		}
		if err := authorizeLevel(actor, role, level); err != nil {
			return models.LogEntry{}, err
		}
		return models.LogEntry{
			Action:             action,
			ActorRoleName:      actor.ActingRole(role),
			Remarks:            remarks,
			LevelIndexAtAction: level,
		}, nil
	})
}

// Resubmit re-enters review at the level that sent the case back. The
// applicant owning the record or staff may resubmit.
func (e *Engine) Resubmit(ctx context.Context, actor id.Actor, req ActionRequest) (*models.Instance, error) {
	remarks, err := models.NormalizeRemarks(req.Remarks, false)
	if err != nil {
		return nil, err
	}
	return e.mutate(ctx, "resubmit", actor, req, func(ctx context.Context, inst *models.Instance) (models.LogEntry, error) {
		if err := inst.Resubmit(requestcontext.Now(ctx)); err != nil {
			return models.LogEntry{}, err
		}
		roleName, err := e.applicantOrStaff(ctx, actor, inst)
		if err != nil {
			return models.LogEntry{}, err
		}
		return models.LogEntry{
			Action:             models.ActionResubmitted,
			ActorRoleName:      roleName,
			Remarks:            remarks,
			LevelIndexAtAction: inst.PendingLevelIndex,
		}, nil
	})
}

// PullBack lets the reviewer of the previous level reclaim a case nobody
// downstream has acted on yet. If the pending level moved since the actor's
// approval the call fails with CodeConflict.
func (e *Engine) PullBack(ctx context.Context, actor id.Actor, req PullBackRequest) (*models.Instance, error) {
	remarks, err := models.NormalizeRemarks(req.Remarks, false)
	if err != nil {
		return nil, err
	}
	return e.mutate(ctx, "pull_back", actor, req.ActionRequest, func(ctx context.Context, inst *models.Instance) (models.LogEntry, error) {
		if err := inst.RequireStatus("pull back", models.StatusInReview); err != nil {
			return models.LogEntry{}, err
		}
		if inst.PendingLevelIndex == 0 {
			return models.LogEntry{}, dErrors.New(dErrors.CodeInvalidState, "nothing to pull back at the first level").
				With("pending_level_index", 0, "version", inst.Version)
		}
		expected, err := e.expectedPullBackIndex(ctx, actor, inst, req.ExpectedIndex)
		if err != nil {
			return models.LogEntry{}, err
		}
		if inst.PendingLevelIndex != expected {
			return models.LogEntry{}, conflictWith(inst, "a downstream reviewer already acted").
				With("expected_level_index", expected)
		}
		role, _ := inst.PreviousRole()
		level := inst.PendingLevelIndex
		if err := inst.PullBack(requestcontext.Now(ctx)); err != nil {
			return models.LogEntry{}, err
		}
		if !actor.CanActAs(role) {
			return models.LogEntry{}, dErrors.New(dErrors.CodeForbidden, "only the previous level may pull back").
				With("required_role", role)
		}
		return models.LogEntry{
			Action:             models.ActionPulledBack,
			ActorRoleName:      actor.ActingRole(role),
			Remarks:            remarks,
			LevelIndexAtAction: level,
		}, nil
	})
}

// expectedPullBackIndex derives the level a pull-back is valid at: one past
// the actor's latest approval.
func (e *Engine) expectedPullBackIndex(ctx context.Context, actor id.Actor, inst *models.Instance, explicit *int) (int, error) {
	if explicit != nil {
		return *explicit, nil
	}
	entries, err := e.store.ListLog(ctx, inst.ID)
	if err != nil {
		return 0, storeErr(err, "workflow not found", "workflow_id", inst.ID)
	}
	last, ok := models.LatestBy(entries, actor.UserID, models.ActionApproved)
	if !ok {
		if actor.IsSuperAdmin() {
			return inst.PendingLevelIndex, nil
		}
		return 0, dErrors.New(dErrors.CodeForbidden, "actor has no approval to pull back").
			With("workflow_id", inst.ID)
	}
	return last.LevelIndexAtAction + 1, nil
}

// Transfer moves a workflow to another branch. Admin only.
func (e *Engine) Transfer(ctx context.Context, actor id.Actor, req TransferRequest) (*models.Instance, error) {
	if !actor.IsAdmin() {
		return nil, dErrors.New(dErrors.CodeForbidden, "only administrators may transfer workflows")
	}
	if req.NewBranchID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "new_branch_id is required")
	}
	return e.reassign(ctx, "transfer", actor, req.ActionRequest, req.NewBranchID, id.RoleAdmin)
}

// PullToMyBranch moves a workflow into the actor's own branch.
func (e *Engine) PullToMyBranch(ctx context.Context, actor id.Actor, req ActionRequest) (*models.Instance, error) {
	if !actor.IsStaff() {
		return nil, dErrors.New(dErrors.CodeForbidden, "only staff may pull workflows to their branch")
	}
	if actor.BranchID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "actor has no branch")
	}
	return e.reassign(ctx, "pull_to_branch", actor, req, actor.BranchID, "")
}

// reassign changes the owning branch. If the frozen chain's unfinished levels
// do not apply at the target, the suffix is rebuilt from the target branch;
// completed levels are kept as they were.
func (e *Engine) reassign(ctx context.Context, op string, actor id.Actor, req ActionRequest, target id.BranchID, role string) (*models.Instance, error) {
	remarks, err := models.NormalizeRemarks(req.Remarks, false)
	if err != nil {
		return nil, err
	}
	return e.mutate(ctx, op, actor, req, func(ctx context.Context, inst *models.Instance) (models.LogEntry, error) {
		if err := inst.RequireStatus("transfer", models.StatusInReview, models.StatusResubmissionRequired); err != nil {
			return models.LogEntry{}, err
		}
		snap, err := e.snapshot(ctx)
		if err != nil {
			return models.LogEntry{}, err
		}
		if _, ok := snap.Branch(target); !ok {
			return models.LogEntry{}, dErrors.New(dErrors.CodeNotFound, "branch not found").With("branch_id", target)
		}
		var rebuilt []orgmodels.RoleLevel
		if !e.builder.Satisfies(snap, target, inst.Chain, inst.PendingLevelIndex) {
			rebuilt, err = e.builder.RebuildSuffix(snap, target, inst.Chain, inst.PendingLevelIndex)
			if err != nil {
				return models.LogEntry{}, err
			}
		}
		from := inst.BranchID
		level := inst.PendingLevelIndex
		if err := inst.Reassign(target, rebuilt, requestcontext.Now(ctx)); err != nil {
			return models.LogEntry{}, err
		}
		if rebuilt != nil {
			e.logger.InfoContext(ctx, "workflow_chain_rebuilt",
				"request_id", requestcontext.RequestID(ctx),
				"workflow_id", inst.ID,
				"branch_id", target,
				"chain_length", len(rebuilt),
			)
		}
		return models.LogEntry{
			Action:             models.ActionTransferred,
			ActorRoleName:      actingRole(actor, role),
			Remarks:            remarks,
			LevelIndexAtAction: level,
			FromBranchID:       &from,
			ToBranchID:         &target,
		}, nil
	})
}

// UpdateDetails forwards an applicant data edit to the records subsystem and
// logs it. The actor is authorized against the loaded state before the patch
// is sent. If another transition commits after the patch, the Edited entry is
// recorded on the newer version; only an approval in between prevents it.
func (e *Engine) UpdateDetails(ctx context.Context, actor id.Actor, req UpdateDetailsRequest) (_ *models.Instance, err error) {
	if err := req.Patch.Validate(); err != nil {
		return nil, err
	}
	remarks, err := models.NormalizeRemarks(req.Remarks, false)
	if err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "workflow.update_details", trace.WithAttributes(
		attribute.String("workflow.id", req.WorkflowID.String()),
		attribute.String("actor.user_id", actor.UserID.String()),
	))
	start := time.Now()
	defer func() { e.finish(ctx, span, "update_details", start, err) }()

	current, err := e.load(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}
	if req.ExpectedVersion != nil && *req.ExpectedVersion != current.Version {
		return nil, conflictWith(current, "workflow changed since it was read").
			With("expected_version", *req.ExpectedVersion)
	}
	if err := current.Clone().MarkEdited(requestcontext.Now(ctx)); err != nil {
		return nil, err
	}
	roleName, err := e.authorizeEdit(ctx, actor, current)
	if err != nil {
		return nil, err
	}
	if err := e.records.ApplyPatch(ctx, current.KycRecordID, req.Patch); err != nil {
		return nil, err
	}

	entry := models.LogEntry{
		Action:        models.ActionEdited,
		ActorRoleName: roleName,
		Remarks:       remarks,
	}
	return e.commitEdit(ctx, actor, current, entry)
}

// maxEditCommits bounds how often an applied edit is re-recorded after losing
// the version race.
const maxEditCommits = 5

// commitEdit records an edit the records subsystem already holds. Edited only
// bumps the version, so a lost race re-reads the instance and records the
// entry against the newer state instead of dropping it.
func (e *Engine) commitEdit(ctx context.Context, actor id.Actor, current *models.Instance, entry models.LogEntry) (*models.Instance, error) {
	for attempt := 1; ; attempt++ {
		next := current.Clone()
		if err := next.MarkEdited(requestcontext.Now(ctx)); err != nil {
			e.logger.ErrorContext(ctx, "workflow_edit_unrecorded",
				"request_id", requestcontext.RequestID(ctx),
				"workflow_id", current.ID,
				"kyc_record_id", current.KycRecordID,
				"status", current.Status,
				"version", current.Version,
			)
			return nil, err
		}
		if err := next.CheckInvariants(); err != nil {
			return nil, err
		}
		entry.LevelIndexAtAction = next.PendingLevelIndex
		e.stamp(ctx, actor, next, &entry)

		err := e.store.Commit(ctx, next, current.Version, entry)
		if err == nil {
			entry.Sequence = next.Version
			e.committed(ctx, "update_details", actor, next, entry)
			return next, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) || attempt == maxEditCommits {
			return nil, e.commitErr(ctx, current, err)
		}
		if current, err = e.load(ctx, current.ID); err != nil {
			return nil, err
		}
	}
}

// authorizeEdit allows the current level's reviewer (or SuperAdmin) and the
// applicant while the case is with them.
func (e *Engine) authorizeEdit(ctx context.Context, actor id.Actor, inst *models.Instance) (string, error) {
	if role, ok := inst.PendingRole(); ok && actor.CanActAs(role) {
		return actor.ActingRole(role), nil
	}
	if inst.Status == models.StatusResubmissionRequired || inst.Status == models.StatusDraft {
		if err := e.requireApplicant(ctx, actor, inst); err == nil {
			return applicantRole, nil
		}
	}
	return "", dErrors.New(dErrors.CodeForbidden, "actor may not edit this record").
		With("status", inst.Status, "pending_level_index", inst.PendingLevelIndex)
}

// applicantOrStaff authorizes actions open to both the applicant and staff
// and returns the role recorded for the actor.
func (e *Engine) applicantOrStaff(ctx context.Context, actor id.Actor, inst *models.Instance) (string, error) {
	if actor.IsStaff() {
		role, _ := inst.PendingRole()
		return actor.ActingRole(role), nil
	}
	if err := e.requireApplicant(ctx, actor, inst); err != nil {
		return "", err
	}
	return applicantRole, nil
}

// requireApplicant confirms ownership with the records subsystem rather than
// trusting the copy on the instance.
func (e *Engine) requireApplicant(ctx context.Context, actor id.Actor, inst *models.Instance) error {
	if actor.UserID != inst.ApplicantUserID {
		return dErrors.New(dErrors.CodeForbidden, "actor is not the applicant")
	}
	record, err := e.records.GetKycRecord(ctx, inst.KycRecordID)
	if err != nil {
		return err
	}
	if record.ApplicantUserID != actor.UserID {
		return dErrors.New(dErrors.CodeForbidden, "actor is not the applicant")
	}
	return nil
}

func authorizeLevel(actor id.Actor, role string, level int) error {
	if actor.CanActAs(role) {
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, "actor does not hold the pending role").
		With("required_role", role, "pending_level_index", level)
}

func actingRole(actor id.Actor, role string) string {
	if r := actor.ActingRole(role); r != "" {
		return r
	}
	return applicantRole
}

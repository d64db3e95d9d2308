package service

import (
	"context"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"kycflow/internal/workflow/models"
	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
)

// SearchQuery filters workflows by applicant identity text plus optional
// branch and status filters.
type SearchQuery struct {
	Text     string
	Branches []id.BranchID
	Statuses []models.Status
}

// SearchResult pairs a workflow summary with the matched applicant.
type SearchResult struct {
	models.Summary
	ApplicantName string `json:"applicant_name"`
}

// ListPending returns in-review workflows whose pending role the actor can
// act for, oldest first. Without the cross-branch permission the scope is the
// actor's own branch.
func (e *Engine) ListPending(ctx context.Context, actor id.Actor, branches []id.BranchID) ([]models.Summary, error) {
	if !actor.IsStaff() {
		return nil, dErrors.New(dErrors.CodeForbidden, "only staff have pending work")
	}
	scope, err := branchScope(actor, branches)
	if err != nil {
		return nil, err
	}
	filter := models.PendingFilter{Branches: scope}
	if !actor.IsSuperAdmin() {
		filter.Roles = actor.Roles
	}
	items, err := e.store.ListPending(ctx, filter)
	if err != nil {
		return nil, storeErr(err, "workflow not found")
	}
	out := make([]models.Summary, 0, len(items))
	for _, inst := range items {
		out = append(out, inst.Summary())
	}
	return out, nil
}

// GetDetail returns the instance, its chain progress and the full approval
// log in sequence order.
func (e *Engine) GetDetail(ctx context.Context, actor id.Actor, workflowID id.WorkflowID) (*models.Detail, error) {
	var (
		inst    *models.Instance
		entries []models.LogEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		inst, err = e.load(gctx, workflowID)
		return err
	})
	g.Go(func() error {
		var err error
		entries, err = e.store.ListLog(gctx, workflowID)
		if err != nil {
			return storeErr(err, "workflow not found", "workflow_id", workflowID)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if !actor.IsStaff() && actor.UserID != inst.ApplicantUserID {
		return nil, dErrors.New(dErrors.CodeForbidden, "actor may not view this workflow")
	}
	// The log and the instance are read separately. A log read before the
	// instance's last commit is read again; entries committed after the
	// instance was read are dropped.
	if n := len(entries); n == 0 || entries[n-1].Sequence < inst.Version {
		var err error
		if entries, err = e.store.ListLog(ctx, workflowID); err != nil {
			return nil, storeErr(err, "workflow not found", "workflow_id", workflowID)
		}
	}
	entries = slices.DeleteFunc(entries, func(le models.LogEntry) bool {
		return le.Sequence > inst.Version
	})
	return &models.Detail{
		Instance: inst,
		Chain:    inst.ChainView(),
		Log:      entries,
	}, nil
}

// Search delegates identity matching to the records subsystem and filters the
// matching workflows by branch and status.
func (e *Engine) Search(ctx context.Context, actor id.Actor, q SearchQuery) ([]SearchResult, error) {
	if !actor.IsStaff() {
		return nil, dErrors.New(dErrors.CodeForbidden, "only staff may search workflows")
	}
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "search text is required")
	}
	scope, err := branchScope(actor, q.Branches)
	if err != nil {
		return nil, err
	}
	records, err := e.records.SearchRecords(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return []SearchResult{}, nil
	}
	names := make(map[id.KycRecordID]string, len(records))
	ids := make([]id.KycRecordID, 0, len(records))
	for _, r := range records {
		names[r.ID] = r.FullName
		ids = append(ids, r.ID)
	}
	items, err := e.store.ListByRecords(ctx, ids)
	if err != nil {
		return nil, storeErr(err, "workflow not found")
	}
	out := make([]SearchResult, 0, len(items))
	for _, inst := range items {
		if len(scope) > 0 && !slices.Contains(scope, inst.BranchID) {
			continue
		}
		if len(q.Statuses) > 0 && !slices.Contains(q.Statuses, inst.Status) {
			continue
		}
		out = append(out, SearchResult{Summary: inst.Summary(), ApplicantName: names[inst.KycRecordID]})
	}
	return out, nil
}

// branchScope resolves which branches a query may cover. nil means every
// branch.
func branchScope(actor id.Actor, requested []id.BranchID) ([]id.BranchID, error) {
	if actor.IsAdmin() || actor.HasPermission(id.PermissionCrossBranch) {
		if len(requested) == 0 {
			return nil, nil
		}
		return requested, nil
	}
	for _, b := range requested {
		if b != actor.BranchID {
			return nil, dErrors.New(dErrors.CodeForbidden, "cross-branch access requires permission").
				With("branch_id", b)
		}
	}
	return []id.BranchID{actor.BranchID}, nil
}

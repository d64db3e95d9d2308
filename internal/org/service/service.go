// Package service manages the role hierarchy, branch directory and staffing
// that approval chains are built from.
package service

import (
	"context"
	"errors"
	"log/slog"

	"kycflow/internal/org/models"
	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	"kycflow/pkg/platform/sentinel"
	"kycflow/pkg/requestcontext"
)

// Store persists organization configuration.
type Store interface {
	CreateRole(ctx context.Context, role *models.Role) error
	FindRole(ctx context.Context, name string) (*models.Role, error)
	UpdateRole(ctx context.Context, role *models.Role) error
	DeleteRole(ctx context.Context, name string) error
	ListRoles(ctx context.Context) ([]models.Role, error)
	CreateBranch(ctx context.Context, branch *models.Branch) error
	UpdateBranch(ctx context.Context, branch *models.Branch) error
	FindBranch(ctx context.Context, branchID id.BranchID) (*models.Branch, error)
	ListBranches(ctx context.Context) ([]models.Branch, error)
	AddStaffing(ctx context.Context, st models.Staffing) error
	RemoveStaffing(ctx context.Context, st models.Staffing) error
	ListStaffing(ctx context.Context) ([]models.Staffing, error)
}

// WorkflowCounter reports how many workflows reference a branch.
type WorkflowCounter interface {
	CountByBranch(ctx context.Context, branchID id.BranchID) (int, error)
}

// Invalidator drops cached snapshots after a configuration write.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// TxRunner groups store calls into one transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type passthroughTx struct{}

func (passthroughTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Service orchestrates organization configuration changes.
type Service struct {
	store       Store
	workflows   WorkflowCounter
	invalidator Invalidator
	tx          TxRunner
	logger      *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithInvalidator(inv Invalidator) Option {
	return func(s *Service) {
		s.invalidator = inv
	}
}

func WithTx(tx TxRunner) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

func New(store Store, workflows WorkflowCounter, opts ...Option) *Service {
	s := &Service{store: store, workflows: workflows, tx: passthroughTx{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot loads the current configuration. Callers normally go through the
// snapshot cache instead.
func (s *Service) Snapshot(ctx context.Context) (*models.Snapshot, error) {
	roles, err := s.store.ListRoles(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load roles")
	}
	branches, err := s.store.ListBranches(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load branches")
	}
	staffing, err := s.store.ListStaffing(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load staffing")
	}
	return models.NewSnapshot(roles, branches, staffing, requestcontext.Now(ctx)), nil
}

// EnsureSuperAdmin creates the sentinel role at order when it is missing.
func (s *Service) EnsureSuperAdmin(ctx context.Context, order int) error {
	_, err := s.store.FindRole(ctx, id.RoleSuperAdmin)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load super admin role")
	}
	_, err = s.CreateRole(ctx, id.RoleSuperAdmin, order, true)
	return err
}

func (s *Service) ListRoles(ctx context.Context) ([]models.Role, error) {
	roles, err := s.store.ListRoles(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list roles")
	}
	return roles, nil
}

func (s *Service) CreateRole(ctx context.Context, name string, order int, global bool) (*models.Role, error) {
	role, err := models.NewRole(name, order, global, requestcontext.Now(ctx))
	if err != nil {
		return nil, toValidation(err)
	}
	if err := s.store.CreateRole(ctx, role); err != nil {
		return nil, wrapStoreErr(err, "role")
	}
	s.afterWrite(ctx, "org.role_created", "role", role.Name, "order", role.Order)
	return role, nil
}

// ReorderRole moves a role. Existing workflow chains are frozen snapshots and
// do not change.
func (s *Service) ReorderRole(ctx context.Context, name string, order int) (*models.Role, error) {
	var role *models.Role
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		r, err := s.store.FindRole(ctx, name)
		if err != nil {
			return wrapStoreErr(err, "role")
		}
		if err := r.ApplyReorder(order, requestcontext.Now(ctx)); err != nil {
			return toValidation(err)
		}
		if err := s.store.UpdateRole(ctx, r); err != nil {
			return wrapStoreErr(err, "role")
		}
		role = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterWrite(ctx, "org.role_reordered", "role", role.Name, "order", role.Order)
	return role, nil
}

func (s *Service) DeleteRole(ctx context.Context, name string) error {
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		r, err := s.store.FindRole(ctx, name)
		if err != nil {
			return wrapStoreErr(err, "role")
		}
		if err := r.CanDelete(); err != nil {
			return err
		}
		if err := s.store.DeleteRole(ctx, name); err != nil {
			return wrapStoreErr(err, "role")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.afterWrite(ctx, "org.role_deleted", "role", name)
	return nil
}

func (s *Service) ListBranches(ctx context.Context) ([]models.Branch, error) {
	branches, err := s.store.ListBranches(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list branches")
	}
	return branches, nil
}

func (s *Service) GetBranch(ctx context.Context, branchID id.BranchID) (*models.Branch, error) {
	b, err := s.store.FindBranch(ctx, branchID)
	if err != nil {
		return nil, wrapStoreErr(err, "branch")
	}
	return b, nil
}

func (s *Service) CreateBranch(ctx context.Context, name, code string, parent *id.BranchID) (*models.Branch, error) {
	b, err := models.NewBranch(id.NewBranchID(), name, code, parent, requestcontext.Now(ctx))
	if err != nil {
		return nil, toValidation(err)
	}
	if err := s.store.CreateBranch(ctx, b); err != nil {
		return nil, wrapStoreErr(err, "branch")
	}
	s.afterWrite(ctx, "org.branch_created", "branch_id", b.ID, "code", b.Code)
	return b, nil
}

// UpdateBranch edits a branch that no workflow references yet.
func (s *Service) UpdateBranch(ctx context.Context, branchID id.BranchID, name, code string, parent *id.BranchID) (*models.Branch, error) {
	var branch *models.Branch
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		b, err := s.store.FindBranch(ctx, branchID)
		if err != nil {
			return wrapStoreErr(err, "branch")
		}
		n, err := s.workflows.CountByBranch(ctx, branchID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to count branch workflows")
		}
		if n > 0 {
			return dErrors.New(dErrors.CodeConflict, "branch is referenced by workflows and cannot be edited").
				With("branch_id", branchID, "workflows", n)
		}
		if parent != nil {
			if err := s.checkNoCycle(ctx, branchID, *parent); err != nil {
				return err
			}
		}
		if err := b.ApplyUpdate(name, code, parent, requestcontext.Now(ctx)); err != nil {
			return toValidation(err)
		}
		if err := s.store.UpdateBranch(ctx, b); err != nil {
			return wrapStoreErr(err, "branch")
		}
		branch = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterWrite(ctx, "org.branch_updated", "branch_id", branch.ID, "code", branch.Code)
	return branch, nil
}

func (s *Service) checkNoCycle(ctx context.Context, branchID, parent id.BranchID) error {
	seen := map[id.BranchID]struct{}{}
	for current := &parent; current != nil; {
		if *current == branchID {
			return dErrors.New(dErrors.CodeValidation, "branch parent would create a cycle")
		}
		if _, loop := seen[*current]; loop {
			return nil
		}
		seen[*current] = struct{}{}
		b, err := s.store.FindBranch(ctx, *current)
		if err != nil {
			return wrapStoreErr(err, "parent branch")
		}
		current = b.ParentID
	}
	return nil
}

func (s *Service) StaffRole(ctx context.Context, branchID id.BranchID, roleName string) error {
	st := models.Staffing{BranchID: branchID, RoleName: roleName}
	if err := s.store.AddStaffing(ctx, st); err != nil {
		return wrapStoreErr(err, "staffing")
	}
	s.afterWrite(ctx, "org.role_staffed", "branch_id", branchID, "role", roleName)
	return nil
}

func (s *Service) UnstaffRole(ctx context.Context, branchID id.BranchID, roleName string) error {
	st := models.Staffing{BranchID: branchID, RoleName: roleName}
	if err := s.store.RemoveStaffing(ctx, st); err != nil {
		return wrapStoreErr(err, "staffing")
	}
	s.afterWrite(ctx, "org.role_unstaffed", "branch_id", branchID, "role", roleName)
	return nil
}

// afterWrite invalidates cached snapshots and logs the change. Invalidation
// failures are logged; the cache TTL bounds staleness.
func (s *Service) afterWrite(ctx context.Context, event string, attrs ...any) {
	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "org snapshot invalidation failed",
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
	}
	if s.logger == nil {
		return
	}
	args := append([]any{"request_id", requestcontext.RequestID(ctx)}, attrs...)
	s.logger.InfoContext(ctx, event, args...)
}

func toValidation(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.New(dErrors.CodeValidation, err.Error())
	}
	return err
}

func wrapStoreErr(err error, what string) error {
	if _, ok := dErrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Newf(dErrors.CodeNotFound, "%s not found", what)
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.Newf(dErrors.CodeConflict, "%s name or code already in use", what)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Newf(dErrors.CodeConflict, "%s conflicts with existing configuration", what)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write "+what)
}

// Package handler exposes organization administration over HTTP. Every route
// is mounted behind the admin middleware.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"kycflow/internal/org/models"
	id "kycflow/pkg/domain"
	"kycflow/pkg/platform/httputil"
	"kycflow/pkg/requestcontext"
)

// Service defines the organization operations exposed to administrators.
type Service interface {
	ListRoles(ctx context.Context) ([]models.Role, error)
	CreateRole(ctx context.Context, name string, order int, global bool) (*models.Role, error)
	ReorderRole(ctx context.Context, name string, order int) (*models.Role, error)
	DeleteRole(ctx context.Context, name string) error
	ListBranches(ctx context.Context) ([]models.Branch, error)
	GetBranch(ctx context.Context, branchID id.BranchID) (*models.Branch, error)
	CreateBranch(ctx context.Context, name, code string, parent *id.BranchID) (*models.Branch, error)
	UpdateBranch(ctx context.Context, branchID id.BranchID, name, code string, parent *id.BranchID) (*models.Branch, error)
	StaffRole(ctx context.Context, branchID id.BranchID, roleName string) error
	UnstaffRole(ctx context.Context, branchID id.BranchID, roleName string) error
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts admin endpoints on r. The caller applies admin.RequireAdmin.
func (h *Handler) Register(r chi.Router) {
	r.Route("/admin/roles", func(r chi.Router) {
		r.Get("/", h.HandleListRoles)
		r.Post("/", h.HandleCreateRole)
		r.Put("/{name}/order", h.HandleReorderRole)
		r.Delete("/{name}", h.HandleDeleteRole)
	})
	r.Route("/admin/branches", func(r chi.Router) {
		r.Get("/", h.HandleListBranches)
		r.Post("/", h.HandleCreateBranch)
		r.Get("/{id}", h.HandleGetBranch)
		r.Put("/{id}", h.HandleUpdateBranch)
		r.Put("/{id}/roles/{role}", h.HandleStaffRole)
		r.Delete("/{id}/roles/{role}", h.HandleUnstaffRole)
	})
}

func (h *Handler) HandleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.fail(w, r, "list_roles", err)
		return
	}
	if roles == nil {
		roles = []models.Role{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) HandleCreateRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CreateRoleRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	role, err := h.service.CreateRole(ctx, req.Name, req.Order, req.Global)
	if err != nil {
		h.fail(w, r, "create_role", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, role)
}

func (h *Handler) HandleReorderRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[ReorderRoleRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	role, err := h.service.ReorderRole(ctx, chi.URLParam(r, "name"), req.Order)
	if err != nil {
		h.fail(w, r, "reorder_role", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, role)
}

func (h *Handler) HandleDeleteRole(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteRole(r.Context(), chi.URLParam(r, "name")); err != nil {
		h.fail(w, r, "delete_role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleListBranches(w http.ResponseWriter, r *http.Request) {
	branches, err := h.service.ListBranches(r.Context())
	if err != nil {
		h.fail(w, r, "list_branches", err)
		return
	}
	if branches == nil {
		branches = []models.Branch{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"branches": branches})
}

func (h *Handler) HandleCreateBranch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[BranchRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	branch, err := h.service.CreateBranch(ctx, req.Name, req.Code, req.parsedParent)
	if err != nil {
		h.fail(w, r, "create_branch", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, branch)
}

func (h *Handler) HandleGetBranch(w http.ResponseWriter, r *http.Request) {
	branchID, err := id.ParseBranchID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	branch, err := h.service.GetBranch(r.Context(), branchID)
	if err != nil {
		h.fail(w, r, "get_branch", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, branch)
}

func (h *Handler) HandleUpdateBranch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	branchID, err := id.ParseBranchID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[BranchRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	branch, err := h.service.UpdateBranch(ctx, branchID, req.Name, req.Code, req.parsedParent)
	if err != nil {
		h.fail(w, r, "update_branch", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, branch)
}

func (h *Handler) HandleStaffRole(w http.ResponseWriter, r *http.Request) {
	h.staffing(w, r, "staff_role", h.service.StaffRole)
}

func (h *Handler) HandleUnstaffRole(w http.ResponseWriter, r *http.Request) {
	h.staffing(w, r, "unstaff_role", h.service.UnstaffRole)
}

func (h *Handler) staffing(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, id.BranchID, string) error) {
	branchID, err := id.ParseBranchID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := fn(r.Context(), branchID, chi.URLParam(r, "role")); err != nil {
		h.fail(w, r, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	h.logger.WarnContext(ctx, "org admin request failed",
		"request_id", requestcontext.RequestID(ctx),
		"operation", op,
		"user_id", requestcontext.UserID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}

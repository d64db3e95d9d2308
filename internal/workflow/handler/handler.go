package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"kycflow/internal/workflow/models"
	"kycflow/internal/workflow/service"
	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	"kycflow/pkg/platform/httputil"
	"kycflow/pkg/requestcontext"
)

// Service defines the workflow operations exposed over HTTP.
type Service interface {
	Start(ctx context.Context, actor id.Actor, req service.StartRequest) (*models.Instance, error)
	Submit(ctx context.Context, actor id.Actor, req service.ActionRequest) (*models.Instance, error)
	Approve(ctx context.Context, actor id.Actor, req service.ActionRequest) (*models.Instance, error)
	Reject(ctx context.Context, actor id.Actor, req service.RejectRequest) (*models.Instance, error)
	Resubmit(ctx context.Context, actor id.Actor, req service.ActionRequest) (*models.Instance, error)
	PullBack(ctx context.Context, actor id.Actor, req service.PullBackRequest) (*models.Instance, error)
	Transfer(ctx context.Context, actor id.Actor, req service.TransferRequest) (*models.Instance, error)
	PullToMyBranch(ctx context.Context, actor id.Actor, req service.ActionRequest) (*models.Instance, error)
	UpdateDetails(ctx context.Context, actor id.Actor, req service.UpdateDetailsRequest) (*models.Instance, error)
	ListPending(ctx context.Context, actor id.Actor, branches []id.BranchID) ([]models.Summary, error)
	GetDetail(ctx context.Context, actor id.Actor, workflowID id.WorkflowID) (*models.Detail, error)
	Search(ctx context.Context, actor id.Actor, q service.SearchQuery) ([]service.SearchResult, error)
}

// Handler wires workflow endpoints to the engine.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts workflow endpoints on the router. Static routes are declared
// before /{id} so chi never treats "pending" as a workflow ID.
func (h *Handler) Register(r chi.Router) {
	r.Route("/workflows", func(r chi.Router) {
		r.Post("/", h.HandleStart)
		r.Get("/pending", h.HandleListPending)
		r.Get("/search", h.HandleSearch)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGetDetail)
			r.Post("/submit", h.HandleSubmit)
			r.Post("/approve", h.HandleApprove)
			r.Post("/reject", h.HandleReject)
			r.Post("/resubmit", h.HandleResubmit)
			r.Post("/pull-back", h.HandlePullBack)
			r.Post("/transfer", h.HandleTransfer)
			r.Post("/pull", h.HandlePullToMyBranch)
			r.Patch("/details", h.HandleUpdateDetails)
		})
	})
}

// HandleStart handles POST /workflows requests.
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actor, ok := requireActor(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[StartRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	inst, err := h.service.Start(ctx, actor, req.parsed)
	if err != nil {
		h.logFailure(ctx, "start", actor, err)
		httputil.WriteError(w, err)
		return
	}
	setETag(w, inst.Version)
	httputil.WriteJSON(w, http.StatusCreated, FromInstance(inst))
}

// HandleSubmit handles POST /workflows/{id}/submit requests.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	runAction(h, w, r, "submit", func(ctx context.Context, actor id.Actor, workflowID id.WorkflowID, body *ActionBody) (*models.Instance, error) {
		return h.service.Submit(ctx, actor, body.toAction(workflowID))
	})
}

// HandleApprove handles POST /workflows/{id}/approve requests.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	runAction(h, w, r, "approve", func(ctx context.Context, actor id.Actor, workflowID id.WorkflowID, body *ActionBody) (*models.Instance, error) {
		return h.service.Approve(ctx, actor, body.toAction(workflowID))
	})
}

// HandleReject handles POST /workflows/{id}/reject requests.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	runAction(h, w, r, "reject", func(ctx context.Context, actor id.Actor, workflowID id.WorkflowID, body *RejectRequest) (*models.Instance, error) {
		return h.service.Reject(ctx, actor, service.RejectRequest{
			ActionRequest:    body.toAction(workflowID),
			ReturnToPrevious: body.ReturnToPrevious,
			Final:            body.Final,
		})
	})
}

// HandleResubmit handles POST /workflows/{id}/resubmit requests.
func (h *Handler) HandleResubmit(w http.ResponseWriter, r *http.Request) {
	runAction(h, w, r, "resubmit", func(ctx context.Context, actor id.Actor, workflowID id.WorkflowID, body *ActionBody) (*models.Instance, error) {
		return h.service.Resubmit(ctx, actor, body.toAction(workflowID))
	})
}

// HandlePullBack handles POST /workflows/{id}/pull-back requests.
func (h *Handler) HandlePullBack(w http.ResponseWriter, r *http.Request) {
	runAction(h, w, r, "pull_back", func(ctx context.Context, actor id.Actor, workflowID id.WorkflowID, body *PullBackRequest) (*models.Instance, error) {
		return h.service.PullBack(ctx, actor, service.PullBackRequest{
			ActionRequest: body.toAction(workflowID),
			ExpectedIndex: body.ExpectedLevelIndex,
		})
	})
}

// HandleTransfer handles POST /workflows/{id}/transfer requests.
func (h *Handler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	runAction(h, w, r, "transfer", func(ctx context.Context, actor id.Actor, workflowID id.WorkflowID, body *TransferRequest) (*models.Instance, error) {
		return h.service.Transfer(ctx, actor, service.TransferRequest{
			ActionRequest: body.toAction(workflowID),
			NewBranchID:   body.parsedBranch,
		})
	})
}

// HandlePullToMyBranch handles POST /workflows/{id}/pull requests.
func (h *Handler) HandlePullToMyBranch(w http.ResponseWriter, r *http.Request) {
	runAction(h, w, r, "pull_to_branch", func(ctx context.Context, actor id.Actor, workflowID id.WorkflowID, body *ActionBody) (*models.Instance, error) {
		return h.service.PullToMyBranch(ctx, actor, body.toAction(workflowID))
	})
}

// HandleUpdateDetails handles PATCH /workflows/{id}/details requests.
func (h *Handler) HandleUpdateDetails(w http.ResponseWriter, r *http.Request) {
	runAction(h, w, r, "update_details", func(ctx context.Context, actor id.Actor, workflowID id.WorkflowID, body *UpdateDetailsRequest) (*models.Instance, error) {
		return h.service.UpdateDetails(ctx, actor, service.UpdateDetailsRequest{
			ActionRequest: body.toAction(workflowID),
			Patch:         body.Changes,
		})
	})
}

// HandleListPending handles GET /workflows/pending requests.
func (h *Handler) HandleListPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, ctx)
	if !ok {
		return
	}
	branches, err := parseBranches(r.URL.Query()["branch_id"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	items, err := h.service.ListPending(ctx, actor, branches)
	if err != nil {
		h.logFailure(ctx, "list_pending", actor, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPendingResponse(items))
}

// HandleGetDetail handles GET /workflows/{id} requests.
func (h *Handler) HandleGetDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, ctx)
	if !ok {
		return
	}
	workflowID, err := id.ParseWorkflowID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	detail, err := h.service.GetDetail(ctx, actor, workflowID)
	if err != nil {
		h.logFailure(ctx, "get_detail", actor, err, "workflow_id", workflowID)
		httputil.WriteError(w, err)
		return
	}
	setETag(w, detail.Instance.Version)
	httputil.WriteJSON(w, http.StatusOK, detail)
}

// HandleSearch handles GET /workflows/search requests.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, ctx)
	if !ok {
		return
	}
	query := r.URL.Query()
	branches, err := parseBranches(query["branch_id"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	statuses, err := parseStatuses(query["status"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	results, err := h.service.Search(ctx, actor, service.SearchQuery{
		Text:     query.Get("q"),
		Branches: branches,
		Statuses: statuses,
	})
	if err != nil {
		h.logFailure(ctx, "search", actor, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSearchResponse(results))
}

// runAction decodes the body of a transition on /workflows/{id}, invokes call
// and writes the updated workflow.
func runAction[T any, PT interface {
	*T
	httputil.Validatable
	applyIfMatch(header string) error
}](h *Handler, w http.ResponseWriter, r *http.Request, op string, call func(context.Context, id.Actor, id.WorkflowID, *T) (*models.Instance, error)) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	actor, ok := requireActor(w, ctx)
	if !ok {
		return
	}
	workflowID, err := id.ParseWorkflowID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	body, ok := httputil.DecodeAndPrepare[T, PT](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := PT(body).applyIfMatch(r.Header.Get("If-Match")); err != nil {
		httputil.WriteError(w, err)
		return
	}

	inst, err := call(ctx, actor, workflowID, body)
	if err != nil {
		h.logFailure(ctx, op, actor, err, "workflow_id", workflowID)
		httputil.WriteError(w, err)
		return
	}

	h.logger.DebugContext(ctx, "workflow request served",
		"request_id", requestID,
		"operation", op,
		"workflow_id", workflowID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	setETag(w, inst.Version)
	httputil.WriteJSON(w, http.StatusOK, FromInstance(inst))
}

// setETag exposes the version so clients can echo it in If-Match.
func setETag(w http.ResponseWriter, version int64) {
	w.Header().Set("ETag", `"`+strconv.FormatInt(version, 10)+`"`)
}

func requireActor(w http.ResponseWriter, ctx context.Context) (id.Actor, bool) {
	actor, ok := requestcontext.Actor(ctx)
	if !ok || actor.UserID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return id.Actor{}, false
	}
	return actor, true
}

// logFailure logs client errors at debug; the engine already logged anything
// server side.
func (h *Handler) logFailure(ctx context.Context, op string, actor id.Actor, err error, attrs ...any) {
	level := slog.LevelDebug
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		level = slog.LevelWarn
	}
	args := append([]any{
		"request_id", requestcontext.RequestID(ctx),
		"operation", op,
		"user_id", actor.UserID,
		"error", err,
	}, attrs...)
	h.logger.Log(ctx, level, "workflow request failed", args...)
}

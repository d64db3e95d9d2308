// Package service is the approval workflow engine. Every mutating operation
// loads the instance, applies a transition to a copy, authorizes the actor
// against the pre-transition state and commits the copy together with one
// approval log entry as a single compare-and-swap on the instance version.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"kycflow/internal/notification"
	orgmodels "kycflow/internal/org/models"
	"kycflow/internal/workflow/chain"
	"kycflow/internal/workflow/metrics"
	"kycflow/internal/workflow/models"
	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	"kycflow/pkg/platform/sentinel"
	"kycflow/pkg/requestcontext"
)

// applicantRole is recorded in the approval log for actors acting as the
// applicant rather than as staff.
const applicantRole = "Applicant"

type Engine struct {
	store     Store
	snapshots SnapshotProvider
	records   Records
	builder   *chain.Builder
	notifier  Notifier
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics enables Prometheus instrumentation. Without it the engine
// records nothing.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithNotifier registers the sink for committed transitions.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

func New(store Store, snapshots SnapshotProvider, records Records, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		snapshots: snapshots,
		records:   records,
		builder:   chain.NewBuilder(),
		notifier:  noopNotifier{},
		logger:    slog.New(slog.DiscardHandler),
		tracer:    otel.Tracer("kycflow/workflow"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, notification.Notification) {}

// transition mutates a copy of the loaded instance and describes the log
// entry for it. The engine stamps identity, timing and client metadata.
type transition func(ctx context.Context, inst *models.Instance) (models.LogEntry, error)

// mutate runs one optimistic read-modify-write cycle. It never retries: a
// lost race surfaces as CodeConflict carrying the state the caller lost to.
func (e *Engine) mutate(ctx context.Context, op string, actor id.Actor, req ActionRequest, fn transition) (_ *models.Instance, err error) {
	ctx, span := e.tracer.Start(ctx, "workflow."+op, trace.WithAttributes(
		attribute.String("workflow.id", req.WorkflowID.String()),
		attribute.String("actor.user_id", actor.UserID.String()),
	))
	start := time.Now()
	defer func() { e.finish(ctx, span, op, start, err) }()

	current, err := e.load(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}
	if req.ExpectedVersion != nil && *req.ExpectedVersion != current.Version {
		return nil, conflictWith(current, "workflow changed since it was read").
			With("expected_version", *req.ExpectedVersion)
	}

	next := current.Clone()
	entry, err := fn(ctx, next)
	if err != nil {
		return nil, err
	}
	if err := next.CheckInvariants(); err != nil {
		return nil, err
	}
	e.stamp(ctx, actor, next, &entry)

	if err := e.store.Commit(ctx, next, current.Version, entry); err != nil {
		return nil, e.commitErr(ctx, current, err)
	}
	entry.Sequence = next.Version
	e.committed(ctx, op, actor, next, entry)
	return next, nil
}

func (e *Engine) load(ctx context.Context, workflowID id.WorkflowID) (*models.Instance, error) {
	inst, err := e.store.FindByID(ctx, workflowID)
	if err != nil {
		return nil, storeErr(err, "workflow not found", "workflow_id", workflowID)
	}
	return inst, nil
}

func (e *Engine) snapshot(ctx context.Context) (*orgmodels.Snapshot, error) {
	snap, err := e.snapshots.Snapshot(ctx)
	if err != nil {
		if _, ok := dErrors.As(err); ok {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "organization configuration unavailable")
	}
	return snap, nil
}

func (e *Engine) stamp(ctx context.Context, actor id.Actor, inst *models.Instance, entry *models.LogEntry) {
	entry.ID = id.NewLogEntryID()
	entry.WorkflowID = inst.ID
	entry.ActorUserID = actor.UserID
	entry.StatusAfter = inst.Status
	entry.ClientIP = requestcontext.ClientIP(ctx)
	entry.UserAgent = requestcontext.UserAgent(ctx)
	entry.Timestamp = inst.LastUpdatedAt
}

// commitErr maps a failed compare-and-swap. On conflict the latest state is
// re-read so the caller learns what it lost to.
func (e *Engine) commitErr(ctx context.Context, stale *models.Instance, err error) error {
	switch {
	case errors.Is(err, sentinel.ErrConflict):
		latest, loadErr := e.store.FindByID(ctx, stale.ID)
		if loadErr != nil {
			return dErrors.New(dErrors.CodeConflict, "workflow was modified concurrently").
				With("workflow_id", stale.ID, "expected_version", stale.Version)
		}
		return conflictWith(latest, "workflow was modified concurrently").
			With("expected_version", stale.Version)
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "workflow not found").With("workflow_id", stale.ID)
	default:
		return storeErr(err, "workflow not found", "workflow_id", stale.ID)
	}
}

func (e *Engine) committed(ctx context.Context, op string, actor id.Actor, inst *models.Instance, entry models.LogEntry) {
	if e.metrics != nil {
		e.metrics.IncrementTransition(string(entry.Action))
	}
	role, _ := inst.PendingRole()
	e.logger.InfoContext(ctx, "workflow_"+op,
		"request_id", requestcontext.RequestID(ctx),
		"workflow_id", inst.ID,
		"actor_user_id", actor.UserID,
		"actor_role", entry.ActorRoleName,
		"action", entry.Action,
		"status", inst.Status,
		"pending_level_index", inst.PendingLevelIndex,
		"pending_role", role,
		"version", inst.Version,
	)
	e.notifier.Notify(ctx, notification.Notification{
		WorkflowID:  inst.ID,
		Action:      string(entry.Action),
		ActorUserID: actor.UserID,
		BranchID:    inst.BranchID,
		Status:      string(inst.Status),
		PendingRole: role,
		Version:     inst.Version,
		OccurredAt:  entry.Timestamp,
		RequestID:   requestcontext.RequestID(ctx),
	})
}

func (e *Engine) finish(ctx context.Context, span trace.Span, op string, start time.Time, err error) {
	defer span.End()
	if e.metrics != nil {
		e.metrics.ObserveOperation(op, start)
	}
	if err == nil {
		return
	}
	code := dErrors.CodeOf(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, string(code))
	if e.metrics != nil {
		e.metrics.IncrementFailure(op, string(code))
		if code == dErrors.CodeConflict {
			e.metrics.IncrementConflict(op)
		}
	}
	level := slog.LevelInfo
	if code == dErrors.CodeInternal || code == dErrors.CodeInvariantViolation || code == dErrors.CodeUnavailable {
		level = slog.LevelError
	}
	e.logger.Log(ctx, level, "workflow_"+op+"_failed",
		"request_id", requestcontext.RequestID(ctx),
		"code", code,
		"error", err,
	)
}

// conflictWith builds a conflict describing the instance's current state.
func conflictWith(current *models.Instance, msg string) *dErrors.Error {
	return dErrors.New(dErrors.CodeConflict, msg).With(
		"workflow_id", current.ID,
		"actual_version", current.Version,
		"pending_level_index", current.PendingLevelIndex,
		"status", current.Status,
	)
}

// storeErr translates store sentinels into domain errors. Coded errors pass
// through untouched.
func storeErr(err error, notFoundMsg string, kv ...any) error {
	if _, ok := dErrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, notFoundMsg).With(kv...)
	case errors.Is(err, sentinel.ErrConflict), errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.Wrap(err, dErrors.CodeConflict, "workflow already exists").With(kv...)
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "workflow store unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "workflow store timed out")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "workflow store failure")
	}
}

package service

import (
	"context"

	"kycflow/internal/kyc"
	"kycflow/internal/notification"
	orgmodels "kycflow/internal/org/models"
	"kycflow/internal/workflow/models"
	id "kycflow/pkg/domain"
)

// Store persists workflow instances and the approval log. Create and Commit
// write the instance and one log entry atomically; Commit is a compare-and-swap
// on Version and returns sentinel.ErrConflict when it loses.
type Store interface {
	Create(ctx context.Context, inst *models.Instance, entry models.LogEntry) error
	FindByID(ctx context.Context, workflowID id.WorkflowID) (*models.Instance, error)
	Commit(ctx context.Context, inst *models.Instance, expectedVersion int64, entry models.LogEntry) error
	ListLog(ctx context.Context, workflowID id.WorkflowID) ([]models.LogEntry, error)
	ListPending(ctx context.Context, filter models.PendingFilter) ([]*models.Instance, error)
	ListByRecords(ctx context.Context, recordIDs []id.KycRecordID) ([]*models.Instance, error)
}

// SnapshotProvider returns the current organization configuration.
type SnapshotProvider interface {
	Snapshot(ctx context.Context) (*orgmodels.Snapshot, error)
}

// Records is the data subsystem owning applicant data.
type Records interface {
	GetKycRecord(ctx context.Context, recordID id.KycRecordID) (*kyc.Record, error)
	ApplyPatch(ctx context.Context, recordID id.KycRecordID, patch kyc.Patch) error
	SearchRecords(ctx context.Context, query string) ([]kyc.Record, error)
}

// Notifier receives committed transitions. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, n notification.Notification)
}

// Package notification tells interested parties about committed workflow
// transitions. Delivery is asynchronous and best-effort: a slow or failing
// sink never blocks or fails the transition that produced the event.
package notification

import (
	"context"
	"time"

	id "kycflow/pkg/domain"
)

// Notification describes one committed transition.
type Notification struct {
	WorkflowID  id.WorkflowID `json:"workflow_id"`
	Action      string        `json:"action"`
	ActorUserID id.UserID     `json:"actor_user_id"`
	BranchID    id.BranchID   `json:"branch_id"`
	Status      string        `json:"status"`
	PendingRole string        `json:"pending_role,omitempty"`
	Version     int64         `json:"version"`
	OccurredAt  time.Time     `json:"occurred_at"`
	RequestID   string        `json:"request_id,omitempty"`
}

// Sink delivers a batch of notifications.
type Sink interface {
	Send(ctx context.Context, batch []Notification) error
}

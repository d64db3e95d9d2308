package notification

import (
	"context"
	"log/slog"
)

// LogSink writes notifications as structured log lines. Used when no broker
// is configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Send(ctx context.Context, batch []Notification) error {
	for _, n := range batch {
		s.logger.InfoContext(ctx, "workflow_notification",
			"workflow_id", n.WorkflowID,
			"action", n.Action,
			"actor_user_id", n.ActorUserID,
			"branch_id", n.BranchID,
			"status", n.Status,
			"pending_role", n.PendingRole,
			"version", n.Version,
			"request_id", n.RequestID,
		)
	}
	return nil
}

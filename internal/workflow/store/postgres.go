package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	orgmodels "kycflow/internal/org/models"
	"kycflow/internal/platform/postgres"
	"kycflow/internal/workflow/models"
	id "kycflow/pkg/domain"
	"kycflow/pkg/platform/sentinel"
	"kycflow/pkg/platform/tx"
)

const instanceColumns = `id, kyc_record_id, applicant_user_id, branch_id, chain, pending_level_index, status, version, created_at, last_updated_at`

// PostgresStore persists workflows and the approval log. Every mutation is a
// version compare-and-swap on workflow_instances plus a log insert in the
// same transaction.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, inst *models.Instance, entry models.LogEntry) error {
	if inst == nil {
		return fmt.Errorf("workflow instance is required")
	}
	chain, err := json.Marshal(inst.Chain)
	if err != nil {
		return fmt.Errorf("marshal chain: %w", err)
	}
	return postgres.RunInTx(ctx, s.db, func(ctx context.Context) error {
		exec := tx.ExecutorFrom(ctx, s.db)
		_, err := exec.ExecContext(ctx, `
			INSERT INTO workflow_instances (`+instanceColumns+`, pending_role)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8, $9, $10)`,
			inst.ID, inst.KycRecordID, inst.ApplicantUserID, inst.BranchID, chain,
			inst.PendingLevelIndex, string(inst.Status), inst.CreatedAt, inst.LastUpdatedAt, pendingRole(inst),
		)
		if err != nil {
			if postgres.IsUniqueViolation(err, "") {
				return fmt.Errorf("workflow %s already exists: %w", inst.ID, sentinel.ErrConflict)
			}
			return fmt.Errorf("insert workflow: %w", err)
		}
		entry.WorkflowID = inst.ID
		entry.Sequence = 1
		if err := insertLog(ctx, exec, entry); err != nil {
			return err
		}
		inst.Version = 1
		return nil
	})
}

func (s *PostgresStore) FindByID(ctx context.Context, workflowID id.WorkflowID) (*models.Instance, error) {
	row := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM workflow_instances WHERE id = $1`, workflowID)
	inst, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find workflow: %w", err)
	}
	return inst, nil
}

// Commit writes inst only if the stored version still equals
// expectedVersion. A lost race yields sentinel.ErrConflict and nothing is
// written.
func (s *PostgresStore) Commit(ctx context.Context, inst *models.Instance, expectedVersion int64, entry models.LogEntry) error {
	if inst == nil {
		return fmt.Errorf("workflow instance is required")
	}
	chain, err := json.Marshal(inst.Chain)
	if err != nil {
		return fmt.Errorf("marshal chain: %w", err)
	}
	next := expectedVersion + 1
	err = postgres.RunInTx(ctx, s.db, func(ctx context.Context) error {
		exec := tx.ExecutorFrom(ctx, s.db)
		res, err := exec.ExecContext(ctx, `
			UPDATE workflow_instances
			SET branch_id = $3,
			    chain = $4,
			    pending_level_index = $5,
			    pending_role = $6,
			    status = $7,
			    version = $8,
			    last_updated_at = $9
			WHERE id = $1 AND version = $2`,
			inst.ID, expectedVersion, inst.BranchID, chain, inst.PendingLevelIndex,
			pendingRole(inst), string(inst.Status), next, inst.LastUpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update workflow: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update workflow rows affected: %w", err)
		}
		if rows == 0 {
			var exists bool
			if err := exec.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM workflow_instances WHERE id = $1)`, inst.ID).Scan(&exists); err != nil {
				return fmt.Errorf("check workflow exists: %w", err)
			}
			if !exists {
				return sentinel.ErrNotFound
			}
			return sentinel.ErrConflict
		}
		entry.WorkflowID = inst.ID
		entry.Sequence = next
		return insertLog(ctx, exec, entry)
	})
	if err != nil {
		return err
	}
	inst.Version = next
	return nil
}

func insertLog(ctx context.Context, exec tx.Executor, e models.LogEntry) error {
	_, err := exec.ExecContext(ctx, `
		INSERT INTO approval_log (
			id, workflow_id, sequence, actor_user_id, actor_role_name, action, remarks,
			level_index_at_action, status_after, from_branch_id, to_branch_id,
			client_ip, user_agent, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		e.ID, e.WorkflowID, e.Sequence, e.ActorUserID, e.ActorRoleName, string(e.Action), e.Remarks,
		e.LevelIndexAtAction, string(e.StatusAfter), nullableBranch(e.FromBranchID), nullableBranch(e.ToBranchID),
		e.ClientIP, e.UserAgent, e.Timestamp,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err, "approval_log_workflow_sequence_key") {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert approval log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListLog(ctx context.Context, workflowID id.WorkflowID) ([]models.LogEntry, error) {
	exec := tx.ExecutorFrom(ctx, s.db)
	var exists bool
	if err := exec.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM workflow_instances WHERE id = $1)`, workflowID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check workflow exists: %w", err)
	}
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	rows, err := exec.QueryContext(ctx, `
		SELECT id, workflow_id, sequence, actor_user_id, actor_role_name, action, remarks,
		       level_index_at_action, status_after, from_branch_id, to_branch_id,
		       client_ip, user_agent, created_at
		FROM approval_log
		WHERE workflow_id = $1
		ORDER BY sequence`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list approval log: %w", err)
	}
	defer rows.Close()

	var out []models.LogEntry
	for rows.Next() {
		var (
			e              models.LogEntry
			action, status string
			from, to       sql.Null[id.BranchID]
		)
		if err := rows.Scan(&e.ID, &e.WorkflowID, &e.Sequence, &e.ActorUserID, &e.ActorRoleName, &action, &e.Remarks,
			&e.LevelIndexAtAction, &status, &from, &to, &e.ClientIP, &e.UserAgent, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan approval log: %w", err)
		}
		if e.Action, err = models.ParseAction(action); err != nil {
			return nil, err
		}
		if e.StatusAfter, err = models.ParseStatus(status); err != nil {
			return nil, err
		}
		if from.Valid {
			e.FromBranchID = &from.V
		}
		if to.Valid {
			e.ToBranchID = &to.V
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate approval log: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListPending(ctx context.Context, filter models.PendingFilter) ([]*models.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE status = $1`
	args := []any{string(models.StatusInReview)}
	if filter.Roles != nil {
		args = append(args, pq.Array(filter.Roles))
		query += fmt.Sprintf(" AND pending_role = ANY($%d)", len(args))
	}
	if filter.Branches != nil {
		args = append(args, pq.Array(branchStrings(filter.Branches)))
		query += fmt.Sprintf(" AND branch_id::text = ANY($%d)", len(args))
	}
	query += " ORDER BY last_updated_at, id"
	return s.queryInstances(ctx, query, args...)
}

func (s *PostgresStore) ListByRecords(ctx context.Context, recordIDs []id.KycRecordID) ([]*models.Instance, error) {
	if len(recordIDs) == 0 {
		return nil, nil
	}
	ids := make([]string, len(recordIDs))
	for i, r := range recordIDs {
		ids[i] = r.String()
	}
	return s.queryInstances(ctx,
		`SELECT `+instanceColumns+` FROM workflow_instances
		 WHERE kyc_record_id::text = ANY($1)
		 ORDER BY last_updated_at, id`, pq.Array(ids))
}

func (s *PostgresStore) CountByBranch(ctx context.Context, branchID id.BranchID) (int, error) {
	var n int
	err := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM workflow_instances WHERE branch_id = $1`, branchID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count workflows by branch: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) queryInstances(ctx context.Context, query string, args ...any) ([]*models.Instance, error) {
	rows, err := tx.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query workflows: %w", err)
	}
	defer rows.Close()
	var out []*models.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflows: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(row rowScanner) (*models.Instance, error) {
	var (
		inst   models.Instance
		chain  []byte
		status string
	)
	if err := row.Scan(&inst.ID, &inst.KycRecordID, &inst.ApplicantUserID, &inst.BranchID, &chain,
		&inst.PendingLevelIndex, &status, &inst.Version, &inst.CreatedAt, &inst.LastUpdatedAt); err != nil {
		return nil, err
	}
	var levels []orgmodels.RoleLevel
	if err := json.Unmarshal(chain, &levels); err != nil {
		return nil, fmt.Errorf("unmarshal chain: %w", err)
	}
	inst.Chain = levels
	st, err := models.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	inst.Status = st
	if err := inst.CheckInvariants(); err != nil {
		return nil, err
	}
	return &inst, nil
}

func pendingRole(inst *models.Instance) sql.NullString {
	role, ok := inst.PendingRole()
	return sql.NullString{String: role, Valid: ok}
}

func nullableBranch(b *id.BranchID) any {
	if b == nil {
		return nil
	}
	return *b
}

func branchStrings(ids []id.BranchID) []string {
	out := make([]string, len(ids))
	for i, b := range ids {
		out[i] = b.String()
	}
	return out
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"kycflow/internal/org/models"
	"kycflow/internal/platform/postgres"
	id "kycflow/pkg/domain"
	"kycflow/pkg/platform/sentinel"
	"kycflow/pkg/platform/tx"
)

// PostgresStore persists organization configuration in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) exec(ctx context.Context) tx.Executor {
	return tx.ExecutorFrom(ctx, s.db)
}

func (s *PostgresStore) CreateRole(ctx context.Context, role *models.Role) error {
	_, err := s.exec(ctx).ExecContext(ctx, `
		INSERT INTO org_roles (name, role_order, global, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		role.Name, role.Order, role.Global, role.CreatedAt, role.UpdatedAt)
	if err != nil {
		return roleWriteErr(err, role)
	}
	return nil
}

func (s *PostgresStore) FindRole(ctx context.Context, name string) (*models.Role, error) {
	var r models.Role
	err := s.exec(ctx).QueryRowContext(ctx, `
		SELECT name, role_order, global, created_at, updated_at FROM org_roles WHERE name = $1`, name).
		Scan(&r.Name, &r.Order, &r.Global, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find role: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) UpdateRole(ctx context.Context, role *models.Role) error {
	res, err := s.exec(ctx).ExecContext(ctx, `
		UPDATE org_roles SET role_order = $2, global = $3, updated_at = $4 WHERE name = $1`,
		role.Name, role.Order, role.Global, role.UpdatedAt)
	if err != nil {
		return roleWriteErr(err, role)
	}
	return requireRow(res, "update role")
}

// DeleteRole relies on ON DELETE CASCADE to drop staffing rows.
func (s *PostgresStore) DeleteRole(ctx context.Context, name string) error {
	res, err := s.exec(ctx).ExecContext(ctx, `DELETE FROM org_roles WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	return requireRow(res, "delete role")
}

func (s *PostgresStore) ListRoles(ctx context.Context) ([]models.Role, error) {
	rows, err := s.exec(ctx).QueryContext(ctx, `
		SELECT name, role_order, global, created_at, updated_at FROM org_roles ORDER BY role_order`)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()
	var out []models.Role
	for rows.Next() {
		var r models.Role
		if err := rows.Scan(&r.Name, &r.Order, &r.Global, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateBranch(ctx context.Context, b *models.Branch) error {
	_, err := s.exec(ctx).ExecContext(ctx, `
		INSERT INTO org_branches (id, name, code, parent_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		b.ID, b.Name, b.Code, nullableBranch(b.ParentID), b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return branchWriteErr(err, b)
	}
	return nil
}

func (s *PostgresStore) UpdateBranch(ctx context.Context, b *models.Branch) error {
	res, err := s.exec(ctx).ExecContext(ctx, `
		UPDATE org_branches SET name = $2, code = $3, parent_id = $4, updated_at = $5 WHERE id = $1`,
		b.ID, b.Name, b.Code, nullableBranch(b.ParentID), b.UpdatedAt)
	if err != nil {
		return branchWriteErr(err, b)
	}
	return requireRow(res, "update branch")
}

func (s *PostgresStore) FindBranch(ctx context.Context, branchID id.BranchID) (*models.Branch, error) {
	b, err := scanBranch(s.exec(ctx).QueryRowContext(ctx, `
		SELECT id, name, code, parent_id, created_at, updated_at FROM org_branches WHERE id = $1`, branchID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find branch: %w", err)
	}
	return b, nil
}

func (s *PostgresStore) ListBranches(ctx context.Context) ([]models.Branch, error) {
	rows, err := s.exec(ctx).QueryContext(ctx, `
		SELECT id, name, code, parent_id, created_at, updated_at FROM org_branches ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	defer rows.Close()
	var out []models.Branch
	for rows.Next() {
		b, err := scanBranch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan branch: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AddStaffing(ctx context.Context, st models.Staffing) error {
	_, err := s.exec(ctx).ExecContext(ctx, `
		INSERT INTO org_staffing (branch_id, role_name) VALUES ($1, $2)
		ON CONFLICT (branch_id, role_name) DO NOTHING`, st.BranchID, st.RoleName)
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return fmt.Errorf("staffing %s/%s: %w", st.BranchID, st.RoleName, sentinel.ErrNotFound)
		}
		return fmt.Errorf("add staffing: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveStaffing(ctx context.Context, st models.Staffing) error {
	res, err := s.exec(ctx).ExecContext(ctx, `
		DELETE FROM org_staffing WHERE branch_id = $1 AND role_name = $2`, st.BranchID, st.RoleName)
	if err != nil {
		return fmt.Errorf("remove staffing: %w", err)
	}
	return requireRow(res, "remove staffing")
}

func (s *PostgresStore) ListStaffing(ctx context.Context) ([]models.Staffing, error) {
	rows, err := s.exec(ctx).QueryContext(ctx, `
		SELECT branch_id, role_name FROM org_staffing ORDER BY branch_id, role_name`)
	if err != nil {
		return nil, fmt.Errorf("list staffing: %w", err)
	}
	defer rows.Close()
	var out []models.Staffing
	for rows.Next() {
		var st models.Staffing
		if err := rows.Scan(&st.BranchID, &st.RoleName); err != nil {
			return nil, fmt.Errorf("scan staffing: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBranch(row rowScanner) (*models.Branch, error) {
	var (
		b      models.Branch
		parent sql.Null[id.BranchID]
	)
	if err := row.Scan(&b.ID, &b.Name, &b.Code, &parent, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	if parent.Valid {
		b.ParentID = &parent.V
	}
	return &b, nil
}

func requireRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func roleWriteErr(err error, role *models.Role) error {
	switch {
	case postgres.IsUniqueViolation(err, "org_roles_order_key"):
		return fmt.Errorf("role order %d: %w", role.Order, sentinel.ErrConflict)
	case postgres.IsUniqueViolation(err, ""):
		return fmt.Errorf("role name %q: %w", role.Name, sentinel.ErrAlreadyUsed)
	}
	return fmt.Errorf("write role: %w", err)
}

func branchWriteErr(err error, b *models.Branch) error {
	switch {
	case postgres.IsUniqueViolation(err, "org_branches_code_key"):
		return fmt.Errorf("branch code %q: %w", b.Code, sentinel.ErrAlreadyUsed)
	case postgres.IsUniqueViolation(err, ""):
		return fmt.Errorf("branch %s: %w", b.ID, sentinel.ErrConflict)
	case postgres.IsForeignKeyViolation(err):
		return fmt.Errorf("parent branch: %w", sentinel.ErrNotFound)
	}
	return fmt.Errorf("write branch: %w", err)
}

func nullableBranch(b *id.BranchID) any {
	if b == nil {
		return nil
	}
	return *b
}

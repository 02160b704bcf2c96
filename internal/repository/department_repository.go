package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/wildpark/pointwatch-api/internal/models"
)

const departmentColumns = `id, code, name, head_id, required_points, midyear_points, is_deleted, created_at, updated_at`

// DepartmentRepository handles persistence for departments and their quotas.
type DepartmentRepository struct {
	db *sqlx.DB
}

// NewDepartmentRepository instantiates a department repository.
func NewDepartmentRepository(db *sqlx.DB) *DepartmentRepository {
	return &DepartmentRepository{db: db}
}

// FindByID loads a department by identifier.
func (r *DepartmentRepository) FindByID(ctx context.Context, id string) (*models.Department, error) {
	query := fmt.Sprintf(`SELECT %s FROM departments WHERE id = $1 AND is_deleted = FALSE LIMIT 1`, departmentColumns)
	var dept models.Department
	if err := r.db.GetContext(ctx, &dept, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find department by id: %w", err)
	}
	return &dept, nil
}

// List returns all non-deleted departments ordered by code.
func (r *DepartmentRepository) List(ctx context.Context) ([]models.Department, error) {
	query := fmt.Sprintf(`SELECT %s FROM departments WHERE is_deleted = FALSE ORDER BY code ASC`, departmentColumns)
	var depts []models.Department
	if err := r.db.SelectContext(ctx, &depts, query); err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return depts, nil
}

// ListMembers returns the active users assigned to a department.
func (r *DepartmentRepository) ListMembers(ctx context.Context, id string) ([]models.User, error) {
	const query = `SELECT id, employee_id, email, password_hash, first_name, last_name, department_id, access_level, point_balance, is_deleted, created_at, updated_at
		FROM users WHERE department_id = $1 AND is_deleted = FALSE ORDER BY last_name ASC, first_name ASC`
	var members []models.User
	if err := r.db.SelectContext(ctx, &members, query, id); err != nil {
		return nil, fmt.Errorf("list department members: %w", err)
	}
	return members, nil
}

// ExistsByCode checks code uniqueness, optionally excluding one row.
func (r *DepartmentRepository) ExistsByCode(ctx context.Context, code, excludeID string) (bool, error) {
	base := `SELECT 1 FROM departments WHERE code = $1 AND is_deleted = FALSE`
	args := []interface{}{code}
	if excludeID != "" {
		base += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, base+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check department code: %w", err)
	}
	return true, nil
}

// Create inserts a new department record.
func (r *DepartmentRepository) Create(ctx context.Context, dept *models.Department) error {
	if dept.ID == "" {
		dept.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if dept.CreatedAt.IsZero() {
		dept.CreatedAt = now
	}
	dept.UpdatedAt = now

	const query = `INSERT INTO departments (id, code, name, head_id, required_points, midyear_points, is_deleted, created_at, updated_at)
		VALUES (:id, :code, :name, :head_id, :required_points, :midyear_points, :is_deleted, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, dept); err != nil {
		return fmt.Errorf("create department: %w", err)
	}
	return nil
}

// Update modifies an existing department.
func (r *DepartmentRepository) Update(ctx context.Context, dept *models.Department) error {
	dept.UpdatedAt = time.Now().UTC()
	const query = `UPDATE departments SET code = :code, name = :name, head_id = :head_id, required_points = :required_points, midyear_points = :midyear_points, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, dept); err != nil {
		return fmt.Errorf("update department: %w", err)
	}
	return nil
}

// Delete soft-deletes a department.
func (r *DepartmentRepository) Delete(ctx context.Context, id string) error {
	const query = `UPDATE departments SET is_deleted = TRUE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("delete department: %w", err)
	}
	return nil
}

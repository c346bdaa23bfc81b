package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"whatsapp-router/internal/models"
)

type SQLAdminRepository struct {
	db *sql.DB
}

func NewSQLAdminRepository(db *sql.DB) *SQLAdminRepository {
	return &SQLAdminRepository{db: db}
}

func (r *SQLAdminRepository) GetByID(ctx context.Context, id int) (*models.Admin, error) {
	admin := &models.Admin{}
	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, all_departments FROM admins WHERE id = ?", id,
	).Scan(&admin.ID, &admin.Name, &admin.AllDepartments)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error getting admin: %w", err)
	}

	departments, err := r.departmentIDs(ctx, []int{admin.ID})
	if err != nil {
		return nil, err
	}
	admin.DepartmentIDs = departments[admin.ID]
	return admin, nil
}

// ListByDepartment returns admins linked to the department plus those with
// the all-departments override.
func (r *SQLAdminRepository) ListByDepartment(ctx context.Context, departmentID int) ([]*models.Admin, error) {
	query := `
		SELECT a.id, a.name, a.all_departments
		FROM admins a
		WHERE a.all_departments = 1
		   OR EXISTS (
			SELECT 1 FROM admin_departments ad
			WHERE ad.admin_id = a.id AND ad.department_id = ?
		)
		ORDER BY a.id`

	rows, err := r.db.QueryContext(ctx, query, departmentID)
	if err != nil {
		return nil, fmt.Errorf("error querying admins: %w", err)
	}
	defer rows.Close()

	var admins []*models.Admin
	var ids []int
	for rows.Next() {
		admin := &models.Admin{}
		if err := rows.Scan(&admin.ID, &admin.Name, &admin.AllDepartments); err != nil {
			return nil, fmt.Errorf("error scanning admin: %w", err)
		}
		admins = append(admins, admin)
		ids = append(ids, admin.ID)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating admins: %w", err)
	}

	departments, err := r.departmentIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, admin := range admins {
		admin.DepartmentIDs = departments[admin.ID]
	}
	return admins, nil
}

func (r *SQLAdminRepository) departmentIDs(ctx context.Context, adminIDs []int) (map[int][]int, error) {
	result := make(map[int][]int)
	if len(adminIDs) == 0 {
		return result, nil
	}

	query := "SELECT admin_id, department_id FROM admin_departments WHERE admin_id IN (?" +
		strings.Repeat(",?", len(adminIDs)-1) + ") ORDER BY department_id"
	args := make([]interface{}, len(adminIDs))
	for i, id := range adminIDs {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying admin departments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var adminID, departmentID int
		if err := rows.Scan(&adminID, &departmentID); err != nil {
			return nil, fmt.Errorf("error scanning admin department: %w", err)
		}
		result[adminID] = append(result[adminID], departmentID)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating admin departments: %w", err)
	}
	return result, nil
}

type SQLDepartmentRepository struct {
	db *sql.DB
}

func NewSQLDepartmentRepository(db *sql.DB) *SQLDepartmentRepository {
	return &SQLDepartmentRepository{db: db}
}

func (r *SQLDepartmentRepository) List(ctx context.Context) ([]*models.Department, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, menu_key, position FROM departments ORDER BY position, id")
	if err != nil {
		return nil, fmt.Errorf("error querying departments: %w", err)
	}
	defer rows.Close()

	var departments []*models.Department
	for rows.Next() {
		d := &models.Department{}
		if err := rows.Scan(&d.ID, &d.Name, &d.MenuKey, &d.Order); err != nil {
			return nil, fmt.Errorf("error scanning department: %w", err)
		}
		departments = append(departments, d)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating departments: %w", err)
	}
	return departments, nil
}

func (r *SQLDepartmentRepository) GetByID(ctx context.Context, id int) (*models.Department, error) {
	d := &models.Department{}
	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, menu_key, position FROM departments WHERE id = ?", id,
	).Scan(&d.ID, &d.Name, &d.MenuKey, &d.Order)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error getting department: %w", err)
	}
	return d, nil
}

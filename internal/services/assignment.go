package services

import (
	"context"

	"whatsapp-router/internal/models"
)

// AssignmentResolver maps departments to the operators entitled to them.
type AssignmentResolver struct {
	admins models.AdminRepository
}

func NewAssignmentResolver(admins models.AdminRepository) *AssignmentResolver {
	return &AssignmentResolver{admins: admins}
}

// ResolveForDepartment returns the ids of every operator entitled to act on
// the department: its members and the all-departments operators.
func (r *AssignmentResolver) ResolveForDepartment(ctx context.Context, departmentID int) ([]int, error) {
	admins, err := r.admins.ListByDepartment(ctx, departmentID)
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(admins))
	for _, a := range admins {
		ids = append(ids, a.ID)
	}
	return ids, nil
}

// AutoAssignee returns the department's only dedicated member, or nil when
// there is none or more than one. Override operators never count.
func (r *AssignmentResolver) AutoAssignee(ctx context.Context, departmentID int) (*int, error) {
	admins, err := r.admins.ListByDepartment(ctx, departmentID)
	if err != nil {
		return nil, err
	}
	var found *int
	for _, a := range admins {
		if a.AllDepartments || !a.InDepartment(departmentID) {
			continue
		}
		if found != nil {
			return nil, nil
		}
		found = models.IntPtr(a.ID)
	}
	return found, nil
}

// IsAuthorized: assigned operator, or department member while unassigned,
// or all-departments override.
func (r *AssignmentResolver) IsAuthorized(admin *models.Admin, conv *models.Conversation) bool {
	if admin == nil || conv == nil {
		return false
	}
	if admin.AllDepartments {
		return true
	}
	if conv.AdminRef != nil {
		return *conv.AdminRef == admin.ID
	}
	if conv.SelectedDepartment != nil {
		return admin.InDepartment(*conv.SelectedDepartment)
	}
	return false
}

func (r *AssignmentResolver) IsAuthorizedByID(ctx context.Context, adminID int, conv *models.Conversation) (bool, error) {
	admin, err := r.admins.GetByID(ctx, adminID)
	if err != nil {
		return false, err
	}
	return r.IsAuthorized(admin, conv), nil
}
